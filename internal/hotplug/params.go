package hotplug

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Defaults mirror the shipped governor tuning.
const (
	DefaultDelayMS          uint32 = 100
	DefaultMinCores         uint32 = 1
	DefaultUpThresholdPct   uint32 = 90
	DefaultDownThresholdPct uint32 = 60
	DefaultCycleUp          uint32 = 1
	DefaultCycleDown        uint32 = 1

	// DefaultStartupDelay lets the system settle before the first tick.
	DefaultStartupDelay = 20 * time.Second
)

// Externally visible parameter names, used by the config surface.
const (
	ParamDelayMS          = "delay_ms"
	ParamMinCores         = "min_cores"
	ParamMaxCores         = "max_cores"
	ParamUpThresholdPct   = "up_threshold_pct"
	ParamDownThresholdPct = "down_threshold_pct"
	ParamCycleUp          = "cycle_up"
	ParamCycleDown        = "cycle_down"
)

// Parameters is a consistent-enough snapshot of the tunables for one tick.
// Individual fields are independently meaningful, no cross-field atomicity
// is required.
type Parameters struct {
	DelayMS          uint32
	MinCores         uint32
	MaxCores         uint32
	UpThresholdPct   uint32
	DownThresholdPct uint32
	CycleUp          uint32
	CycleDown        uint32
}

// Delay returns the tick period as a Duration.
func (p Parameters) Delay() time.Duration {
	return time.Duration(p.DelayMS) * time.Millisecond
}

// ConfigError reports a rejected parameter write. The prior value is always
// retained.
type ConfigError struct {
	Param string
	Value uint32
	Cause string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid value %d for parameter %q: %s", e.Value, e.Param, e.Cause)
}

// ParameterStore holds the governor tunables. Writers arrive from the config
// surface, the control loop reads a snapshot each tick. Each field is stored
// atomically so reads never block a tick.
type ParameterStore struct {
	presentCores uint32

	delayMS          atomic.Uint32
	minCores         atomic.Uint32
	maxCores         atomic.Uint32
	upThresholdPct   atomic.Uint32
	downThresholdPct atomic.Uint32
	cycleUp          atomic.Uint32
	cycleDown        atomic.Uint32
}

// NewParameterStore creates a store seeded with defaults. presentCores caps
// max_cores and becomes its initial value.
func NewParameterStore(presentCores uint32) *ParameterStore {
	s := &ParameterStore{presentCores: presentCores}
	s.delayMS.Store(DefaultDelayMS)
	s.minCores.Store(DefaultMinCores)
	s.maxCores.Store(presentCores)
	s.upThresholdPct.Store(DefaultUpThresholdPct)
	s.downThresholdPct.Store(DefaultDownThresholdPct)
	s.cycleUp.Store(DefaultCycleUp)
	s.cycleDown.Store(DefaultCycleDown)
	return s
}

// Snapshot returns the current parameter values. Writes issued while the
// snapshot is in use take effect from the next tick.
func (s *ParameterStore) Snapshot() Parameters {
	return Parameters{
		DelayMS:          s.delayMS.Load(),
		MinCores:         s.minCores.Load(),
		MaxCores:         s.maxCores.Load(),
		UpThresholdPct:   s.upThresholdPct.Load(),
		DownThresholdPct: s.downThresholdPct.Load(),
		CycleUp:          s.cycleUp.Load(),
		CycleDown:        s.cycleDown.Load(),
	}
}

func (s *ParameterStore) SetDelayMS(value uint32) error {
	if value == 0 {
		return &ConfigError{Param: ParamDelayMS, Value: value, Cause: "must be greater than 0"}
	}
	s.delayMS.Store(value)
	return nil
}

func (s *ParameterStore) SetMinCores(value uint32) error {
	if value < 1 {
		return &ConfigError{Param: ParamMinCores, Value: value, Cause: "must be at least 1"}
	}
	if max := s.maxCores.Load(); value > max {
		return &ConfigError{Param: ParamMinCores, Value: value,
			Cause: fmt.Sprintf("must not exceed max_cores (%d)", max)}
	}
	s.minCores.Store(value)
	return nil
}

func (s *ParameterStore) SetMaxCores(value uint32) error {
	if min := s.minCores.Load(); value < min {
		return &ConfigError{Param: ParamMaxCores, Value: value,
			Cause: fmt.Sprintf("must be at least min_cores (%d)", min)}
	}
	if value > s.presentCores {
		return &ConfigError{Param: ParamMaxCores, Value: value,
			Cause: fmt.Sprintf("must not exceed present cores (%d)", s.presentCores)}
	}
	s.maxCores.Store(value)
	return nil
}

func (s *ParameterStore) SetUpThresholdPct(value uint32) error {
	if value > 100 {
		return &ConfigError{Param: ParamUpThresholdPct, Value: value, Cause: "must be between 0 and 100"}
	}
	s.upThresholdPct.Store(value)
	return nil
}

func (s *ParameterStore) SetDownThresholdPct(value uint32) error {
	if value > 100 {
		return &ConfigError{Param: ParamDownThresholdPct, Value: value, Cause: "must be between 0 and 100"}
	}
	s.downThresholdPct.Store(value)
	return nil
}

func (s *ParameterStore) SetCycleUp(value uint32) error {
	if value < 1 {
		return &ConfigError{Param: ParamCycleUp, Value: value, Cause: "must be at least 1"}
	}
	s.cycleUp.Store(value)
	return nil
}

func (s *ParameterStore) SetCycleDown(value uint32) error {
	if value < 1 {
		return &ConfigError{Param: ParamCycleDown, Value: value, Cause: "must be at least 1"}
	}
	s.cycleDown.Store(value)
	return nil
}

// ParamNames lists all externally settable parameters.
func ParamNames() []string {
	return []string{
		ParamDelayMS,
		ParamMinCores,
		ParamMaxCores,
		ParamUpThresholdPct,
		ParamDownThresholdPct,
		ParamCycleUp,
		ParamCycleDown,
	}
}

// Get reads a single parameter by its external name.
func (s *ParameterStore) Get(name string) (uint32, error) {
	switch name {
	case ParamDelayMS:
		return s.delayMS.Load(), nil
	case ParamMinCores:
		return s.minCores.Load(), nil
	case ParamMaxCores:
		return s.maxCores.Load(), nil
	case ParamUpThresholdPct:
		return s.upThresholdPct.Load(), nil
	case ParamDownThresholdPct:
		return s.downThresholdPct.Load(), nil
	case ParamCycleUp:
		return s.cycleUp.Load(), nil
	case ParamCycleDown:
		return s.cycleDown.Load(), nil
	default:
		return 0, fmt.Errorf("unknown parameter %q", name)
	}
}

// Set writes a single parameter by its external name, validating the value.
func (s *ParameterStore) Set(name string, value uint32) error {
	switch name {
	case ParamDelayMS:
		return s.SetDelayMS(value)
	case ParamMinCores:
		return s.SetMinCores(value)
	case ParamMaxCores:
		return s.SetMaxCores(value)
	case ParamUpThresholdPct:
		return s.SetUpThresholdPct(value)
	case ParamDownThresholdPct:
		return s.SetDownThresholdPct(value)
	case ParamCycleUp:
		return s.SetCycleUp(value)
	case ParamCycleDown:
		return s.SetCycleDown(value)
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
}

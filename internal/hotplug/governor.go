package hotplug

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

var (
	testHookStopLoop func() bool
)

// Status is a read-only view of the governor for diagnostics and metrics.
type Status struct {
	Enabled    bool
	Suspended  bool
	UpStreak   uint32
	DownStreak uint32
}

// Governor drives the hotplug control loop. One tick runs strictly serially:
// the next timer is armed only after the current tick completes, so a delay
// change takes effect from the next tick onward. External transitions
// (enable/disable, suspend/resume) are serialized against an in-flight tick
// by the state mutex and always wait the loop out before touching cores.
type Governor struct {
	params    *ParameterStore
	sampler   LoadSampler
	lifecycle CoreLifecycleController
	logger    logr.Logger
	stats     *Stats

	startupDelay time.Duration
	startedOnce  bool

	// mu guards state and the decision-to-action sequence of a tick.
	mu    sync.Mutex
	state RuntimeState

	// loopMu serializes loop start/stop; cancel is nil while stopped.
	loopMu    sync.Mutex
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
}

// GovernorOption tweaks governor construction.
type GovernorOption func(*Governor)

// WithStartupDelay overrides the delay before the very first tick.
func WithStartupDelay(delay time.Duration) GovernorOption {
	return func(g *Governor) {
		g.startupDelay = delay
	}
}

// WithEnabled sets the initial enable state. The loop itself is armed by
// Start.
func WithEnabled(enabled bool) GovernorOption {
	return func(g *Governor) {
		g.state.Enabled = enabled
	}
}

func NewGovernor(
	params *ParameterStore,
	sampler LoadSampler,
	lifecycle CoreLifecycleController,
	stats *Stats,
	logger logr.Logger,
	opts ...GovernorOption,
) *Governor {
	g := &Governor{
		params:       params,
		sampler:      sampler,
		lifecycle:    lifecycle,
		stats:        stats,
		logger:       logger,
		startupDelay: DefaultStartupDelay,
	}
	g.state.Enabled = true

	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stats exposes the monotonic counters for the monitoring collectors.
func (g *Governor) Stats() *Stats {
	return g.stats
}

// Status returns a snapshot of the runtime state.
func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Enabled:    g.state.Enabled,
		Suspended:  g.state.Suspended,
		UpStreak:   g.state.UpStreak,
		DownStreak: g.state.DownStreak,
	}
}

// Enabled reports the current enable switch position.
func (g *Governor) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Enabled
}

// Start arms the control loop if the governor is enabled, then blocks until
// ctx is cancelled and the loop has fully stopped.
func (g *Governor) Start(ctx context.Context) error {
	if g.Enabled() {
		g.startLoop(g.firstDelay())
	}
	<-ctx.Done()
	g.stopLoop()
	return nil
}

// SetEnabled flips the runtime on/off toggle. Enabling arms the loop;
// disabling stops it and restores every present core online up to max_cores
// before relinquishing control. Both transitions are synchronous: when
// SetEnabled returns, no tick is running or pending.
func (g *Governor) SetEnabled(enabled bool) error {
	g.mu.Lock()
	if g.state.Enabled == enabled {
		g.mu.Unlock()
		return nil
	}
	g.state.Enabled = enabled
	g.state.UpStreak = 0
	g.state.DownStreak = 0
	suspended := g.state.Suspended
	g.mu.Unlock()

	if enabled {
		if !suspended {
			g.startLoop(g.firstDelay())
		}
		g.logger.Info("governor enabled")
		return nil
	}

	g.stopLoop()
	g.logger.Info("governor disabled")
	return g.lifecycle.RestoreCapacity(g.params.Snapshot().MaxCores)
}

// Suspend forces all cores but the primary offline and stops the loop. The
// min_cores floor is intentionally overridden while suspended. Idempotent.
func (g *Governor) Suspend() error {
	g.mu.Lock()
	if !g.state.Enabled || g.state.Suspended {
		g.mu.Unlock()
		return nil
	}
	g.state.Suspended = true
	g.state.UpStreak = 0
	g.state.DownStreak = 0
	g.mu.Unlock()

	// Stop first: a tick that slipped past the state check must finish its
	// single action before cores are forced down.
	g.stopLoop()
	g.logger.Info("suspending, taking non-primary cores offline")
	return g.lifecycle.OfflineAllButPrimary()
}

// Resume restores cores up to max_cores and restarts the loop with the
// configured delay. Idempotent.
func (g *Governor) Resume() error {
	g.mu.Lock()
	if !g.state.Enabled || !g.state.Suspended {
		g.mu.Unlock()
		return nil
	}
	g.state.Suspended = false
	g.mu.Unlock()

	g.logger.Info("resuming, restoring cores")
	err := g.lifecycle.RestoreCapacity(g.params.Snapshot().MaxCores)
	g.startLoop(g.params.Snapshot().Delay())
	return err
}

// firstDelay returns the startup delay for the very first loop start and the
// configured tick delay afterwards.
func (g *Governor) firstDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.startedOnce {
		g.startedOnce = true
		return g.startupDelay
	}
	return g.params.Snapshot().Delay()
}

func (g *Governor) startLoop(delay time.Duration) {
	g.loopMu.Lock()
	defer g.loopMu.Unlock()
	if g.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.waitGroup.Add(1)
	go g.runLoop(ctx, delay)
}

// stopLoop cancels a pending tick and waits out a running one. A running
// tick always completes its single action, cancellation is cooperative.
func (g *Governor) stopLoop() {
	g.loopMu.Lock()
	defer g.loopMu.Unlock()
	if g.cancel == nil {
		return
	}

	g.cancel()
	g.waitGroup.Wait()
	g.cancel = nil
}

func (g *Governor) runLoop(ctx context.Context, delay time.Duration) {
	defer g.waitGroup.Done()

	for {
		if testHookStopLoop != nil {
			if testHookStopLoop() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			g.tick()
			// re-read so a delay_ms write takes effect next tick
			delay = g.params.Snapshot().Delay()
		}
	}
}

// tick is one full sample-decide-act cycle. It never blocks on anything but
// the fast synchronous rate and hotplug primitives and never stops the loop
// on failure.
func (g *Governor) tick() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.state.Enabled || g.state.Suspended {
		return
	}

	params := g.params.Snapshot()

	sample, err := g.sampler.Sample()
	if err != nil {
		g.stats.SampleFaults.Add(1)
		g.logger.V(4).Info("tick aborted, sampling failed", "error", err.Error())
		return
	}

	decision := Evaluate(sample, params, &g.state)

	switch decision.Action {
	case ActionScaleUp:
		if err := g.lifecycle.ScaleUp(params); err != nil {
			g.logger.V(4).Info("scale-up abandoned", "error", err.Error())
		}
	case ActionScaleDown:
		if err := g.lifecycle.ScaleDown(decision.CPUID, params); err != nil {
			g.logger.V(4).Info("scale-down abandoned", "cpuID", decision.CPUID, "error", err.Error())
		}
	}
}

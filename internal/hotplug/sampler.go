package hotplug

import (
	"fmt"
)

// Sample is the per-tick load observation. MaxRate is the maximum achievable
// rate of the primary core, the normalization base for both thresholds.
// Rates holds the current rate of every online core, offline cores are
// absent.
type Sample struct {
	MaxRate uint
	Rates   map[uint]uint
}

// OnlineCount is the number of cores that were online when the sample was
// taken.
func (s Sample) OnlineCount() int {
	return len(s.Rates)
}

// LoadSampler collects one Sample per tick. Read-only against the rate and
// topology collaborators.
type LoadSampler interface {
	Sample() (Sample, error)
}

type loadSamplerImpl struct {
	rates RateSource
	topo  Topology
}

func NewLoadSampler(rates RateSource, topo Topology) LoadSampler {
	return &loadSamplerImpl{
		rates: rates,
		topo:  topo,
	}
}

// Sample reads the primary max rate and the current rate of every online
// core exactly once. Any read failure aborts the whole sample so the tick
// degrades to a no-op.
func (s *loadSamplerImpl) Sample() (Sample, error) {
	maxRate, err := s.rates.PrimaryMaxRate()
	if err != nil {
		return Sample{}, fmt.Errorf("failed to read primary max rate: %w", err)
	}

	online, err := s.topo.OnlineIDs()
	if err != nil {
		return Sample{}, fmt.Errorf("failed to list online cores: %w", err)
	}

	rates := make(map[uint]uint, len(online))
	for _, id := range online {
		rate, err := s.rates.CurrentRate(id)
		if err != nil {
			return Sample{}, fmt.Errorf("failed to read rate of core %d: %w", id, err)
		}
		rates[id] = rate
	}

	return Sample{MaxRate: maxRate, Rates: rates}, nil
}

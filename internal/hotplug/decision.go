package hotplug

import (
	"math"
	"sort"
)

// RuntimeState is the single process-wide governor state. Streaks are
// mutated only by the control-loop tick; Enabled and Suspended are toggled
// by external signals under the governor mutex.
type RuntimeState struct {
	Enabled    bool
	Suspended  bool
	UpStreak   uint32
	DownStreak uint32
}

// Action is the outcome of one decision tick.
type Action int

const (
	ActionNone Action = iota
	ActionScaleUp
	ActionScaleDown
)

func (a Action) String() string {
	switch a {
	case ActionScaleUp:
		return "scale-up"
	case ActionScaleDown:
		return "scale-down"
	default:
		return "none"
	}
}

// Decision is at most one hotplug action for this tick. CPUID is the target
// core for a scale-down; for a scale-up the lifecycle controller picks the
// lowest-indexed offline core.
type Decision struct {
	Action Action
	CPUID  uint
}

// Evaluate runs the up/down policy for one tick, updating the hysteresis
// streaks in state. It is the only mutation the decision stage performs.
//
// The saturation check uses the minimum rate over all online cores, the idle
// check the maximum. A scale-down additionally requires a non-primary core to
// exist; the primary is a fixed reference and is never hotplugged.
func Evaluate(sample Sample, params Parameters, state *RuntimeState) Decision {
	upLimit := uint(uint64(params.UpThresholdPct) * uint64(sample.MaxRate) / 100)
	downLimit := uint(uint64(params.DownThresholdPct) * uint64(sample.MaxRate) / 100)

	primaryRate := sample.Rates[PrimaryCPUID]
	slowRate := uint(math.MaxUint)
	fastRate := primaryRate
	var slowCore uint

	ids := make([]uint, 0, len(sample.Rates))
	for id := range sample.Rates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if id == PrimaryCPUID {
			continue
		}
		rate := sample.Rates[id]
		if rate <= slowRate {
			slowCore = id
			slowRate = rate
		}
		if rate > fastRate {
			fastRate = rate
		}
	}
	if primaryRate < slowRate {
		slowRate = primaryRate
	}

	onlineCount := uint32(sample.OnlineCount())

	if slowRate > upLimit {
		// Every online core, the least loaded included, is saturated.
		state.UpStreak++
		state.DownStreak = 0
		if onlineCount < params.MaxCores && state.UpStreak >= params.CycleUp {
			state.UpStreak = 0
			return Decision{Action: ActionScaleUp}
		}
	} else if slowCore != 0 && fastRate < downLimit {
		// Even the busiest non-primary core is idle.
		state.DownStreak++
		state.UpStreak = 0
		if onlineCount > params.MinCores && state.DownStreak >= params.CycleDown {
			state.DownStreak = 0
			return Decision{Action: ActionScaleDown, CPUID: slowCore}
		}
	} else {
		state.UpStreak = 0
		state.DownStreak = 0
	}

	return Decision{Action: ActionNone}
}

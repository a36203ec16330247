package hotplug

import "sync/atomic"

// PrimaryCPUID is the reference core. Its maximum rate defines the threshold
// scale and it is never hotplugged.
const PrimaryCPUID uint = 0

// RateSource reports core operating rates. Implemented by the sysfs back-end.
type RateSource interface {
	// PrimaryMaxRate is the maximum achievable rate of the primary core.
	PrimaryMaxRate() (uint, error)
	// CurrentRate is the current rate of an online core. Undefined for
	// offline cores.
	CurrentRate(cpuID uint) (uint, error)
}

// Topology reports which cores exist and which are online.
type Topology interface {
	OnlineIDs() ([]uint, error)
	PresentIDs() ([]uint, error)
}

// Hotplugger is the primitive that changes a single core's online state.
type Hotplugger interface {
	BringOnline(cpuID uint) error
	TakeOffline(cpuID uint) error
}

// Stats holds monotonic governor counters, exported through the monitoring
// collectors.
type Stats struct {
	ScaleUps      atomic.Uint64
	ScaleDowns    atomic.Uint64
	SampleFaults  atomic.Uint64
	HotplugFaults atomic.Uint64
}

package hotplug

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLifecycle(topo Topology, plug Hotplugger) (CoreLifecycleController, *Stats) {
	stats := &Stats{}
	return NewCoreLifecycleController(topo, plug, stats, logr.Discard()), stats
}

func TestCoreLifecycle_ScaleUpPicksLowestOfflineCore(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0, 3}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1, 2, 3}, nil)
	plug.On("BringOnline", uint(1)).Return(nil)

	lifecycle, stats := newTestLifecycle(topo, plug)
	err := lifecycle.ScaleUp(defaultTestParams())

	require.NoError(t, err)
	plug.AssertCalled(t, "BringOnline", uint(1))
	assert.Equal(t, uint64(1), stats.ScaleUps.Load())
}

func TestCoreLifecycle_ScaleUpRefusedAtMaxCores(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0, 1}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1, 2, 3}, nil)

	params := defaultTestParams()
	params.MaxCores = 2

	lifecycle, _ := newTestLifecycle(topo, plug)
	err := lifecycle.ScaleUp(params)

	require.Error(t, err)
	plug.AssertNotCalled(t, "BringOnline")
}

func TestCoreLifecycle_ScaleUpNoOfflineCore(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0, 1}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1}, nil)

	lifecycle, _ := newTestLifecycle(topo, plug)
	err := lifecycle.ScaleUp(defaultTestParams())

	assert.ErrorIs(t, err, ErrNoOfflineCore)
}

func TestCoreLifecycle_ScaleUpFaultAbandonsAction(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1}, nil)
	plug.On("BringOnline", uint(1)).Return(errors.New("EBUSY"))

	lifecycle, stats := newTestLifecycle(topo, plug)
	err := lifecycle.ScaleUp(defaultTestParams())

	require.Error(t, err)
	assert.Equal(t, uint64(1), stats.HotplugFaults.Load())
	assert.Equal(t, uint64(0), stats.ScaleUps.Load())
}

func TestCoreLifecycle_ScaleDownRefusesPrimary(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}

	lifecycle, _ := newTestLifecycle(topo, plug)
	err := lifecycle.ScaleDown(PrimaryCPUID, defaultTestParams())

	require.Error(t, err)
	plug.AssertNotCalled(t, "TakeOffline")
}

func TestCoreLifecycle_ScaleDownRefusedAtMinCores(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0, 1}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1, 2, 3}, nil)

	params := defaultTestParams()
	params.MinCores = 2

	lifecycle, _ := newTestLifecycle(topo, plug)
	err := lifecycle.ScaleDown(1, params)

	require.Error(t, err)
	plug.AssertNotCalled(t, "TakeOffline")
}

func TestCoreLifecycle_ScaleDown(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0, 1, 2}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1, 2, 3}, nil)
	plug.On("TakeOffline", uint(2)).Return(nil)

	lifecycle, stats := newTestLifecycle(topo, plug)
	err := lifecycle.ScaleDown(2, defaultTestParams())

	require.NoError(t, err)
	plug.AssertCalled(t, "TakeOffline", uint(2))
	assert.Equal(t, uint64(1), stats.ScaleDowns.Load())
}

func TestCoreLifecycle_RestoreCapacity(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1, 2, 3}, nil)
	plug.On("BringOnline", uint(1)).Return(nil)
	plug.On("BringOnline", uint(2)).Return(nil)

	lifecycle, _ := newTestLifecycle(topo, plug)
	err := lifecycle.RestoreCapacity(3)

	require.NoError(t, err)
	plug.AssertCalled(t, "BringOnline", uint(1))
	plug.AssertCalled(t, "BringOnline", uint(2))
	plug.AssertNotCalled(t, "BringOnline", uint(3))
}

func TestCoreLifecycle_RestoreCapacityContinuesPastFault(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1, 2}, nil)
	plug.On("BringOnline", uint(1)).Return(errors.New("EIO"))
	plug.On("BringOnline", uint(2)).Return(nil)

	lifecycle, stats := newTestLifecycle(topo, plug)
	err := lifecycle.RestoreCapacity(3)

	require.Error(t, err)
	plug.AssertCalled(t, "BringOnline", uint(2))
	assert.Equal(t, uint64(1), stats.HotplugFaults.Load())
}

func TestCoreLifecycle_OfflineAllButPrimary(t *testing.T) {
	topo := &topologyMock{}
	plug := &hotplugMock{}
	topo.On("OnlineIDs").Return([]uint{0, 1, 2, 3}, nil)
	topo.On("PresentIDs").Return([]uint{0, 1, 2, 3}, nil)
	plug.On("TakeOffline", uint(1)).Return(nil)
	plug.On("TakeOffline", uint(2)).Return(nil)
	plug.On("TakeOffline", uint(3)).Return(nil)

	lifecycle, _ := newTestLifecycle(topo, plug)
	err := lifecycle.OfflineAllButPrimary()

	require.NoError(t, err)
	plug.AssertNotCalled(t, "TakeOffline", uint(0))
	plug.AssertCalled(t, "TakeOffline", uint(1))
	plug.AssertCalled(t, "TakeOffline", uint(2))
	plug.AssertCalled(t, "TakeOffline", uint(3))
}

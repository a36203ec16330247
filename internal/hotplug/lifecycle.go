package hotplug

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-logr/logr"
)

// ErrNoOfflineCore is returned by ScaleUp when every present core is already
// online.
var ErrNoOfflineCore = errors.New("no offline core available")

// CoreLifecycleController is the only component permitted to change a
// core's online state. It enforces the core-count bounds and never touches
// the primary core; on a primitive failure the action is abandoned for this
// tick and the next tick re-evaluates from real state.
type CoreLifecycleController interface {
	// ScaleUp brings the lowest-indexed offline core online.
	ScaleUp(params Parameters) error
	// ScaleDown takes the given core offline.
	ScaleDown(cpuID uint, params Parameters) error
	// RestoreCapacity brings present cores online up to maxCores, lowest
	// index first. Used when the governor relinquishes control.
	RestoreCapacity(maxCores uint32) error
	// OfflineAllButPrimary takes every core except the primary offline,
	// ignoring the min_cores floor. Used on suspend.
	OfflineAllButPrimary() error
}

type coreLifecycleImpl struct {
	topo   Topology
	plug   Hotplugger
	stats  *Stats
	logger logr.Logger
}

func NewCoreLifecycleController(topo Topology, plug Hotplugger, stats *Stats, logger logr.Logger) CoreLifecycleController {
	return &coreLifecycleImpl{
		topo:   topo,
		plug:   plug,
		stats:  stats,
		logger: logger,
	}
}

func (c *coreLifecycleImpl) ScaleUp(params Parameters) error {
	online, present, err := c.coreSets()
	if err != nil {
		return err
	}
	if uint32(len(online)) >= params.MaxCores {
		return fmt.Errorf("already at max_cores (%d)", params.MaxCores)
	}

	target := uint(0)
	found := false
	for _, id := range present {
		if !slices.Contains(online, id) {
			target = id
			found = true
			break
		}
	}
	if !found {
		return ErrNoOfflineCore
	}

	if err := c.plug.BringOnline(target); err != nil {
		c.stats.HotplugFaults.Add(1)
		return fmt.Errorf("failed to bring core %d online: %w", target, err)
	}

	c.stats.ScaleUps.Add(1)
	c.logger.V(4).Info("core brought online", "cpuID", target, "onlineCount", len(online)+1)
	return nil
}

func (c *coreLifecycleImpl) ScaleDown(cpuID uint, params Parameters) error {
	if cpuID == PrimaryCPUID {
		return fmt.Errorf("refusing to take primary core %d offline", cpuID)
	}

	online, _, err := c.coreSets()
	if err != nil {
		return err
	}
	if uint32(len(online)) <= params.MinCores {
		return fmt.Errorf("already at min_cores (%d)", params.MinCores)
	}

	if err := c.plug.TakeOffline(cpuID); err != nil {
		c.stats.HotplugFaults.Add(1)
		return fmt.Errorf("failed to take core %d offline: %w", cpuID, err)
	}

	c.stats.ScaleDowns.Add(1)
	c.logger.V(4).Info("core taken offline", "cpuID", cpuID, "onlineCount", len(online)-1)
	return nil
}

func (c *coreLifecycleImpl) RestoreCapacity(maxCores uint32) error {
	online, present, err := c.coreSets()
	if err != nil {
		return err
	}

	onlineCount := uint32(len(online))
	var restoreErr error
	for _, id := range present {
		if onlineCount >= maxCores {
			break
		}
		if slices.Contains(online, id) {
			continue
		}
		if err := c.plug.BringOnline(id); err != nil {
			c.stats.HotplugFaults.Add(1)
			c.logger.Error(err, "failed to restore core", "cpuID", id)
			restoreErr = err
			continue
		}
		onlineCount++
	}

	c.logger.V(4).Info("capacity restored", "onlineCount", onlineCount, "maxCores", maxCores)
	return restoreErr
}

func (c *coreLifecycleImpl) OfflineAllButPrimary() error {
	online, _, err := c.coreSets()
	if err != nil {
		return err
	}

	var offlineErr error
	for _, id := range online {
		if id == PrimaryCPUID {
			continue
		}
		if err := c.plug.TakeOffline(id); err != nil {
			c.stats.HotplugFaults.Add(1)
			c.logger.Error(err, "failed to take core offline for suspend", "cpuID", id)
			offlineErr = err
		}
	}
	return offlineErr
}

func (c *coreLifecycleImpl) coreSets() (online, present []uint, err error) {
	online, err = c.topo.OnlineIDs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list online cores: %w", err)
	}
	present, err = c.topo.PresentIDs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list present cores: %w", err)
	}
	return online, present, nil
}

package sysfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultCPUBasePath = "/sys/devices/system/cpu"

	presentFile = "present"

	onlineFile      = "online"
	cpuinfoMaxFile  = "cpufreq/cpuinfo_max_freq"
	scalingCurFile  = "cpufreq/scaling_cur_freq"
	cpuDirFormat    = "cpu%d"
	onlineValue     = "1"
	offlineValue    = "0"
	primaryCPUID    = uint(0)
)

// System provides access to the kernel CPU sysfs tree. It implements the
// governor's RateSource, Topology and Hotplugger collaborators.
type System struct {
	basePath string
}

func New() *System {
	return NewWithPath(defaultCPUBasePath)
}

// NewWithPath is intended for tests running against a dummy tree.
func NewWithPath(basePath string) *System {
	return &System{basePath: basePath}
}

func (s *System) cpuPath(cpuID uint, resource string) string {
	return filepath.Join(s.basePath, fmt.Sprintf(cpuDirFormat, cpuID), resource)
}

// PresentIDs returns all physically available CPU ids, parsed from the
// kernel cpulist format, e.g. "0-3,5".
func (s *System) PresentIDs() ([]uint, error) {
	data, err := os.ReadFile(filepath.Join(s.basePath, presentFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read present CPU list: %w", err)
	}

	ids, err := ParseCPUList(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse present CPU list: %w", err)
	}
	return ids, nil
}

// OnlineIDs returns the ids of all currently online CPUs. A CPU without an
// online control file (cpu0 on most systems) is always online.
func (s *System) OnlineIDs() ([]uint, error) {
	present, err := s.PresentIDs()
	if err != nil {
		return nil, err
	}

	online := make([]uint, 0, len(present))
	for _, id := range present {
		data, err := os.ReadFile(s.cpuPath(id, onlineFile))
		if os.IsNotExist(err) {
			online = append(online, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read online state for CPU %d: %w", id, err)
		}
		if strings.TrimSpace(string(data)) == onlineValue {
			online = append(online, id)
		}
	}
	return online, nil
}

// PrimaryMaxRate returns the maximum achievable frequency of cpu0 in kHz.
func (s *System) PrimaryMaxRate() (uint, error) {
	return s.readUintFile(primaryCPUID, cpuinfoMaxFile)
}

// CurrentRate returns the current operating frequency of the CPU in kHz.
// Undefined for offline CPUs, the cpufreq directory disappears with the core.
func (s *System) CurrentRate(cpuID uint) (uint, error) {
	return s.readUintFile(cpuID, scalingCurFile)
}

func (s *System) BringOnline(cpuID uint) error {
	if err := os.WriteFile(s.cpuPath(cpuID, onlineFile), []byte(onlineValue), 0644); err != nil {
		return fmt.Errorf("failed to bring CPU %d online: %w", cpuID, err)
	}
	return nil
}

func (s *System) TakeOffline(cpuID uint) error {
	if err := os.WriteFile(s.cpuPath(cpuID, onlineFile), []byte(offlineValue), 0644); err != nil {
		return fmt.Errorf("failed to take CPU %d offline: %w", cpuID, err)
	}
	return nil
}

// WaitForCpufreq blocks until the primary core's cpufreq attributes are
// readable. The cpufreq driver can come up after this process during boot.
func (s *System) WaitForCpufreq(ctx context.Context) error {
	operation := func() error {
		_, err := s.PrimaryMaxRate()
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxInterval = 5 * time.Second

	return backoff.Retry(operation, backoff.WithContext(expBackoff, ctx))
}

func (s *System) readUintFile(cpuID uint, resource string) (uint, error) {
	data, err := os.ReadFile(s.cpuPath(cpuID, resource))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s for CPU %d: %w", resource, cpuID, err)
	}

	value, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to convert %s for CPU %d to uint: %w", resource, cpuID, err)
	}
	return uint(value), nil
}

// ParseCPUList parses the kernel cpulist format, a comma separated sequence
// of ids and inclusive ranges, e.g. "0-3,5,7-8".
func ParseCPUList(list string) ([]uint, error) {
	if list == "" {
		return []uint{}, nil
	}

	ids := make([]uint, 0)
	for _, chunk := range strings.Split(list, ",") {
		first, last, found := strings.Cut(chunk, "-")
		start, err := strconv.ParseUint(first, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid CPU list entry %q: %w", chunk, err)
		}
		end := start
		if found {
			end, err = strconv.ParseUint(last, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid CPU list entry %q: %w", chunk, err)
			}
			if end < start {
				return nil, fmt.Errorf("invalid CPU list range %q", chunk)
			}
		}
		for id := start; id <= end; id++ {
			ids = append(ids, uint(id))
		}
	}
	return ids, nil
}

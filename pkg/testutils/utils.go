package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DummySysfs describes a fake CPU sysfs tree for tests.
type DummySysfs struct {
	// Cores is the number of present CPUs, ids 0..Cores-1.
	Cores int
	// Offline lists CPUs whose online file starts at 0.
	Offline []uint
	// MaxFreq is written to every CPU's cpuinfo_max_freq.
	MaxFreq uint
	// Rates maps CPU id to the scaling_cur_freq value. CPUs without an
	// entry get MaxFreq.
	Rates map[uint]uint
}

// SetupDummySysfs builds a fake sysfs CPU tree under dir, mirroring the
// kernel layout: a top-level present cpulist, per-CPU online control files
// (cpu0 has none, like on real hardware) and cpufreq attributes.
func SetupDummySysfs(dir string, opts DummySysfs) error {
	if opts.Cores < 1 {
		return fmt.Errorf("at least one core required")
	}

	offline := make(map[uint]bool, len(opts.Offline))
	for _, id := range opts.Offline {
		offline[id] = true
	}

	present := "0"
	if opts.Cores > 1 {
		present = fmt.Sprintf("0-%d", opts.Cores-1)
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "present"), []byte(present+"\n"), 0644); err != nil {
		return err
	}

	for i := 0; i < opts.Cores; i++ {
		id := uint(i)
		cpuDir := filepath.Join(dir, "cpu"+strconv.Itoa(i))
		if err := os.MkdirAll(filepath.Join(cpuDir, "cpufreq"), os.ModePerm); err != nil {
			return err
		}

		if id != 0 {
			state := "1"
			if offline[id] {
				state = "0"
			}
			if err := os.WriteFile(filepath.Join(cpuDir, "online"), []byte(state+"\n"), 0644); err != nil {
				return err
			}
		}

		maxFreq := fmt.Sprint(opts.MaxFreq)
		if err := os.WriteFile(filepath.Join(cpuDir, "cpufreq", "cpuinfo_max_freq"), []byte(maxFreq+"\n"), 0644); err != nil {
			return err
		}

		rate, ok := opts.Rates[id]
		if !ok {
			rate = opts.MaxFreq
		}
		if err := os.WriteFile(filepath.Join(cpuDir, "cpufreq", "scaling_cur_freq"), []byte(fmt.Sprint(rate)+"\n"), 0644); err != nil {
			return err
		}
	}

	return nil
}

// SetRate overwrites the current rate of one CPU in a dummy tree.
func SetRate(dir string, cpuID uint, rate uint) error {
	path := filepath.Join(dir, "cpu"+strconv.Itoa(int(cpuID)), "cpufreq", "scaling_cur_freq")
	return os.WriteFile(path, []byte(fmt.Sprint(rate)+"\n"), 0644)
}

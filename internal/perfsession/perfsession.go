// Package perfsession implements capture sessions and counter arming on
// top of Linux perf_event.
//
// The privileged session counts kernel providers system-wide, one event per
// online CPU. The process-scoped session counts user providers on the
// target process and samples every armed hardware counter on it, one
// event per CPU with the armed interval as sample period. Each session
// writes a record log when stopped; the process-scoped session merges both
// logs into the unit's trace artifact.
package perfsession

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("perf_event capture sessions need linux")

// Software providers understood by both sessions.
const (
	CPUClock        = "cpu-clock"
	TaskClock       = "task-clock"
	PageFaults      = "page-faults"
	ContextSwitches = "context-switches"
	CPUMigrations   = "cpu-migrations"
	MinorFaults     = "minor-faults"
	MajorFaults     = "major-faults"
)

var providers = []string{CPUClock, TaskClock, PageFaults, ContextSwitches, CPUMigrations, MinorFaults, MajorFaults}

var (
	DefaultKernelProviders = []string{ContextSwitches, CPUMigrations, PageFaults}
	DefaultUserProviders   = []string{TaskClock, ContextSwitches, PageFaults}
)

// IsProvider reports whether name is a known software provider.
func IsProvider(name string) bool {
	return slices.Contains(providers, name)
}

type Options struct {
	// OutputDir receives logs and artifacts when the session config names none.
	OutputDir string
	// CPUs restricts per-CPU events; nil means every online CPU.
	CPUs []int
	// RingPages is the data size of each sampling ring in pages, a power of two.
	RingPages int
	// DrainGrace bounds how long stopped sampling rings are drained.
	DrainGrace time.Duration
}

func (o *Options) setDefaults() error {
	if o.OutputDir == "" {
		o.OutputDir = os.TempDir()
	}
	if o.RingPages <= 0 {
		o.RingPages = 8
	}
	if o.RingPages&(o.RingPages-1) != 0 {
		return fmt.Errorf("ring pages %d is not a power of two", o.RingPages)
	}
	if o.DrainGrace <= 0 {
		o.DrainGrace = 50 * time.Millisecond
	}
	if o.CPUs == nil {
		cpus, err := onlineCPUs()
		if err != nil {
			return err
		}
		o.CPUs = cpus
	}
	return nil
}

func onlineCPUs() ([]int, error) {
	const cpuPath = "/sys/devices/system/cpu/online"
	buf, err := os.ReadFile(cpuPath)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", cpuPath, err)
	}
	return readCPURange(string(buf))
}

// readCPURange parses the kernel cpu list format, e.g. "0-3,6,8-9".
func readCPURange(cpuRangeStr string) ([]int, error) {
	var cpus []int
	cpuRangeStr = strings.Trim(cpuRangeStr, "\n ")
	if cpuRangeStr == "" {
		return nil, errors.New("empty cpu list")
	}
	for _, cpuRange := range strings.Split(cpuRangeStr, ",") {
		rangeOp := strings.SplitN(cpuRange, "-", 2)
		first, err := strconv.ParseUint(rangeOp[0], 10, 32)
		if err != nil {
			return nil, err
		}
		if len(rangeOp) == 1 {
			cpus = append(cpus, int(first))
			continue
		}
		last, err := strconv.ParseUint(rangeOp[1], 10, 32)
		if err != nil {
			return nil, err
		}
		for n := first; n <= last; n++ {
			cpus = append(cpus, int(n))
		}
	}
	return cpus, nil
}

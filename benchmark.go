/*
 *  benchmark.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Benchmark holds the wall clock and kernel accounting of one finished
// job, written as a one-row TSV sidecar when the rule asks for it
type Benchmark struct {
	Seconds    float64
	MaxRSSMB   float64
	CPUSeconds float64
	ExitCode   int
}

// collectRusage reads the child's resource usage off its ProcessState.
// Linux reports ru_maxrss in KB.
func collectRusage(state *os.ProcessState) (maxRSSMB, cpuSeconds float64) {
	if state == nil {
		return 0, 0
	}
	ru, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0, state.UserTime().Seconds() + state.SystemTime().Seconds()
	}
	maxRSSMB = float64(ru.Maxrss) / 1024
	cpuSeconds = time.Duration(ru.Utime.Nano() + ru.Stime.Nano()).Seconds()
	return maxRSSMB, cpuSeconds
}

// ChildrenMaxRSSMB returns the peak resident set over all children of
// this process, for the end-of-run summary line
func ChildrenMaxRSSMB() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
		return 0
	}
	return float64(ru.Maxrss) / 1024
}

// WriteFile writes the benchmark sidecar, header plus one row
func (b *Benchmark) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(f, BenchHeader)
	fmt.Fprintf(f, "%.3f\t%s\t%.1f\t%.2f\t%d\n",
		b.Seconds, formatHMS(b.Seconds), b.MaxRSSMB, b.CPUSeconds, b.ExitCode)
	return f.Close()
}

// formatHMS renders seconds as h:mm:ss
func formatHMS(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
}

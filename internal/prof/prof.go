// Package prof captures Go runtime profiles of a cirgen run.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Paths names the profile outputs. An empty path disables that profile.
type Paths struct {
	CPU   string
	Heap  string
	Trace string
}

func (p Paths) Empty() bool { return p.CPU == "" && p.Heap == "" && p.Trace == "" }

// Profiler owns the files of the profiles started by Start.
type Profiler struct {
	paths     Paths
	cpuFile   *os.File
	traceFile *os.File
	stopped   bool
}

// Start begins CPU profiling and runtime tracing as requested. On error
// whatever was already started is stopped again.
func Start(p Paths) (*Profiler, error) {
	pr := &Profiler{paths: p}
	if p.CPU != "" {
		f, err := os.Create(p.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		pr.cpuFile = f
	}
	if p.Trace != "" {
		f, err := os.Create(p.Trace)
		if err != nil {
			pr.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			pr.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		pr.traceFile = f
	}
	return pr, nil
}

// Stop ends the running profiles and writes the heap profile. Calling it
// again is a no-op.
func (pr *Profiler) Stop() error {
	if pr == nil || pr.stopped {
		return nil
	}
	pr.stopped = true
	var errs []error
	if pr.traceFile != nil {
		trace.Stop()
		errs = append(errs, pr.traceFile.Close())
		pr.traceFile = nil
	}
	errs = append(errs, pr.stopCPU())
	if pr.paths.Heap != "" {
		errs = append(errs, writeHeap(pr.paths.Heap))
	}
	return errors.Join(errs...)
}

func (pr *Profiler) stopCPU() error {
	if pr.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := pr.cpuFile.Close()
	pr.cpuFile = nil
	return err
}

func writeHeap(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cirgen/internal/diag"
	"cirgen/internal/driver"
	"cirgen/internal/llvmexport"
	"cirgen/internal/observ"
	"cirgen/internal/trace"
)

type emitOptions struct {
	jobs    int
	llvm    bool
	noCache bool
	ui      string
}

func newEmitCmd() *cobra.Command {
	var opts emitOptions
	cmd := &cobra.Command{
		Use:   "emit <unit.toml>...",
		Short: "Emit the IR module of each unit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(cmd, args, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "units compiled in parallel (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.llvm, "llvm", false, "print types, globals and declarations as LLVM IR")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "ignore the result cache")
	cmd.Flags().StringVar(&opts.ui, "ui", "auto", "progress view (auto|on|off)")
	return cmd
}

func runEmit(cmd *cobra.Command, paths []string, opts emitOptions) error {
	e, err := prepare(cmd)
	if err != nil {
		return err
	}
	defer e.close()
	mode, err := readUIMode(opts.ui)
	if err != nil {
		return err
	}
	if opts.llvm {
		return emitLLVM(cmd, e, paths)
	}

	dopts := driver.Options{Config: e.cfg, Jobs: opts.jobs, MaxDiagnostics: e.maxDiagnostics}
	if e.cfg.Cache.Enabled && !opts.noCache {
		cache, err := driver.OpenDiskCache(e.cfg.Cache.Dir)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		dopts.Cache = cache
	}

	ctx, span := trace.Enter(cmd.Context(), trace.ScopeDriver, "emit")
	var results []driver.UnitResult
	if shouldUseTUI(mode, len(paths)) {
		results, err = runUnitsWithUI(ctx, "emit", paths, dopts)
	} else {
		results, err = driver.RunUnits(ctx, paths, dopts)
	}
	span.SetInt("jobs", opts.jobs).End(fmt.Sprintf("%d units", len(paths)))
	if err != nil {
		return err
	}

	failed := false
	reports := make([]observ.Report, 0, len(results))
	for _, res := range results {
		printDiagnostics(e.errOut, res.Bag)
		if res.Err != nil && !res.Bag.HasErrors() {
			fmt.Fprintf(e.errOut, "%s %s: %v\n", errorColor.Sprint("error:"), res.Path, res.Err)
		}
		if res.IR != "" {
			fmt.Fprint(e.out, res.IR)
		}
		failed = failed || res.Failed()
		reports = append(reports, res.Timing)
	}
	if e.timings {
		printTimings(e.errOut, reports...)
	}
	if failed {
		dumpRing(cmd, e.tracer)
		return errDiagnostics
	}
	return nil
}

// emitLLVM runs units one by one, since the cache keeps only the native
// printed form.
func emitLLVM(cmd *cobra.Command, e *env, paths []string) error {
	failed := false
	for _, path := range paths {
		bag := diag.NewBag(e.maxDiagnostics)
		r := diag.BagReporter{Bag: bag}
		s, err := driver.Open(cmd.Context(), path, e.cfg, r)
		if err == nil {
			err = s.CheckLayouts(r)
		}
		if err == nil {
			m, emitErr := s.Emit(r)
			if emitErr != nil {
				err = emitErr
			} else if lm, xerr := llvmexport.Module(m.IR); xerr != nil {
				err = xerr
			} else {
				fmt.Fprint(e.out, lm.String())
			}
		}
		printDiagnostics(e.errOut, bag)
		if err != nil {
			failed = true
			if !bag.HasErrors() {
				fmt.Fprintf(e.errOut, "%s %s: %v\n", errorColor.Sprint("error:"), path, err)
			}
		}
	}
	if failed {
		return errDiagnostics
	}
	return nil
}

package driver

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"cirgen/internal/config"
	"cirgen/internal/diag"
	"cirgen/internal/observ"
	"cirgen/internal/trace"
)

// Options control a driver run.
type Options struct {
	Config         config.Config
	Jobs           int
	MaxDiagnostics int
	// Cache is optional.
	Cache *DiskCache
	// Progress receives per-unit stage events; optional.
	Progress ProgressSink
}

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Path   string
	IR     string // printed module; empty when the unit never reached emission
	Bag    *diag.Bag
	Timing observ.Report
	Cached bool
	Err    error
}

// Failed reports whether the unit produced errors.
func (r UnitResult) Failed() bool {
	return r.Err != nil || (r.Bag != nil && r.Bag.HasErrors())
}

// RunUnits compiles every path, at most opts.Jobs at a time. Results keep
// the order of paths. Unit failures land in their result; the returned
// error is only set when ctx is cancelled.
func RunUnits(ctx context.Context, paths []string, opts Options) ([]UnitResult, error) {
	results := make([]UnitResult, len(paths))
	if len(paths) == 0 {
		return results, nil
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	for _, path := range paths {
		publish(opts.Progress, Event{Path: path, Stage: StageParse, Status: StatusQueued})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			// each goroutine owns results[i]
			results[i] = RunUnit(gctx, path, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// RunUnit compiles a single unit, consulting the cache first.
func RunUnit(ctx context.Context, path string, opts Options) (res UnitResult) {
	maxDiag := opts.MaxDiagnostics
	if maxDiag <= 0 {
		maxDiag = 100
	}
	res = UnitResult{Path: path, Bag: diag.NewBag(maxDiag)}
	r := diag.Dedup(diag.BagReporter{Bag: res.Bag})

	ctx, span := trace.Enter(ctx, trace.ScopeUnit, path)
	started := time.Now()
	last := StageParse
	defer func() {
		detail, status := "ok", StatusDone
		switch {
		case res.Cached:
			detail, status = "cached", StatusCached
		case res.Failed():
			detail, status = "failed", StatusError
		}
		span.End(detail)
		publish(opts.Progress, Event{Path: path, Stage: last, Status: status, Err: res.Err, Elapsed: time.Since(started)})
	}()
	// stage runs fn as a timed stage and reports it.
	var tm *observ.Timer
	stage := func(st Stage, fn func() error) error {
		last = st
		publish(opts.Progress, Event{Path: path, Stage: st, Status: StatusWorking})
		return tm.Time(string(st), fn)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	fingerprint := opts.Config.Fingerprint()
	key := UnitKey(data, fingerprint)
	var payload DiskPayload
	if hit, err := opts.Cache.Get(key, &payload); err == nil && hit {
		res.IR = payload.IR
		res.Timing = payload.Timing
		res.Cached = true
		replay(res.Bag, payload.Diagnostics)
		return res
	}

	tm = observ.NewTimer()
	defer func() { res.Timing = tm.Report() }()

	var s *Session
	if res.Err = stage(StageParse, func() error {
		s, err = Load(ctx, path, data, opts.Config, r)
		return err
	}); res.Err != nil {
		return res
	}
	if res.Err = stage(StageLayout, func() error { return s.CheckLayouts(r) }); res.Err != nil {
		return res
	}
	res.Err = stage(StageEmit, func() error {
		m, err := s.Emit(r)
		if m != nil {
			res.IR = m.IR.String()
		}
		return err
	})
	if res.Err != nil || res.Bag.HasErrors() {
		return res
	}

	res.Timing = tm.Report()
	if err := opts.Cache.Put(key, &DiskPayload{
		Schema:      diskCacheSchemaVersion,
		Path:        path,
		Fingerprint: fingerprint,
		IR:          res.IR,
		Diagnostics: toCached(res.Bag.Items()),
		Timing:      res.Timing,
	}); err != nil {
		diag.ReportWarning(r, diag.CfgInfo, s.span("cache"), "cache write failed: "+err.Error()).Emit()
	}
	return res
}

// Errs joins the errors of failed units.
func Errs(results []UnitResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

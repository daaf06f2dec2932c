// Package driver runs translation units through parsing, layout and
// emission, optionally in parallel and through an on-disk cache.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/codegen"
	"cirgen/internal/config"
	"cirgen/internal/constagg"
	"cirgen/internal/diag"
	"cirgen/internal/layout"
	"cirgen/internal/recordlayout"
	"cirgen/internal/source"
	"cirgen/internal/trace"
	"cirgen/internal/types"
	"cirgen/internal/unit"
)

// ErrLayout is returned when a record of the unit cannot be laid out.
var ErrLayout = errors.New("record layout failed")

// Session holds one parsed unit and the builders that lower it.
type Session struct {
	Path   string
	Config config.Config
	Target layout.Target
	Source *types.Interner
	Unit   *ast.Unit
	Oracle *layout.Engine
	Types  *recordlayout.Types
	Consts *constagg.Emitter
	Tracer trace.Tracer
}

// Open reads and loads the unit at path.
func Open(ctx context.Context, path string, cfg config.Config, r diag.Reporter) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(ctx, path, data, cfg, r)
}

// Load parses data as the unit path and prepares its builders for the
// configured target.
func Load(ctx context.Context, path string, data []byte, cfg config.Config, r diag.Reporter) (*Session, error) {
	tg, err := cfg.ResolveTarget()
	if err != nil {
		return nil, err
	}
	in := types.NewInterner(tg.Model)
	u, err := unit.Parse(path, data, in, r)
	if err != nil {
		return nil, err
	}
	tracer := trace.FromContext(ctx)
	oracle := layout.New(tg, in)
	ts := recordlayout.NewTypes(cir.NewContext(), oracle, cfg.LayoutOptions())
	ts.Tracer = tracer
	consts := constagg.NewEmitter(ts, cfg.ConstOptions())
	consts.Tracer = tracer
	return &Session{
		Path:   path,
		Config: cfg,
		Target: tg,
		Source: in,
		Unit:   u,
		Oracle: oracle,
		Types:  ts,
		Consts: consts,
		Tracer: tracer,
	}, nil
}

// CheckLayouts lays out every complete record and every record a
// variable holds by value. Each failure is reported; the result wraps
// ErrLayout when any record failed.
func (s *Session) CheckLayouts(r diag.Reporter) error {
	if r == nil {
		r = diag.NopReporter{}
	}
	failed := make(map[*types.RecordDecl]bool)
	check := func(rd *types.RecordDecl, sp source.Span) {
		if failed[rd] {
			return
		}
		_, err := s.Oracle.Record(rd)
		var le *layout.LayoutError
		if !errors.As(err, &le) {
			return
		}
		failed[rd] = true
		code := diag.LayUnsupportedBitfield
		switch le.Kind {
		case layout.LayoutErrRecursive:
			code = diag.LayRecursiveRecord
		case layout.LayoutErrIncomplete:
			code = diag.LayIncompleteRecord
		}
		diag.ReportError(r, code, sp, le.Error()).Emit()
	}

	for _, rd := range s.Source.Records() {
		if rd.IsComplete() {
			check(rd, s.span("record %s", rd.Name))
		}
	}
	for _, v := range s.Unit.Globals {
		if rd := s.heldRecord(v.Type); rd != nil {
			check(rd, s.span("global %s", v.Name))
		}
	}
	for _, fd := range s.Unit.Funcs {
		for i, st := range fd.Body {
			if st.Kind == ast.StmtDecl && st.Var != nil {
				if rd := s.heldRecord(st.Var.Type); rd != nil {
					check(rd, s.span("function %s.body[%d]", fd.Name, i))
				}
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %d record(s)", ErrLayout, len(failed))
	}
	return nil
}

// heldRecord returns the record a value of type t contains directly,
// looking through arrays.
func (s *Session) heldRecord(t types.TypeID) *types.RecordDecl {
	t = s.Source.Unqualified(t)
	for s.Source.IsArray(t) {
		t = s.Source.Unqualified(s.Source.Elem(t))
	}
	if !s.Source.IsRecord(t) {
		return nil
	}
	return s.Source.Record(t)
}

// Emit lowers the unit and verifies the result. The module is returned
// even when some declarations failed to emit.
func (s *Session) Emit(r diag.Reporter) (*codegen.Module, error) {
	m := codegen.NewModule(s.Unit, s.Types, s.Consts, r, s.Config.CodegenPolicy())
	m.Tracer = s.Tracer
	err := m.EmitUnit()
	if verr := cir.Verify(m.IR); verr != nil {
		return m, errors.Join(err, fmt.Errorf("verify: %w", verr))
	}
	return m, err
}

func (s *Session) span(format string, args ...any) source.Span {
	return source.Span{File: s.Path, Decl: fmt.Sprintf(format, args...)}
}

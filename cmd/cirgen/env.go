package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cirgen/internal/config"
	"cirgen/internal/diag"
	"cirgen/internal/observ"
	"cirgen/internal/trace"
)

const configFileName = config.FileName

// errDiagnostics signals that errors were already printed as diagnostics.
var errDiagnostics = errors.New("compilation failed")

// env is what every command needs: configuration, output streams, the
// tracer and the global flags.
type env struct {
	cfg            config.Config
	tracer         trace.Tracer
	out, errOut    io.Writer
	maxDiagnostics int
	timings        bool
	cleanup        func()
}

// prepare applies --color, loads the configuration and sets up tracing.
// Configuration diagnostics are printed right away.
func prepare(cmd *cobra.Command) (*env, error) {
	flags := cmd.Root().PersistentFlags()
	colorMode, _ := flags.GetString("color")
	if err := applyColor(colorMode, isTerminal(os.Stdout)); err != nil {
		return nil, err
	}
	e := &env{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	e.maxDiagnostics, _ = flags.GetInt("max-diagnostics")
	e.timings, _ = flags.GetBool("timings")

	path, _ := flags.GetString("config")
	bag := diag.NewBag(max(e.maxDiagnostics, 1))
	r := diag.BagReporter{Bag: bag}
	var err error
	if path != "" {
		e.cfg, err = config.Load(path, r)
	} else {
		e.cfg, err = config.LoadOrDefault(configFileName, r)
	}
	printDiagnostics(e.errOut, bag)
	if err != nil {
		return nil, err
	}

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return nil, err
	}
	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		stopProfiling()
		return nil, err
	}
	e.tracer = tracer
	e.cleanup = func() {
		cleanup()
		stopProfiling()
	}
	return e, nil
}

func (e *env) close() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

// applyColor sets the global color switch from a --color value.
func applyColor(mode string, tty bool) error {
	switch mode {
	case "auto":
		color.NoColor = !tty
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("unsupported --color %q (must be auto, on or off)", mode)
	}
	return nil
}

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	noteColor    = color.New(color.Faint)
)

func severityColor(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return errorColor
	case diag.SevWarning:
		return warningColor
	default:
		return infoColor
	}
}

// formatDiagnostic renders d as "<severity>[<code>]: <span>: <message>".
func formatDiagnostic(d diag.Diagnostic) string {
	s := severityColor(d.Severity).Sprintf("%s[%s]", d.Severity.Label(), d.Code.ID())
	if !d.Primary.Empty() {
		s += " " + d.Primary.String() + ":"
	}
	s += " " + d.Message
	for _, n := range d.Notes {
		s += "\n  " + noteColor.Sprint("note: ") + n.Msg
		if !n.Span.Empty() {
			s += " at " + n.Span.String()
		}
	}
	return s
}

func printDiagnostics(w io.Writer, bag *diag.Bag) {
	if bag == nil {
		return
	}
	bag.Sort()
	for _, d := range bag.Items() {
		fmt.Fprintln(w, formatDiagnostic(d))
	}
}

func printTimings(w io.Writer, reports ...observ.Report) {
	fmt.Fprint(w, observ.Aggregate(reports...).Summary())
}

func printError(w io.Writer, err error) {
	if errors.Is(err, errDiagnostics) {
		return
	}
	fmt.Fprintln(w, errorColor.Sprint("error:"), err)
}

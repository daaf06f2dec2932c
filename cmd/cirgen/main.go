package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cirgen/internal/version"
)

// newRootCmd builds the command tree. Tests build a fresh tree per run.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cirgen",
		Short:         "Record layout and aggregate code generation for C/C++ units",
		Long:          `cirgen lowers C/C++ record types to physical IR layouts, folds aggregate initializers to constants and emits aggregate expressions.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newLayoutCmd())
	root.AddCommand(newConstCmd())
	root.AddCommand(newEmitCmd())
	root.AddCommand(newTargetsCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newVersionCmd())

	pf := root.PersistentFlags()
	pf.String("config", "", "configuration file (default ./"+configFileName+" when present)")
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("timings", false, "show per-stage timings")
	pf.Int("max-diagnostics", 100, "maximum number of diagnostics per unit")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|unit|record|debug)")
	pf.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	pf.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	pf.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")
	return root
}

// main runs the CLI and exits with status 1 when a command fails.
func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

// isTerminal reports whether f is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

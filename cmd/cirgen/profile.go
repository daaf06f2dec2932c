package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cirgen/internal/prof"
)

// setupProfiling starts the profilers named by the persistent flags. The
// returned cleanup reports write failures on the error stream.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	var p prof.Paths
	p.CPU, _ = flags.GetString("cpu-profile")
	p.Heap, _ = flags.GetString("mem-profile")
	p.Trace, _ = flags.GetString("runtime-trace")
	if p.Empty() {
		return func() {}, nil
	}
	pr, err := prof.Start(p)
	if err != nil {
		return nil, err
	}
	errOut := cmd.ErrOrStderr()
	return func() {
		if err := pr.Stop(); err != nil {
			fmt.Fprintf(errOut, "profiling: %v\n", err)
		}
	}, nil
}

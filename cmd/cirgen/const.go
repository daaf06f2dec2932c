package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cirgen/internal/cir"
	"cirgen/internal/diag"
	"cirgen/internal/driver"
	"cirgen/internal/llvmexport"
)

func newConstCmd() *cobra.Command {
	var llvm bool
	cmd := &cobra.Command{
		Use:   "const <unit.toml>",
		Short: "Fold the initializer of every global to a constant",
		Long:  "Prints the constant each global is initialized with, or notes that it needs dynamic initialization.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConst(cmd, args[0], llvm)
		},
	}
	cmd.Flags().BoolVar(&llvm, "llvm", false, "print constants as LLVM IR")
	return cmd
}

func runConst(cmd *cobra.Command, path string, llvm bool) error {
	e, err := prepare(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	bag := diag.NewBag(e.maxDiagnostics)
	r := diag.BagReporter{Bag: bag}
	s, err := driver.Open(cmd.Context(), path, e.cfg, r)
	if err == nil {
		err = s.CheckLayouts(r)
	}
	if err != nil {
		printDiagnostics(e.errOut, bag)
		if bag.HasErrors() {
			return errDiagnostics
		}
		return err
	}

	var x *llvmexport.Exporter
	if llvm {
		x = llvmexport.New(s.Types.DL)
		for _, v := range s.Unit.Globals {
			if _, err := x.DeclareGlobal(v.Name, s.Types.ConvertType(v.Type)); err != nil {
				return err
			}
		}
	}
	ctx := s.Types.Ctx
	for _, v := range s.Unit.Globals {
		c := s.Consts.TryEmitForInitializer(v)
		switch {
		case c == cir.NoAttr:
			fmt.Fprintf(e.out, "@%s: dynamic initialization\n", v.Name)
		case x != nil:
			lc, err := x.Const(c)
			if err != nil {
				return fmt.Errorf("@%s: %w", v.Name, err)
			}
			fmt.Fprintf(e.out, "@%s = %s\n", v.Name, lc)
		default:
			fmt.Fprintf(e.out, "@%s = %s\n", v.Name, ctx.AttrString(c))
		}
	}
	printDiagnostics(e.errOut, bag)
	if bag.HasErrors() {
		return errDiagnostics
	}
	return nil
}

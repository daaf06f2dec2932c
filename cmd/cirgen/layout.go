package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"cirgen/internal/cir"
	"cirgen/internal/diag"
	"cirgen/internal/driver"
	"cirgen/internal/layout"
	"cirgen/internal/llvmexport"
	"cirgen/internal/recordlayout"
	"cirgen/internal/types"
)

type layoutOptions struct {
	target string
	record string
	llvm   bool
}

func newLayoutCmd() *cobra.Command {
	var opts layoutOptions
	cmd := &cobra.Command{
		Use:   "layout <unit.toml>",
		Short: "Print the physical layout of every record in a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "", "target triple (overrides the configuration)")
	cmd.Flags().StringVar(&opts.record, "record", "", "only print this record")
	cmd.Flags().BoolVar(&opts.llvm, "llvm", false, "also print each record as an LLVM type")
	return cmd
}

func runLayout(cmd *cobra.Command, path string, opts layoutOptions) error {
	e, err := prepare(cmd)
	if err != nil {
		return err
	}
	defer e.close()
	if opts.target != "" {
		if _, err := layout.ByTriple(opts.target); err != nil {
			return err
		}
		e.cfg = e.cfg.WithTriple(opts.target)
	}

	bag := diag.NewBag(e.maxDiagnostics)
	r := diag.BagReporter{Bag: bag}
	s, err := driver.Open(cmd.Context(), path, e.cfg, r)
	if err == nil {
		err = s.CheckLayouts(r)
	}
	printDiagnostics(e.errOut, bag)
	if err != nil {
		if bag.HasErrors() {
			dumpRing(cmd, e.tracer)
			return errDiagnostics
		}
		return err
	}

	var x *llvmexport.Exporter
	if opts.llvm {
		x = llvmexport.New(s.Types.DL)
	}
	found := false
	for _, rd := range s.Source.Records() {
		if !rd.IsComplete() || (opts.record != "" && rd.Name != opts.record) {
			continue
		}
		found = true
		if err := printRecord(e.out, s, rd, x); err != nil {
			return err
		}
	}
	if opts.record != "" && !found {
		return fmt.Errorf("no complete record %q in %s", opts.record, path)
	}
	return nil
}

// printRecord writes a header line, the chunk table of the complete
// object type and the field placement table.
func printRecord(w io.Writer, s *driver.Session, rd *types.RecordDecl, x *llvmexport.Exporter) error {
	src := s.Oracle.MustRecord(rd)
	rl := s.Types.RecordLayout(rd)
	ctx := s.Types.Ctx
	fmt.Fprintf(w, "%s %s  size=%d align=%d  %s\n", rd.Tag, rd.Name, src.Size, src.Align, ctx.TypeString(rl.CompleteObjectType))
	if rl.BaseSubobjectType != cir.NoType && rl.BaseSubobjectType != rl.CompleteObjectType {
		fmt.Fprintf(w, "  base subobject: %s\n", ctx.TypeString(rl.BaseSubobjectType))
	}

	rows := [][]string{{"offset", "size", "member", "type"}}
	for _, ch := range rl.Chunks(s.Types.DL) {
		if ch.Kind == recordlayout.ChunkPadding {
			rows = append(rows, []string{itoa(ch.Offset), itoa(ch.Size), "pad", ""})
			continue
		}
		rows = append(rows, []string{itoa(ch.Offset), itoa(ch.Size), strconv.Itoa(ch.Member), ctx.TypeString(ch.Type)})
	}
	writeTable(w, "  ", rows)

	if len(rd.Fields) > 0 {
		rows = [][]string{{"field", "bit offset", "member", "access"}}
		for _, f := range rd.Fields {
			name := f.Name
			if name == "" {
				name = "<unnamed>"
			}
			member, access := "-", ""
			if i, ok := rl.FieldIndex(f); ok {
				member = strconv.Itoa(i)
			}
			if bf, ok := rl.BitField(f); ok {
				access = fmt.Sprintf("bits %d+%d of i%d", bf.Offset, bf.Size, bf.StorageSize)
			}
			rows = append(rows, []string{name, itoa(src.FieldOffsets[f.Index]), member, access})
		}
		writeTable(w, "  ", rows)
	}

	if x != nil {
		lt, err := x.Type(rl.CompleteObjectType)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  llvm: %s = type %s\n", lt, lt.LLString())
	}
	return nil
}

// writeTable pads every column to its widest cell. Widths are display
// widths, so non-ASCII record names stay aligned.
func writeTable(w io.Writer, indent string, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		var sb strings.Builder
		sb.WriteString(indent)
		for i, cell := range row {
			if i == len(row)-1 {
				sb.WriteString(cell)
				break
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
			sb.WriteString("  ")
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"cirgen/internal/layout"
)

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the supported target triples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := [][]string{{"triple", "pointer", "endian", "int64 align", "register"}}
			for _, triple := range layout.Triples() {
				tg, err := layout.ByTriple(triple)
				if err != nil {
					return err
				}
				endian := "little"
				if tg.BigEndian {
					endian = "big"
				}
				rows = append(rows, []string{
					tg.Triple,
					strconv.FormatInt(tg.PtrSize*8, 10),
					endian,
					strconv.FormatInt(tg.Int64Align, 10),
					strconv.FormatInt(tg.RegisterWidth, 10),
				})
			}
			writeTable(cmd.OutOrStdout(), "", rows)
			return nil
		},
	}
}

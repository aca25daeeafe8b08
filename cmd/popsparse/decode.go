package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/x448/float16"

	"github.com/alexshuang/poplibs-sub002/internal/bucketfile"
	"github.com/alexshuang/poplibs-sub002/popsparse"
)

func newDecodeCommand() *cobra.Command {
	var entries bool
	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode a bucket file written by partition --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bucketfile.ReadFile(args[0])
			if err != nil {
				return err
			}
			b.Config.Logger = popsparse.NewKlogLogger()
			out := cmd.OutOrStdout()
			switch b.DataType {
			case popsparse.Half:
				return runDecode[float16.Float16](out, b, entries)
			case popsparse.Float:
				return runDecode[float32](out, b, entries)
			default:
				return runDecode[float64](out, b, entries)
			}
		},
	}
	cmd.Flags().BoolVar(&entries, "entries", false, "Print every non-zero as row, column, value")
	return cmd
}

func runDecode[T popsparse.Scalar](out io.Writer, b *bucketfile.Buckets, entries bool) error {
	p, err := popsparse.New[T](b.Config)
	if err != nil {
		return err
	}
	nz, err := bucketfile.NzValues[T](b)
	if err != nil {
		return err
	}
	coo, err := p.Decode(b.MetaInfo, nz)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%dx%d matrix, %d non-zeros, %d nodes, %s\n",
		coo.NumRows, coo.NumColumns, coo.NumNonZeros(), p.NumBuckets(), p.DataType())
	if !entries {
		return nil
	}

	// Decoded matrices are ordered by row, then column.
	for _, e := range coo.Entries() {
		fmt.Fprintf(out, "%d\t%d\t%v\n", e.Row, e.Column, popsparse.ToFloat64(e.Value))
	}
	return nil
}

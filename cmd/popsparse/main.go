// Package main provides the popsparse CLI.
//
// Usage:
//
//	popsparse version
//	popsparse partition --rows 1024 --cols 1024 --x-splits 8 --y-splits 8 --density 0.01
//	popsparse partition --config problem.yaml --seed 7 -v=3 -o buckets.safetensors
//	popsparse decode buckets.safetensors
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const version = "v0.0.1-dev"

func main() {
	defer klog.Flush()
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "popsparse",
		Short:        "Partition sparse matrices over the nodes of a sparse-dense matmul",
		SilenceUsage: true,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(newVersionCommand(), newPartitionCommand(), newDecodeCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "popsparse %s\n", version)
		},
	}
}

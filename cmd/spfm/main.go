// Command spfm deconvolves fMRI voxel time series into sparse activity
// estimates (paradigm free mapping).
//
// Usage:
//
//	spfm run -i data.1D -o out/sub01 --tr 2
//	spfm run -i echo1.1D -i echo2.1D -i echo3.1D --te 14,38,62 -o out/me --criterion factor
//	spfm run -c spfm.yaml -i data.1D -o out/sub01 --metrics-addr :9090
//	spfm version
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "spfm"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Sparse paradigm free mapping of fMRI time series",
		Long: `spfm estimates the activity-inducing signal of each voxel by sparse
deconvolution with a haemodynamic response function.

Input files are AFNI .1D matrices with one row per timepoint and one
column per voxel. Multi-echo data is passed as one file per echo.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newRunCmd(), newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}

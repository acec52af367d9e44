// Command hrfinfo prints temporal and spectral properties of haemodynamic
// response functions.
//
// Usage:
//
//	hrfinfo [flags] [model ...]
//
// Without arguments it prints info for all built-in models. A model may also
// be the path of a .1D or .txt kernel file.
//
// Examples:
//
//	hrfinfo spm
//	hrfinfo -tr 0.8 -length 32 spm glover
//	hrfinfo -samples glover
//	hrfinfo -list
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-spfm/spfm/hrf"
)

type modelEntry struct {
	name string
	desc string
}

var registry = []modelEntry{
	{hrf.ModelSPM, "SPM canonical double gamma (peak 6 s, undershoot 16 s)"},
	{hrf.ModelGlover, "Glover double gamma (peak 6 s, undershoot 12 s)"},
}

func main() {
	tr := flag.Float64("tr", 2, "repetition time in seconds")
	length := flag.Float64("length", 0, "HRF duration in seconds (0 = model default)")
	ratio := flag.Float64("ratio", math.NaN(), "undershoot ratio of the gamma models")
	list := flag.Bool("list", false, "list available model names")
	samples := flag.Bool("samples", false, "print the sampled kernel instead of the metrics")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hrfinfo [flags] [model ...]\n\n")
		fmt.Fprintf(os.Stderr, "Prints temporal and spectral properties of HRF models.\n")
		fmt.Fprintf(os.Stderr, "Without arguments, prints info for all built-in models.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hrfinfo spm glover\n")
		fmt.Fprintf(os.Stderr, "  hrfinfo -tr 0.8 -length 32 spm\n")
		fmt.Fprintf(os.Stderr, "  hrfinfo -samples kernel.1D\n")
		fmt.Fprintf(os.Stderr, "  hrfinfo -list\n")
	}
	flag.Parse()

	if *list {
		printList()
		return
	}

	names := flag.Args()
	if len(names) == 0 {
		for _, e := range registry {
			names = append(names, e.name)
		}
	}

	var opts []hrf.ModelOption
	if *length > 0 {
		opts = append(opts, hrf.WithLength(*length))
	}
	if !math.IsNaN(*ratio) {
		opts = append(opts, hrf.WithRatio(*ratio))
	}

	kernels := resolveKernels(names, *tr, opts)
	if len(kernels) == 0 {
		fmt.Fprintf(os.Stderr, "error: no usable HRF models\n")
		os.Exit(1)
	}

	if *samples {
		printSamples(kernels, *tr)
		return
	}
	printAnalysis(kernels, *tr)
}

func printList() {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range registry {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.name, e.desc)
	}
	_ = tw.Flush()
}

type kernel struct {
	name string
	h    []float64
}

func resolveKernels(names []string, tr float64, opts []hrf.ModelOption) []kernel {
	var result []kernel
	for _, name := range names {
		name = strings.TrimSpace(name)
		h, err := hrf.Generate(name, tr, opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: %v (use -list to see available)\n", name, err)
			continue
		}
		result = append(result, kernel{name, h})
	}
	return result
}

func printAnalysis(kernels []kernel, tr float64) {
	a := hrf.NewAnalyzer(tr)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "HRF\tTR [s]\tSamples\tTTP [s]\tFWHM [s]\tUndershoot\tTTU [s]\tArea\tPeak [Hz]\tBW 3dB [Hz]\tLipschitz\n"); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: failed to write output header: %v\n", err)
		return
	}
	if _, err := fmt.Fprintf(tw, "---\t------\t-------\t-------\t--------\t----------\t-------\t----\t---------\t-----------\t---------\n"); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: failed to write output header: %v\n", err)
		return
	}

	for _, k := range kernels {
		m, err := a.Analyze(k.h)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "warning: %s: %v\n", k.name, err)
			continue
		}
		if _, err := fmt.Fprintf(tw, "%s\t%.3g\t%d\t%.2f\t%.2f\t%.4f\t%.2f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			k.name,
			tr,
			m.Length,
			m.TimeToPeak,
			m.FWHM,
			m.Undershoot,
			m.TimeUndershoot,
			m.Area,
			m.PeakFrequency,
			m.Bandwidth,
			m.Lipschitz,
		); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: failed to write output row: %v\n", err)
			return
		}
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}
}

func printSamples(kernels []kernel, tr float64) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := []string{"t [s]"}
	n := 0
	for _, k := range kernels {
		header = append(header, k.name)
		n = max(n, len(k.h))
	}
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i := range n {
		row := []string{fmt.Sprintf("%.2f", float64(i)*tr)}
		for _, k := range kernels {
			if i < len(k.h) {
				row = append(row, fmt.Sprintf("%.6f", k.h[i]))
			} else {
				row = append(row, "")
			}
		}
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}
}

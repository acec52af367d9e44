package hrf

import (
	"fmt"
	"testing"
)

func BenchmarkApply(b *testing.B) {
	h, err := SPM(1)
	if err != nil {
		b.Fatal(err)
	}
	for _, n := range []int{200, 800} {
		dense, _ := Build(h, n)
		lazy, _ := NewConvolution(h, n)
		x := make([]float64, n)
		x[n/4] = 1
		dst := make([]float64, n)

		b.Run(fmt.Sprintf("dense_n=%d", n), func(b *testing.B) {
			for range b.N {
				dense.Apply(dst, x)
			}
		})
		b.Run(fmt.Sprintf("fft_n=%d", n), func(b *testing.B) {
			for range b.N {
				lazy.Apply(dst, x)
			}
		})
	}
}

package core

import (
	"errors"
	"math"
	"testing"
)

func TestEntryNorms(t *testing.T) {
	e := Entry{RSS: 16}
	if got := e.RMS(4); got != 2 {
		t.Fatalf("RMS(4) = %v, want 2", got)
	}
	if got := e.RMS(0); got != 0 {
		t.Fatalf("RMS(0) = %v, want 0", got)
	}
}

func TestPathEmpty(t *testing.T) {
	if !(Path{}).Empty() {
		t.Fatal("nil path should be empty")
	}
	p := Path{{Lambda: 2}, {Lambda: 1, Support: 1}}
	if p.Empty() {
		t.Fatal("path with support should not be empty")
	}
}

func TestErrorWrapping(t *testing.T) {
	err := Configf("bad length %d", -1)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if errors.Is(err, ErrNumerical) {
		t.Fatal("configuration error must not match ErrNumerical")
	}
	if !errors.Is(Numericalf("nan"), ErrNumerical) {
		t.Fatal("expected ErrNumerical")
	}
	if !errors.Is(Selectionf("empty"), ErrSelection) {
		t.Fatal("expected ErrSelection")
	}
}

func TestEchoTimesSeconds(t *testing.T) {
	got := EchoTimesSeconds([]float64{15.4, 29.7})
	if math.Abs(got[0]-0.0154) > 1e-12 || math.Abs(got[1]-0.0297) > 1e-12 {
		t.Fatalf("ms conversion = %v", got)
	}
	got = EchoTimesSeconds([]float64{0})
	if got[0] != 0 {
		t.Fatalf("single echo = %v, want [0]", got)
	}
	got = EchoTimesSeconds([]float64{0.015, 0.03})
	if got[0] != 0.015 {
		t.Fatalf("seconds must pass through, got %v", got)
	}
}

package core

import "testing"

func TestApplyAcquisitionOptions(t *testing.T) {
	acq := ApplyAcquisitionOptions(WithTR(1.5), WithEchoTimes(15, 30, 45))
	if acq.TR != 1.5 {
		t.Fatalf("TR = %v, want 1.5", acq.TR)
	}
	if acq.Echoes() != 3 || !acq.MultiEcho() {
		t.Fatalf("echoes = %d, multi = %v", acq.Echoes(), acq.MultiEcho())
	}
	if acq.EchoTimes[0] != 0.015 {
		t.Fatalf("TE[0] = %v, want 0.015", acq.EchoTimes[0])
	}
}

func TestInvalidAcquisitionOptionsIgnored(t *testing.T) {
	acq := ApplyAcquisitionOptions(WithTR(0), WithEchoTimes(), nil)
	def := DefaultAcquisition()
	if acq.TR != def.TR || len(acq.EchoTimes) != 1 || acq.MultiEcho() {
		t.Fatalf("acq = %#v, want defaults", acq)
	}
}

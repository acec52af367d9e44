package core_test

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-spfm/spfm/core"
)

func ExampleApplyAcquisitionOptions() {
	acq := core.ApplyAcquisitionOptions(
		core.WithTR(2),
		core.WithEchoTimes(15.4, 29.7, 44.0),
	)

	fmt.Printf("tr=%.1f echoes=%d te0=%.4f\n", acq.TR, acq.Echoes(), acq.EchoTimes[0])

	// Output:
	// tr=2.0 echoes=3 te0=0.0154
}

func ExampleConfigf() {
	err := core.Configf("kernel length %d", 0)
	fmt.Println(errors.Is(err, core.ErrConfiguration))

	// Output:
	// true
}

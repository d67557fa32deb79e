package recorder

import (
	"fmt"
	"time"
)

// nullEncoder is the default Encoder used when no host hardware encoder
// binding has been wired in, mirroring internal/decoder.nullCodec's
// stance on the decode side: Configure always fails, so Recorder.Start
// returns that configure error for the encode branch instead of silently
// accepting frames it cannot persist.
type nullEncoder struct{}

// NewNullEncoderFactory returns an Options.NewEncoder that always fails
// to configure. Swap it for a real binding (e.g. recorder/swencode,
// built with the swdecode tag) at process wiring time.
func NewNullEncoderFactory() func() Encoder {
	return func() Encoder { return nullEncoder{} }
}

func (nullEncoder) Configure(width, height int) error {
	return fmt.Errorf("recorder: no hardware encoder binding available for %dx%d (build with a host encoder, e.g. -tags swdecode)", width, height)
}

func (nullEncoder) DequeueInputSlot(timeout time.Duration) (int, bool) { return 0, false }
func (nullEncoder) SubmitInput(index int, data []byte, ptsMicros int64, eos bool) error {
	return fmt.Errorf("recorder: nullEncoder has no input slots")
}
func (nullEncoder) DequeueOutput(timeout time.Duration) EncodedOutput { return EncodedOutput{} }
func (nullEncoder) Release()                                         {}

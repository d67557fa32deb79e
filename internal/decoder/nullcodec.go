package decoder

import (
	"fmt"
	"time"
)

// nullCodec is the default Codec used when no host hardware decoder
// binding has been wired in (the production case: the embedding platform
// supplies a real Codec the way it supplies the native NDI runtime).
// Configure always fails, so EnsureInitialized returns an error and the
// Router simply drops compressed frames rather than panicking.
type nullCodec struct{}

// NewNullCodecFactory returns a Decoder.NewCodec that always fails to
// configure. Swap it for a real binding (e.g. decoder/swdecode, built
// with the swdecode tag) at process wiring time.
func NewNullCodecFactory() func() Codec {
	return func() Codec { return nullCodec{} }
}

func (nullCodec) Configure(mime string, width, height int, surface uintptr) error {
	return fmt.Errorf("decoder: no hardware codec binding available for %s (build with a host codec, e.g. -tags swdecode)", mime)
}

func (nullCodec) DequeueInputSlot(timeout time.Duration) (int, bool) { return 0, false }
func (nullCodec) SubmitInput(index int, data []byte, ptsMicros int64) error {
	return fmt.Errorf("decoder: nullCodec has no input slots")
}
func (nullCodec) DequeueOutput(timeout time.Duration) (bool, bool, int, int, string) {
	return false, false, 0, 0, ""
}
func (nullCodec) ReleaseOutput() {}
func (nullCodec) Release()       {}

package recorder

import "time"

// Encoder abstracts the host hardware video encoder used by the
// uncompressed-input branch of the recorder (spec.md §4.6.2): configured
// once for H.264/NV12/8Mbps/30fps/1s-keyframe-interval, fed NV12 buffers,
// drained for encoded samples. Mirrors internal/decoder.Codec's
// input/output slot shape, applied to the opposite data direction.
type Encoder interface {
	// Configure sets up the encoder for the given dimensions. Bitrate is
	// fixed at 8 Mbps, frame rate at 30, I-frame interval at 1s, color
	// format NV12 — these are encoder-internal defaults, not parameters.
	Configure(width, height int) error
	// DequeueInputSlot blocks up to timeout for a free input slot.
	DequeueInputSlot(timeout time.Duration) (index int, ok bool)
	// SubmitInput copies NV12 data into the given slot and submits it. If
	// eos is true, data may be empty (end-of-stream marker).
	SubmitInput(index int, data []byte, ptsMicros int64, eos bool) error
	// DequeueOutput drains one encoded sample, or formatChanged+avcC on
	// the first INFO_OUTPUT_FORMAT_CHANGED event, or endOfStream once the
	// EOS marker has propagated through the pipeline.
	DequeueOutput(timeout time.Duration) (out EncodedOutput)
	// Release tears the encoder down.
	Release()
}

// EncodedOutput is one drained result from Encoder.DequeueOutput.
type EncodedOutput struct {
	Ready         bool
	FormatChanged bool
	AVCC          []byte // SPS/PPS from the format-changed event, AVCC-framed
	Sample        []byte
	PTSMicros     int64
	Keyframe      bool
	EndOfStream   bool
}

// drainRetryLimit bounds the end-of-stream TRY_AGAIN_LATER retry loop,
// per spec.md §4.6.2 step 3.
const drainRetryLimit = 15

// outputSlotTimeout is the per-attempt DequeueOutput timeout while
// draining at end-of-stream.
const outputSlotTimeout = 10 * time.Millisecond

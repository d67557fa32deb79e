package recorder

import (
	"sync"
	"time"
)

// fakeEncoder is a software stand-in for the host hardware encoder,
// driving the Recorder's encode branch deterministically for tests:
// the first SubmitInput call triggers a format-changed AVCC event, every
// call (including that first one) also yields a keyframe sample.
type fakeEncoder struct {
	mu sync.Mutex

	configured    bool
	width, height int

	formatSent bool
	pending    []EncodedOutput
	released   bool
}

func (f *fakeEncoder) Configure(width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = true
	f.width, f.height = width, height
	return nil
}

func (f *fakeEncoder) DequeueInputSlot(timeout time.Duration) (int, bool) {
	return 0, true
}

func (f *fakeEncoder) SubmitInput(index int, data []byte, ptsMicros int64, eos bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if eos {
		f.pending = append(f.pending, EncodedOutput{Ready: true, EndOfStream: true})
		return nil
	}

	if !f.formatSent {
		sps := []byte{0x67, 0xAA}
		pps := []byte{0x68, 0xBB}
		f.pending = append(f.pending, EncodedOutput{
			Ready:         true,
			FormatChanged: true,
			AVCC:          AnnexBToAVCC(annexB(sps, pps)),
		})
		f.formatSent = true
	}

	idr := annexB([]byte{0x65, 0x01})
	f.pending = append(f.pending, EncodedOutput{Ready: true, Sample: idr, PTSMicros: ptsMicros, Keyframe: true})
	return nil
}

func (f *fakeEncoder) DequeueOutput(timeout time.Duration) EncodedOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return EncodedOutput{}
	}
	out := f.pending[0]
	f.pending = f.pending[1:]
	return out
}

func (f *fakeEncoder) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

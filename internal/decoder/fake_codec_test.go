package decoder

import (
	"sync"
	"time"
)

// fakeCodec is a software stand-in for the host hardware codec, driving
// the Decoder's threads deterministically for tests.
type fakeCodec struct {
	mu            sync.Mutex
	configureErr  error
	mime          string
	width, height int
	surface       uintptr

	inputSlotAvailable bool
	submitted          []fakeSubmission
	outputReady        bool
	released           bool
}

type fakeSubmission struct {
	index     int
	data      []byte
	ptsMicros int64
}

func (f *fakeCodec) Configure(mime string, width, height int, surface uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configureErr != nil {
		return f.configureErr
	}
	f.mime, f.width, f.height, f.surface = mime, width, height, surface
	f.inputSlotAvailable = true
	return nil
}

func (f *fakeCodec) DequeueInputSlot(timeout time.Duration) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inputSlotAvailable {
		return 0, true
	}
	return 0, false
}

func (f *fakeCodec) SubmitInput(index int, data []byte, ptsMicros int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, fakeSubmission{index, append([]byte(nil), data...), ptsMicros})
	f.outputReady = true
	return nil
}

func (f *fakeCodec) DequeueOutput(timeout time.Duration) (ready bool, formatChanged bool, width, height int, mime string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outputReady {
		f.outputReady = false
		return true, false, f.width, f.height, f.mime
	}
	return false, false, 0, 0, ""
}

func (f *fakeCodec) ReleaseOutput() {}

func (f *fakeCodec) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

func (f *fakeCodec) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

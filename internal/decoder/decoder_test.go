package decoder

import (
	"testing"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
)

func TestEnsureInitialized_ConfiguresCodec(t *testing.T) {
	var codec *fakeCodec
	d := New(func() Codec {
		codec = &fakeCodec{}
		return codec
	})

	if err := d.EnsureInitialized(1920, 1080, ndinative.FourCCH264, 0xdead); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	if !d.Initialized() {
		t.Fatalf("expected Initialized() true")
	}
	if codec.mime != "video/avc" || codec.width != 1920 || codec.height != 1080 {
		t.Fatalf("codec misconfigured: %+v", codec)
	}

	d.Teardown()
	if d.Initialized() {
		t.Fatalf("expected Initialized() false after Teardown")
	}
	if !codec.released {
		t.Fatalf("expected codec to be released")
	}
}

func TestEnsureInitialized_RejectsUncompressed(t *testing.T) {
	d := New(func() Codec { return &fakeCodec{} })
	if err := d.EnsureInitialized(1920, 1080, ndinative.FourCCUYVY, 0); err == nil {
		t.Fatalf("expected error for non-compressed fourcc")
	}
}

func TestSubmit_DropsOldestWhenQueueFull(t *testing.T) {
	d := New(func() Codec { return &fakeCodec{} })

	for i := 0; i < inputQueueSize+2; i++ {
		d.Submit([]byte{byte(i)}, int64(i), ndinative.FrameRate{Num: 30, Den: 1})
	}

	d.queueMu.Lock()
	n := len(d.queue)
	first := d.queue[0].ptsMicros
	d.queueMu.Unlock()

	if n != inputQueueSize {
		t.Fatalf("expected queue capped at %d, got %d", inputQueueSize, n)
	}
	if first != 2 {
		t.Fatalf("expected oldest two entries evicted, first pts=%d", first)
	}
}

func TestEnsureInitialized_ReconfiguresOnDimensionChange(t *testing.T) {
	var codecs []*fakeCodec
	d := New(func() Codec {
		c := &fakeCodec{}
		codecs = append(codecs, c)
		return c
	})

	if err := d.EnsureInitialized(1280, 720, ndinative.FourCCH264, 1); err != nil {
		t.Fatalf("first EnsureInitialized: %v", err)
	}
	if err := d.EnsureInitialized(1920, 1080, ndinative.FourCCH264, 1); err != nil {
		t.Fatalf("second EnsureInitialized: %v", err)
	}

	if len(codecs) != 2 {
		t.Fatalf("expected a new codec on dimension change, got %d codecs", len(codecs))
	}
	if !codecs[0].released {
		t.Fatalf("expected first codec released on reconfigure")
	}

	d.Teardown()
}

func TestSubmit_RecordsLastFrameRate(t *testing.T) {
	d := New(func() Codec { return &fakeCodec{} })

	d.Submit([]byte{1}, 0, ndinative.FrameRate{Num: 30, Den: 1})
	if got := d.FrameRate(); got.Num != 30 || got.Den != 1 {
		t.Fatalf("expected FrameRate 30/1, got %+v", got)
	}

	d.Submit([]byte{2}, 33333, ndinative.FrameRate{Num: 60000, Den: 1001})
	if got := d.FrameRate(); got.Num != 60000 || got.Den != 1001 {
		t.Fatalf("expected FrameRate updated to 60000/1001, got %+v", got)
	}
}

func TestInputLoop_SubmitsQueuedData(t *testing.T) {
	var codec *fakeCodec
	d := New(func() Codec {
		codec = &fakeCodec{}
		return codec
	})

	if err := d.EnsureInitialized(640, 360, ndinative.FourCCHEVC, 0); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	d.Submit([]byte{1, 2, 3}, 100, ndinative.FrameRate{Num: 60, Den: 1})

	deadline := time.Now().Add(time.Second)
	for codec.submissionCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if codec.submissionCount() == 0 {
		t.Fatalf("expected input loop to submit queued data")
	}

	d.Teardown()
}

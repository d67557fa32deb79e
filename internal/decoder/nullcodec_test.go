package decoder

import (
	"testing"

	"github.com/e7canasta/ndicore/internal/ndinative"
)

func TestNullCodec_ConfigureFails(t *testing.T) {
	c := NewNullCodecFactory()()
	if err := c.Configure("video/avc", 1920, 1080, 0); err == nil {
		t.Fatalf("expected nullCodec.Configure to fail")
	}
}

func TestEnsureInitialized_WithNullCodecFactoryReturnsError(t *testing.T) {
	d := New(NewNullCodecFactory())
	err := d.EnsureInitialized(1920, 1080, ndinative.FourCCH264, 0)
	if err == nil {
		t.Fatalf("expected error when no hardware codec binding is wired in")
	}
}

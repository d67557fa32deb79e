package recorder

import "testing"

func TestNullEncoder_ConfigureFails(t *testing.T) {
	e := NewNullEncoderFactory()()
	if err := e.Configure(1920, 1080); err == nil {
		t.Fatalf("expected nullEncoder.Configure to fail")
	}
}

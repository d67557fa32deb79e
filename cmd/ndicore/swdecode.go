//go:build swdecode

package main

import (
	"github.com/e7canasta/ndicore/internal/decoder"
	"github.com/e7canasta/ndicore/internal/decoder/swdecode"
	"github.com/e7canasta/ndicore/internal/recorder"
	"github.com/e7canasta/ndicore/internal/recorder/swencode"
)

func init() {
	newCodecFactory = func() decoder.Codec { return swdecode.New() }
	newEncoderFactory = func() recorder.Encoder { return swencode.New() }
}

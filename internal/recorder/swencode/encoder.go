//go:build swdecode

// Package swencode is the build-tagged (swdecode) software fallback for
// internal/recorder.Encoder: an NV12-in, Annex-B-H.264-out GStreamer
// pipeline used for local dev/test encode when no host hardware encoder
// binding is present.
//
// Grounded on the same element-by-element gst.NewElement/SetProperty
// build and app.Sink NewSampleFunc callback idiom as
// internal/decoder/swdecode, run in the opposite (encode) direction:
// appsrc(NV12) ! videoconvert ! x264enc ! h264parse ! appsink.
package swencode

import (
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/ndicore/internal/recorder"
)

// bitrateKbps and keyIntMax match the fixed encoder defaults documented
// on internal/recorder.Encoder (8 Mbps, 1s keyframe interval at 30fps).
const (
	bitrateKbps = 8000
	keyIntMax   = 30
)

// Encoder implements recorder.Encoder with a GStreamer software encode
// pipeline. Each Configure call builds a fresh pipeline; Release tears it
// down.
type Encoder struct {
	pipeline *gst.Pipeline
	appSrc   *app.Source
	appSink  *app.Sink

	outputs chan recorder.EncodedOutput
	ptsQ    chan int64

	formatSent bool
}

// New constructs an unconfigured Encoder.
func New() *Encoder { return &Encoder{} }

// Configure builds the encode pipeline for width x height NV12 input.
func (e *Encoder) Configure(width, height int) error {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("swencode: new pipeline: %w", err)
	}

	appSrc, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("swencode: new appsrc: %w", err)
	}
	appSrc.SetProperty("is-live", true)
	appSrc.SetProperty("format", int(gst.FormatTime))
	appSrc.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,format=NV12,width=%d,height=%d,framerate=30/1", width, height)))

	videoconvert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("swencode: new videoconvert: %w", err)
	}

	x264enc, err := gst.NewElement("x264enc")
	if err != nil {
		return fmt.Errorf("swencode: new x264enc: %w", err)
	}
	x264enc.SetProperty("bitrate", uint(bitrateKbps))
	x264enc.SetProperty("key-int-max", uint(keyIntMax))

	h264parse, err := gst.NewElement("h264parse")
	if err != nil {
		return fmt.Errorf("swencode: new h264parse: %w", err)
	}
	h264parse.SetProperty("config-interval", -1)

	capsFilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("swencode: new capsfilter: %w", err)
	}
	capsFilter.SetProperty("caps", gst.NewCapsFromString("video/x-h264,stream-format=byte-stream,alignment=au"))

	appSink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("swencode: new appsink: %w", err)
	}
	appSink.SetProperty("emit-signals", false)
	appSink.SetProperty("sync", false)

	elems := []*gst.Element{appSrc.Element, videoconvert, x264enc, h264parse, capsFilter, appSink.Element}
	if err := pipeline.AddMany(elems...); err != nil {
		return fmt.Errorf("swencode: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(elems...); err != nil {
		return fmt.Errorf("swencode: link elements: %w", err)
	}

	outputs := make(chan recorder.EncodedOutput, 4)
	ptsQ := make(chan int64, 32)

	appSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			sample := sink.PullSample()
			if sample == nil {
				return gst.FlowOK
			}
			defer sample.Unref()

			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowOK
			}
			mapInfo := buffer.Map(gst.MapRead)
			defer buffer.Unmap()

			data := append([]byte(nil), mapInfo.Bytes()...)

			var pts int64
			select {
			case pts = <-ptsQ:
			default:
			}

			sps, pps, rest := recorder.SplitParameterSets(data)
			if sps != nil && pps != nil && !e.formatSent {
				avcc := recorder.AnnexBToAVCC(append(append([]byte(nil), sps...), pps...))
				select {
				case outputs <- recorder.EncodedOutput{Ready: true, FormatChanged: true, AVCC: avcc}:
					e.formatSent = true
				default:
				}
			}
			if len(rest) > 0 {
				keyframe := sps != nil
				select {
				case outputs <- recorder.EncodedOutput{Ready: true, Sample: rest, PTSMicros: pts, Keyframe: keyframe}:
				default:
					// Output queue full: drop this (newest) sample
					// rather than block the streaming thread.
				}
			}
			return gst.FlowOK
		},
	})

	if _, err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("swencode: set playing: %w", err)
	}

	e.pipeline = pipeline
	e.appSrc = appSrc
	e.appSink = appSink
	e.outputs = outputs
	e.ptsQ = ptsQ
	e.formatSent = false
	return nil
}

// DequeueInputSlot is a no-op single "slot": appsrc is push-based and has
// no slot indices, so this always succeeds immediately.
func (e *Encoder) DequeueInputSlot(timeout time.Duration) (int, bool) {
	return 0, e.appSrc != nil
}

// SubmitInput pushes one NV12 buffer, or signals end-of-stream when eos is
// true (data may be empty).
func (e *Encoder) SubmitInput(index int, data []byte, ptsMicros int64, eos bool) error {
	if eos {
		if ret := e.appSrc.EndStream(); ret != gst.FlowOK {
			return fmt.Errorf("swencode: end stream: flow return %v", ret)
		}
		return nil
	}

	select {
	case e.ptsQ <- ptsMicros:
	default:
	}

	buf := gst.NewBufferFromBytes(append([]byte(nil), data...))
	buf.SetPresentationTimestamp(time.Duration(ptsMicros) * time.Microsecond)
	if ret := e.appSrc.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("swencode: push buffer: flow return %v", ret)
	}
	return nil
}

// DequeueOutput waits up to timeout for one drained output: a
// format-changed AVCC event (once, before the first sample) or an encoded
// sample.
func (e *Encoder) DequeueOutput(timeout time.Duration) recorder.EncodedOutput {
	select {
	case out := <-e.outputs:
		return out
	case <-time.After(timeout):
		return recorder.EncodedOutput{}
	}
}

// Release tears the pipeline down.
func (e *Encoder) Release() {
	if e.pipeline == nil {
		return
	}
	_, _ = e.pipeline.SetState(gst.StateNull)
	e.pipeline = nil
	e.appSrc = nil
	e.appSink = nil
	if e.outputs != nil {
		close(e.outputs)
		e.outputs = nil
	}
}

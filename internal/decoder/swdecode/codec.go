//go:build swdecode

// Package swdecode is the build-tagged (swdecode) software fallback for
// internal/decoder.Codec: a GStreamer pipeline (appsrc ! {h264,h265}parse !
// avdec_h264/avdec_h265 ! videoconvert ! appsink) used for local dev/test
// decode when no host hardware codec binding is present.
//
// Grounded on the teacher's stream-capture pipeline construction
// (modules/stream-capture/internal/rtsp/pipeline.go's element-by-element
// gst.NewElement/SetProperty build, and callbacks.go's app.Sink
// NewSampleFunc → buffer-map → copy → channel idiom), adapted from a pull
// source (rtspsrc) to a push source (appsrc) since input here arrives as
// already-demuxed Annex-B access units rather than an RTP stream.
package swdecode

import (
	"fmt"
	"time"
	"unsafe"

	pointer "github.com/mattn/go-pointer"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/ndicore/internal/surface"
)

type outputSample struct {
	width, height int
	rgba          []byte
}

// Codec implements decoder.Codec with a GStreamer software decode
// pipeline. Each Configure call builds a fresh pipeline; Release tears it
// down.
type Codec struct {
	pipeline *gst.Pipeline
	appSrc   *app.Source
	appSink  *app.Sink

	width, height int
	target        surface.Surface

	samples chan outputSample
}

// New constructs an unconfigured Codec.
func New() *Codec {
	return &Codec{}
}

// Configure builds the decode pipeline for mime (video/avc or
// video/hevc) at width x height, binding surface as the resolved
// software render target.
func (c *Codec) Configure(mime string, width, height int, surfaceHandle uintptr) error {
	gst.Init(nil)

	if surfaceHandle != 0 {
		if s, ok := pointer.Restore(unsafe.Pointer(surfaceHandle)).(surface.Surface); ok { //nolint:govet // opaque native handle
			c.target = s
		}
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("swdecode: new pipeline: %w", err)
	}

	appSrc, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("swdecode: new appsrc: %w", err)
	}
	appSrc.SetProperty("is-live", true)
	appSrc.SetProperty("format", int(gst.FormatTime))

	parse, decodeElem, err := elementsFor(mime)
	if err != nil {
		return err
	}

	videoconvert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("swdecode: new videoconvert: %w", err)
	}

	capsFilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("swdecode: new capsfilter: %w", err)
	}
	capsFilter.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGBA"))

	appSink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("swdecode: new appsink: %w", err)
	}
	appSink.SetProperty("emit-signals", false)
	appSink.SetProperty("sync", false)

	elems := []*gst.Element{appSrc.Element, parse, decodeElem, videoconvert, capsFilter, appSink.Element}
	if err := pipeline.AddMany(elems...); err != nil {
		return fmt.Errorf("swdecode: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(elems...); err != nil {
		return fmt.Errorf("swdecode: link elements: %w", err)
	}

	samples := make(chan outputSample, 2)
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
			select {
			case samples <- outputSample{width: width, height: height, rgba: data}:
			default:
				// Output queue full: drop this (newest) sample
				// rather than block the streaming thread.
			}
			return gst.FlowOK
		},
	})

	if _, err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("swdecode: set playing: %w", err)
	}

	c.pipeline = pipeline
	c.appSrc = appSrc
	c.appSink = appSink
	c.width, c.height = width, height
	c.samples = samples
	return nil
}

func elementsFor(mime string) (parse, decode *gst.Element, err error) {
	switch mime {
	case "video/avc":
		parse, err = gst.NewElement("h264parse")
		if err != nil {
			return nil, nil, fmt.Errorf("swdecode: new h264parse: %w", err)
		}
		decode, err = gst.NewElement("avdec_h264")
		if err != nil {
			return nil, nil, fmt.Errorf("swdecode: new avdec_h264: %w", err)
		}
	case "video/hevc":
		parse, err = gst.NewElement("h265parse")
		if err != nil {
			return nil, nil, fmt.Errorf("swdecode: new h265parse: %w", err)
		}
		decode, err = gst.NewElement("avdec_h265")
		if err != nil {
			return nil, nil, fmt.Errorf("swdecode: new avdec_h265: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("swdecode: unsupported mime %q", mime)
	}
	return parse, decode, nil
}

// DequeueInputSlot is a no-op single "slot": appsrc is push-based and has
// no slot indices, so this always succeeds immediately.
func (c *Codec) DequeueInputSlot(timeout time.Duration) (int, bool) {
	return 0, c.appSrc != nil
}

// SubmitInput pushes data as one GStreamer buffer timestamped by
// ptsMicros.
func (c *Codec) SubmitInput(index int, data []byte, ptsMicros int64) error {
	buf := gst.NewBufferFromBytes(append([]byte(nil), data...))
	buf.SetPresentationTimestamp(time.Duration(ptsMicros) * time.Microsecond)
	if ret := c.appSrc.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("swdecode: push buffer: flow return %v", ret)
	}
	return nil
}

// DequeueOutput waits up to timeout for a decoded RGBA sample and blits it
// directly into the bound surface (surface-mode decode's stand-in: no
// separate readback path for this software codec).
func (c *Codec) DequeueOutput(timeout time.Duration) (ready bool, formatChanged bool, width, height int, mime string) {
	select {
	case out := <-c.samples:
		c.blit(out)
		return true, false, out.width, out.height, ""
	case <-time.After(timeout):
		return false, false, 0, 0, ""
	}
}

func (c *Codec) blit(out outputSample) {
	if c.target == nil {
		return
	}
	canvas, err := c.target.Lock()
	if err != nil {
		return
	}
	defer c.target.Unlock()
	_ = canvas.DrawRGBA(out.rgba, out.width, out.height)
}

// ReleaseOutput is a no-op: the sample was already consumed and blitted
// in DequeueOutput.
func (c *Codec) ReleaseOutput() {}

// Release tears the pipeline down.
func (c *Codec) Release() {
	if c.pipeline == nil {
		return
	}
	_, _ = c.pipeline.SetState(gst.StateNull)
	c.pipeline = nil
	c.appSrc = nil
	c.appSink = nil
	if c.samples != nil {
		close(c.samples)
		c.samples = nil
	}
}

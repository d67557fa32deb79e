// Command ndicore is the standalone ingest process: it wires the
// Finder/Receiver/FrameRouter/{Renderer,Decoder,Recorder} pipeline of
// spec.md §4 together with the optional MQTT health/control plane of
// internal/health, running until SIGINT/SIGTERM.
//
// Grounded on zsiec-prism/cmd/prism/main.go's shape: a signal-cancelled
// root context, an errgroup of long-running components, and a small
// app struct whose methods are the glue between them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/ndicore/internal/config"
	"github.com/e7canasta/ndicore/internal/decoder"
	finderpkg "github.com/e7canasta/ndicore/internal/finder"
	"github.com/e7canasta/ndicore/internal/health"
	"github.com/e7canasta/ndicore/internal/ndinative"
	"github.com/e7canasta/ndicore/internal/receiver"
	"github.com/e7canasta/ndicore/internal/recorder"
	"github.com/e7canasta/ndicore/internal/renderer"
	"github.com/e7canasta/ndicore/internal/router"
	"github.com/e7canasta/ndicore/internal/surface"
)

// newCodecFactory is overridden by cmd/ndicore/swdecode.go when built
// with -tags swdecode, swapping in a real GStreamer software decode
// path. Without that tag, compressed sources are accepted by the
// Router but dropped by the decoder with a logged error, matching a
// platform that has not wired in a host codec binding.
var newCodecFactory = decoder.NewNullCodecFactory()

// newEncoderFactory is overridden by cmd/ndicore/swdecode.go when built
// with -tags swdecode, swapping in a real GStreamer software encode path
// for the recorder's uncompressed-input branch. Without that tag,
// starting a recording of an uncompressed source returns an error,
// matching a platform that has not wired in a host encoder binding.
var newEncoderFactory = recorder.NewNullEncoderFactory()

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("ndicore: failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("ndicore: received signal, shutting down", "signal", sig)
		cancel()
	}()

	a, err := newApp(cfg)
	if err != nil {
		slog.Error("ndicore: failed to initialize", "error", err)
		os.Exit(1)
	}
	a.configPath = *configPath
	a.shutdown = cancel
	defer a.close()

	slog.Info("ndicore starting", "instance_id", cfg.InstanceID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runDiscovery(ctx) })
	g.Go(func() error { return a.runHealth(ctx) })

	if err := g.Wait(); err != nil {
		slog.Error("ndicore: fatal error", "error", err)
		os.Exit(1)
	}
}

// app is the glue between the ingest pipeline and the optional
// health/control plane. Exactly one of each component is alive for the
// process's lifetime, matching spec.md §1's "single active Receiver".
type app struct {
	cfg        *config.Config
	configPath string

	surface  *surface.MemSurface
	renderer *renderer.Renderer
	decoder  *decoder.Decoder
	recorder *recorder.Recorder
	router    *router.Router
	receiver  *receiver.Receiver
	finder    ndinative.Finder
	discovery *finderpkg.Discovery
	policy    *reconnectPolicyAdapter

	healthPub *health.Publisher
	control   *health.Handler
	shutdown  context.CancelFunc

	mu          sync.Mutex
	lastWidth   int
	lastHeight  int
	lastFourCC  ndinative.FourCC
	haveFrame   bool
	connectedAt atomic.Value // time.Time
}

func newApp(cfg *config.Config) (*app, error) {
	if !ndinative.Initialize() {
		return nil, fmt.Errorf("ndicore: native runtime failed to initialize")
	}

	a := &app{cfg: cfg}

	a.surface = surface.NewMemSurface()
	a.renderer = renderer.New(a.surface)
	a.decoder = decoder.New(newCodecFactory)
	a.recorder = recorder.New(recorder.Options{Dir: cfg.Recordings.Dir, NewEncoder: newEncoderFactory})
	a.router = router.New(a.renderer, a.decoder, a.recorder, a)
	a.router.OnDigestChange = func(digest string) { slog.Info("ndicore: video format", "digest", digest) }
	a.router.OnBitrateChange = func(bitrate string) { slog.Debug("ndicore: bitrate", "value", bitrate) }

	finder, err := ndinative.NewFinder(ndinative.FinderOptions{
		ShowLocal: cfg.Finder.ShowLocal,
		Groups:    splitGroups(cfg.Finder.Groups),
		ExtraIPs:  cfg.Finder.ExtraIPs,
	})
	if err != nil {
		return nil, fmt.Errorf("ndicore: create finder: %w", err)
	}
	a.finder = finder
	a.discovery = finderpkg.New(finder, a.maybeAutoConnect)

	a.policy = newReconnectPolicyAdapter(a)

	a.receiver = receiver.New(receiver.Options{
		Name:             cfg.Receiver.Name,
		Bandwidth:        bandwidthOf(cfg.Receiver.Bandwidth),
		ColorFormat:      colorFormatOf(cfg.Receiver.ColorFormat),
		AllowVideoFields: cfg.Receiver.AllowVideoFields,
		OnFrame:          a.onFrame,
		OnConnectionLost: func() { a.policy.OnError(context.Background()) },
		OnStateChange:    a.onStateChange,
	})

	if cfg.MQTT.Enabled {
		a.healthPub = health.NewPublisher(cfg, a.snapshot)
	}

	return a, nil
}

func (a *app) close() {
	a.receiver.DisconnectSync()
	a.decoder.Teardown()
	if a.recorder.IsRecording() {
		_ = a.recorder.Stop()
	}
	if a.control != nil {
		a.control.Stop()
	}
	if a.healthPub != nil {
		a.healthPub.Disconnect()
	}
	a.finder.Destroy()
	a.surface.Release()
	ndinative.Destroy()
}

// onFrame tracks the most recently seen geometry (for on-demand
// recording start) before handing the frame to the Router.
func (a *app) onFrame(frame *ndinative.VideoFrame) {
	a.mu.Lock()
	a.lastWidth, a.lastHeight, a.lastFourCC = frame.Width, frame.Height, frame.FourCC
	a.haveFrame = true
	a.mu.Unlock()

	a.router.Dispatch(frame)
}

func (a *app) onStateChange(state receiver.State, message string) {
	slog.Info("ndicore: connection state", "state", state.String(), "message", message)

	switch state {
	case receiver.StateConnected:
		a.connectedAt.Store(time.Now())
		a.receiver.SetSurface(a.surface.NativeHandle())
		source := a.receiver.Source()
		a.policy.OnConnected(source)
		a.persistLastSource(source)
	case receiver.StateError:
		a.policy.OnError(context.Background())
	case receiver.StateDisconnected:
		a.policy.OnDisconnected()
	}

	if a.healthPub != nil {
		if err := a.healthPub.PublishOnce(); err != nil {
			slog.Debug("ndicore: state-change health publish skipped", "error", err)
		}
	}
}

// Surface implements router.SurfaceProvider: this process always has a
// bound surface (the headless MemSurface), so it is never 0.
func (a *app) Surface() uintptr {
	return a.surface.NativeHandle()
}

func (a *app) snapshot() health.Snapshot {
	state, errMsg := a.receiver.State()
	perf := a.receiver.Performance()
	rec := a.recorder.State()

	connectedSince := ""
	if t, ok := a.connectedAt.Load().(time.Time); ok && state == receiver.StateConnected {
		connectedSince = t.UTC().Format(time.RFC3339)
	}

	errCategory := ""
	if state == receiver.StateError {
		errCategory = a.receiver.ErrorCategory().String()
	}

	return health.Snapshot{
		ConnectedSince:     connectedSince,
		ConnectionState:    state.String(),
		SourceName:         a.receiver.SourceName(),
		ErrorMessage:       errMsg,
		ErrorCategory:      errCategory,
		TotalVideoFrames:   perf.TotalVideoFrames,
		DroppedVideoFrames: perf.DroppedVideoFrames,
		TotalAudioFrames:   perf.TotalAudioFrames,
		DroppedAudioFrames: perf.DroppedAudioFrames,
		Quality:            perf.Quality(),
		RecordingState:     rec.Kind,
		RecordingFile:      rec.File,
		RecordingMs:        rec.DurationMs,
		RecordingSessionID: rec.SessionID,
		AutoReconnecting:   a.policy.IsReconnecting(),
		ReconnectAttempt:   a.policy.Attempts(),
	}
}

// runDiscovery drives the Finder's wait/poll loop (internal/finder) and
// auto-connects to the preferred source on each emitted snapshot, per
// spec.md §4.1 (Finder) and §6's last_source_name preference.
func (a *app) runDiscovery(ctx context.Context) error {
	a.discovery.Run(ctx)
	return nil
}

func (a *app) maybeAutoConnect(sources []ndinative.SourceDescriptor) {
	state, _ := a.receiver.State()
	if state == receiver.StateConnected || state == receiver.StateConnecting {
		return
	}

	target, ok := pickSource(sources, a.cfg.Preferences.LastSourceName)
	if !ok {
		return
	}

	slog.Info("ndicore: auto-connecting", "source", target.Name)
	if err := a.receiver.Connect(target); err != nil {
		slog.Warn("ndicore: auto-connect failed", "source", target.Name, "error", err)
	}
}

// persistLastSource best-effort writes the newly connected source back to
// the config file as the preferences store's last_source_name/
// last_source_url (spec.md §6), so the next boot's auto-connect prefers it.
func (a *app) persistLastSource(source ndinative.SourceDescriptor) {
	a.cfg.Preferences.LastSourceName = source.Name
	a.cfg.Preferences.LastSourceURL = source.URL
	if err := config.Save(a.configPath, a.cfg); err != nil {
		slog.Warn("ndicore: failed to persist last connected source", "error", err)
	}
}

func pickSource(sources []ndinative.SourceDescriptor, preferredName string) (ndinative.SourceDescriptor, bool) {
	if len(sources) == 0 {
		return ndinative.SourceDescriptor{}, false
	}
	if preferredName != "" {
		for _, s := range sources {
			if s.Name == preferredName {
				return s, true
			}
		}
	}
	return sources[0], true
}

// runHealth connects the MQTT publisher/control plane (if enabled) and
// keeps them alive until ctx is cancelled.
func (a *app) runHealth(ctx context.Context) error {
	if a.healthPub == nil {
		<-ctx.Done()
		return nil
	}

	if err := a.healthPub.Connect(ctx); err != nil {
		return fmt.Errorf("ndicore: health publisher: %w", err)
	}

	a.control = health.NewHandler(a.cfg, a.healthPub.Client(), health.Callbacks{
		OnConnect: func(sourceName string) error {
			// The control plane only supplies a bare name; no URL is
			// available at this layer (unlike Finder-discovered sources).
			return a.receiver.Connect(ndinative.SourceDescriptor{Name: sourceName})
		},
		OnDisconnect:       func() error { a.receiver.Disconnect(); return nil },
		OnStartRecording:   a.startRecording,
		OnStopRecording:    a.recorder.Stop,
		OnSetAutoReconnect: a.policy.SetEnabled,
		OnShutdown: func() error {
			if a.shutdown != nil {
				a.shutdown()
			}
			return nil
		},
	})
	if err := a.control.Start(ctx); err != nil {
		return fmt.Errorf("ndicore: control handler: %w", err)
	}

	<-ctx.Done()
	return nil
}

func (a *app) startRecording() error {
	a.mu.Lock()
	width, height, fourcc, have := a.lastWidth, a.lastHeight, a.lastFourCC, a.haveFrame
	a.mu.Unlock()
	if !have {
		return fmt.Errorf("ndicore: no frame received yet, cannot start recording")
	}
	return a.recorder.Start(width, height, fourcc)
}

func splitGroups(groups string) []string {
	if groups == "" {
		return nil
	}
	return strings.Split(groups, ",")
}

func bandwidthOf(s string) ndinative.Bandwidth {
	switch s {
	case "lowest":
		return ndinative.BandwidthLowest
	case "audio_only":
		return ndinative.BandwidthAudioOnly
	default:
		return ndinative.BandwidthHighest
	}
}

func colorFormatOf(s string) ndinative.ColorFormat {
	switch s {
	case "bgra":
		return ndinative.ColorFormatBGRXBGRA
	case "uyvy":
		return ndinative.ColorFormatUYVYBGRA
	case "best":
		return ndinative.ColorFormatBest
	default:
		return ndinative.ColorFormatFastest
	}
}

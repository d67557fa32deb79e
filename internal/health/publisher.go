// Package health is the optional MQTT telemetry and control plane for an
// embedding process: connection/recording state snapshots published on a
// fixed interval, plus a small command surface (connect/disconnect/
// start_recording/stop_recording/set_auto_reconnect/shutdown).
//
// Grounded on References/orion-prototipe/internal/emitter/mqtt.go (the
// connect/publish/stats shape) and internal/control/handler.go (the
// command-channel dispatch loop), both reworked around this module's
// connection/recorder state instead of inference publishing.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/ndicore/internal/config"
)

// Snapshot is the payload published to the health topic.
type Snapshot struct {
	InstanceID      string `json:"instance_id"`
	ConnectionState string `json:"connection_state"`
	SourceName      string `json:"source_name,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ErrorCategory   string `json:"error_category,omitempty"`

	TotalVideoFrames   uint64 `json:"total_video_frames"`
	DroppedVideoFrames uint64 `json:"dropped_video_frames"`
	TotalAudioFrames   uint64 `json:"total_audio_frames"`
	DroppedAudioFrames uint64 `json:"dropped_audio_frames"`
	Quality            int    `json:"quality"`

	RecordingState     string `json:"recording_state"`
	RecordingFile      string `json:"recording_file,omitempty"`
	RecordingMs        int64  `json:"recording_duration_ms,omitempty"`
	RecordingSessionID string `json:"recording_session_id,omitempty"`

	AutoReconnecting bool `json:"auto_reconnecting"`
	ReconnectAttempt int  `json:"reconnect_attempt"`

	ConnectedSince string `json:"connected_since,omitempty"`
	PublishedAt    string `json:"published_at"`
}

// SnapshotFunc produces the current telemetry snapshot on demand.
type SnapshotFunc func() Snapshot

// PublishInterval is the fixed cadence for periodic health snapshots.
const PublishInterval = 5 * time.Second

const connectTimeout = 5 * time.Second
const publishTimeout = 2 * time.Second

// Publisher connects to an MQTT broker and periodically publishes
// Snapshot payloads to the configured health topic.
type Publisher struct {
	cfg      *config.Config
	snapshot SnapshotFunc

	mu        sync.RWMutex
	client    mqtt.Client
	connected bool
	published uint64
	errors    uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPublisher constructs a Publisher. snapshot is called on each tick to
// obtain the payload to publish.
func NewPublisher(cfg *config.Config, snapshot SnapshotFunc) *Publisher {
	return &Publisher{cfg: cfg, snapshot: snapshot, stop: make(chan struct{})}
}

// Connect establishes the MQTT connection and starts the periodic
// publish loop. A no-op if health reporting is disabled in config.
func (p *Publisher) Connect(ctx context.Context) error {
	if !p.cfg.MQTT.Enabled {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", p.cfg.MQTT.Broker))
	opts.SetClientID(p.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		slog.Info("health: mqtt connection established", "broker", p.cfg.MQTT.Broker, "client_id", p.cfg.InstanceID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		slog.Warn("health: mqtt connection lost, auto-reconnecting", "error", err)
	}

	p.mu.Lock()
	p.client = mqtt.NewClient(opts)
	client := p.client
	p.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("health: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("health: mqtt connect failed: %w", err)
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.publishLoop()

	return nil
}

// Client exposes the underlying MQTT client for the control plane
// handler to subscribe with.
func (p *Publisher) Client() mqtt.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if err := p.PublishOnce(); err != nil {
				slog.Warn("health: publish failed", "error", err)
			}
		}
	}
}

// PublishOnce publishes a single snapshot immediately, independent of
// the periodic ticker. Useful for publishing on significant transitions.
func (p *Publisher) PublishOnce() error {
	if !p.isConnected() {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		return fmt.Errorf("health: mqtt not connected")
	}

	snap := p.snapshot()
	snap.InstanceID = p.cfg.InstanceID
	snap.PublishedAt = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("health: marshal snapshot: %w", err)
	}

	return p.publish(p.cfg.MQTT.Topics.Health, payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	client := p.Client()
	if client == nil {
		return fmt.Errorf("health: mqtt client not connected")
	}

	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		return fmt.Errorf("health: publish timeout on %q", topic)
	}
	if err := token.Error(); err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		return fmt.Errorf("health: publish failed on %q: %w", topic, err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

// Disconnect stops the publish loop and closes the MQTT connection.
func (p *Publisher) Disconnect() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	p.wg.Wait()

	client := p.Client()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}

	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

// Stats reports publisher counters, mirroring the teacher's emitter.Stats.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns a snapshot of publisher counters.
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{Connected: p.connected, Published: p.published, Errors: p.errors}
}

func (p *Publisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/ndicore/internal/config"
)

// Command is a control plane command received on the control topic.
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response is a command acknowledgement published to the health topic.
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Callbacks wires control commands to the core's actual operations.
type Callbacks struct {
	OnConnect          func(sourceName string) error
	OnDisconnect       func() error
	OnStartRecording   func() error
	OnStopRecording    func() error
	OnSetAutoReconnect func(enabled bool) error
	OnShutdown         func() error
}

const controlQueueSize = 10
const subscribeTimeout = 5 * time.Second
const shutdownGrace = 500 * time.Millisecond

// Handler subscribes to the control topic and dispatches commands to
// Callbacks, publishing a Response for each on the health topic.
type Handler struct {
	cfg       *config.Config
	client    mqtt.Client
	callbacks Callbacks
	commands  chan Command
}

// NewHandler constructs a control-plane Handler bound to an already
// connected MQTT client (typically Publisher.Client()).
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks Callbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		callbacks: callbacks,
		commands:  make(chan Command, controlQueueSize),
	}
}

// Start subscribes to the control topic and begins processing commands
// until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control

	token := h.client.Subscribe(topic, 0, h.onMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("health: control subscribe timeout on %q", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("health: control subscribe failed on %q: %w", topic, err)
	}

	slog.Info("health: control plane subscribed", "topic", topic)
	go h.processCommands(ctx)
	return nil
}

// Stop unsubscribes and stops the command loop.
func (h *Handler) Stop() {
	topic := h.cfg.MQTT.Topics.Control
	if h.client != nil && h.client.IsConnected() {
		h.client.Unsubscribe(topic).Wait()
	}
	close(h.commands)
}

func (h *Handler) onMessage(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("health: invalid control command", "error", err)
		h.respond(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("health: control command queue full, dropping", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handle(cmd)
		}
	}
}

func (h *Handler) handle(cmd Command) {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case "connect":
		name, ok := cmd.Params["source_name"].(string)
		if !ok || h.callbacks.OnConnect == nil {
			resp.Status, resp.Error = "error", "missing 'source_name' or connect not supported"
		} else if err := h.callbacks.OnConnect(name); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "disconnect":
		if h.callbacks.OnDisconnect == nil {
			resp.Status, resp.Error = "error", "disconnect not supported"
		} else if err := h.callbacks.OnDisconnect(); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "start_recording":
		if h.callbacks.OnStartRecording == nil {
			resp.Status, resp.Error = "error", "recording not supported"
		} else if err := h.callbacks.OnStartRecording(); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "stop_recording":
		if h.callbacks.OnStopRecording == nil {
			resp.Status, resp.Error = "error", "recording not supported"
		} else if err := h.callbacks.OnStopRecording(); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
		}

	case "set_auto_reconnect":
		enabled, ok := cmd.Params["enabled"].(bool)
		if !ok || h.callbacks.OnSetAutoReconnect == nil {
			resp.Status, resp.Error = "error", "missing 'enabled' or not supported"
		} else if err := h.callbacks.OnSetAutoReconnect(enabled); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Status = "success"
			resp.Data = map[string]interface{}{"auto_reconnect": enabled}
		}

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.Status, resp.Error = "error", "shutdown not supported"
			break
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"shutdown_initiated": true}
		h.respond(resp)
		go func() {
			time.Sleep(shutdownGrace)
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("health: shutdown callback failed", "error", err)
			}
		}()
		return

	default:
		resp.Status, resp.Error = "error", fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.respond(resp)
}

func (h *Handler) respond(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("health: marshal response failed", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Health
	token := h.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		slog.Error("health: response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("health: response publish failed", "error", err)
	}
}

package health

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/e7canasta/ndicore/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{InstanceID: "cam-01"}
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = "localhost:1883"
	cfg.MQTT.Topics.Health = "ndicore/health/cam-01"
	cfg.MQTT.Topics.Control = "ndicore/control/cam-01"
	return cfg
}

func startHandler(t *testing.T, client *fakeClient, cb Callbacks) *Handler {
	t.Helper()
	h := NewHandler(testConfig(), client, cb)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(h.Stop)
	return h
}

func sendCommand(t *testing.T, client *fakeClient, cmd Command) {
	t.Helper()
	payload, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	client.deliver("ndicore/control/cam-01", payload)
}

func waitForResponse(t *testing.T, client *fakeClient) Response {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := client.lastPublished(); ok {
			var resp Response
			if err := json.Unmarshal(msg.payload, &resp); err == nil {
				return resp
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for control response")
	return Response{}
}

func TestHandler_ConnectDispatchesCallback(t *testing.T) {
	client := &fakeClient{connected: true}
	var gotSource string
	h := startHandler(t, client, Callbacks{
		OnConnect: func(sourceName string) error {
			gotSource = sourceName
			return nil
		},
	})
	_ = h

	sendCommand(t, client, Command{Command: "connect", Params: map[string]interface{}{"source_name": "CAM1"}})

	resp := waitForResponse(t, client)
	if resp.Status != "success" {
		t.Fatalf("expected success, got %+v", resp)
	}
	if gotSource != "CAM1" {
		t.Fatalf("expected source_name CAM1 to reach callback, got %q", gotSource)
	}
}

func TestHandler_UnknownCommandReturnsError(t *testing.T) {
	client := &fakeClient{connected: true}
	startHandler(t, client, Callbacks{})

	sendCommand(t, client, Command{Command: "levitate"})

	resp := waitForResponse(t, client)
	if resp.Status != "error" {
		t.Fatalf("expected error status, got %+v", resp)
	}
}

func TestHandler_StartRecordingPropagatesCallbackError(t *testing.T) {
	client := &fakeClient{connected: true}
	startHandler(t, client, Callbacks{
		OnStartRecording: func() error { return errAlreadyRecordingForTest },
	})

	sendCommand(t, client, Command{Command: "start_recording"})

	resp := waitForResponse(t, client)
	if resp.Status != "error" || resp.Error == "" {
		t.Fatalf("expected propagated error, got %+v", resp)
	}
}

func TestHandler_SetAutoReconnectRequiresEnabledParam(t *testing.T) {
	client := &fakeClient{connected: true}
	startHandler(t, client, Callbacks{
		OnSetAutoReconnect: func(enabled bool) error { return nil },
	})

	sendCommand(t, client, Command{Command: "set_auto_reconnect"})

	resp := waitForResponse(t, client)
	if resp.Status != "error" {
		t.Fatalf("expected error for missing 'enabled' param, got %+v", resp)
	}
}

var errAlreadyRecordingForTest = &testError{"already recording"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

package health

import (
	"encoding/json"
	"testing"
)

func newTestPublisher(client *fakeClient, snapshot SnapshotFunc) *Publisher {
	p := NewPublisher(testConfig(), snapshot)
	p.client = client
	p.connected = client.connected
	return p
}

func TestPublisher_PublishOnceSendsSnapshot(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newTestPublisher(client, func() Snapshot {
		return Snapshot{ConnectionState: "connected", Quality: 97, RecordingState: "idle"}
	})

	if err := p.PublishOnce(); err != nil {
		t.Fatalf("PublishOnce failed: %v", err)
	}

	msg, ok := client.lastPublished()
	if !ok {
		t.Fatalf("expected a published message")
	}
	if msg.topic != "ndicore/health/cam-01" {
		t.Fatalf("expected health topic, got %q", msg.topic)
	}

	var snap Snapshot
	if err := json.Unmarshal(msg.payload, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.ConnectionState != "connected" || snap.Quality != 97 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.InstanceID != "cam-01" {
		t.Fatalf("expected instance_id stamped onto snapshot, got %q", snap.InstanceID)
	}

	stats := p.Stats()
	if stats.Published != 1 {
		t.Fatalf("expected 1 published message, got %d", stats.Published)
	}
}

func TestPublisher_PublishOnceFailsWhenDisconnected(t *testing.T) {
	client := &fakeClient{connected: false}
	p := newTestPublisher(client, func() Snapshot { return Snapshot{} })

	if err := p.PublishOnce(); err == nil {
		t.Fatalf("expected error when not connected")
	}
	if p.Stats().Errors != 1 {
		t.Fatalf("expected error counter incremented")
	}
}

func TestPublisher_DisconnectIsIdempotent(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newTestPublisher(client, func() Snapshot { return Snapshot{} })

	p.Disconnect()
	p.Disconnect()

	if p.isConnected() {
		t.Fatalf("expected disconnected state after Disconnect")
	}
}

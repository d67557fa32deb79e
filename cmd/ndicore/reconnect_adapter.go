package main

import (
	"context"
	"sync/atomic"

	"github.com/e7canasta/ndicore/internal/ndinative"
	"github.com/e7canasta/ndicore/internal/reconnect"
)

// reconnectPolicyAdapter wraps reconnect.Policy with a runtime-mutable
// "auto-reconnect" preference (spec.md §6), since Policy.Enabled is a
// plain func() bool fixed at construction.
type reconnectPolicyAdapter struct {
	policy  *reconnect.Policy
	enabled atomic.Bool
}

func newReconnectPolicyAdapter(a *app) *reconnectPolicyAdapter {
	adapter := &reconnectPolicyAdapter{}
	adapter.enabled.Store(a.cfg.Preferences.AutoReconnect)

	adapter.policy = reconnect.New(
		func(ctx context.Context, source ndinative.SourceDescriptor) error {
			return a.receiver.Connect(source)
		},
		func() {
			if a.recorder.IsRecording() {
				_ = a.recorder.Stop()
			}
		},
		adapter.enabled.Load,
	)
	return adapter
}

func (p *reconnectPolicyAdapter) OnConnected(source ndinative.SourceDescriptor) { p.policy.OnConnected(source) }
func (p *reconnectPolicyAdapter) OnError(ctx context.Context)                  { p.policy.OnError(ctx) }
func (p *reconnectPolicyAdapter) OnDisconnected()                              { p.policy.OnDisconnected() }
func (p *reconnectPolicyAdapter) IsReconnecting() bool                         { return p.policy.IsReconnecting() }
func (p *reconnectPolicyAdapter) Attempts() int                               { return p.policy.Attempts() }

// SetEnabled updates the auto-reconnect preference, matching the
// control plane's set_auto_reconnect command.
func (p *reconnectPolicyAdapter) SetEnabled(enabled bool) error {
	p.enabled.Store(enabled)
	if !enabled {
		p.policy.Cancel()
	}
	return nil
}

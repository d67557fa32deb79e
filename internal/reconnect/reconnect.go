// Package reconnect implements the connection-health and auto-reconnect
// policy layered on the Receiver's state machine, per spec.md §4.7: a
// fixed 3s delay, capped at 5 attempts per outage, with last-connected
// source persistence and a recording-stop hook.
//
// Generalized from the teacher's exponential-backoff RunWithReconnect
// (modules/stream-capture/internal/rtsp/reconnect.go) into this
// fixed-delay, capped-attempt policy — the backoff schedule the spec
// calls for is flat, not exponential.
package reconnect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
)

// Delay is the fixed wait before each reconnection attempt.
const Delay = 3000 * time.Millisecond

// MaxAttempts bounds reconnection attempts per outage.
const MaxAttempts = 5

// ConnectFunc attempts to (re)connect to the given source.
type ConnectFunc func(ctx context.Context, source ndinative.SourceDescriptor) error

// StopRecordingFunc is invoked when the receiver enters Error or
// Disconnected while a recording is in progress (spec.md §4.7 "On
// entering Error or Disconnected while recording").
type StopRecordingFunc func()

// Policy drives auto-reconnect attempts for one Receiver. It is not
// itself a state machine; it reacts to state transitions the caller
// reports via OnError/OnDisconnected/OnConnected.
type Policy struct {
	Connect       ConnectFunc
	StopRecording StopRecordingFunc
	Enabled       func() bool // reads the "auto-reconnect" preference

	mu             sync.Mutex
	attempts       int
	isReconnecting bool
	cancel         context.CancelFunc
	lastSource     ndinative.SourceDescriptor
	haveLastSource bool
}

// New constructs a Policy.
func New(connect ConnectFunc, stopRecording StopRecordingFunc, enabled func() bool) *Policy {
	return &Policy{Connect: connect, StopRecording: stopRecording, Enabled: enabled}
}

// OnConnected resets the attempt counter and persists source as
// "last connected" (spec.md §4.7 "successful transition to Connected
// resets counters").
func (p *Policy) OnConnected(source ndinative.SourceDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
	p.isReconnecting = false
	p.lastSource = source
	p.haveLastSource = true
}

// LastConnectedSource returns the persisted source and whether one has
// ever been recorded.
func (p *Policy) LastConnectedSource() (ndinative.SourceDescriptor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSource, p.haveLastSource
}

// OnError schedules a reconnection attempt after Delay, up to
// MaxAttempts per outage, and stops any in-progress recording.
func (p *Policy) OnError(ctx context.Context) {
	if p.StopRecording != nil {
		p.StopRecording()
	}

	p.mu.Lock()
	if !p.haveLastSource {
		p.mu.Unlock()
		return
	}
	if p.Enabled == nil || !p.Enabled() {
		p.mu.Unlock()
		return
	}
	if p.attempts >= MaxAttempts {
		p.mu.Unlock()
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.isReconnecting = true
	p.attempts++
	attempt := p.attempts
	source := p.lastSource
	p.mu.Unlock()

	go p.runAttempt(jobCtx, attempt, source)
}

// OnDisconnected stops any in-progress recording, matching the Error
// branch's side effect without scheduling a reconnect (a user-initiated
// disconnect is not an outage).
func (p *Policy) OnDisconnected() {
	if p.StopRecording != nil {
		p.StopRecording()
	}
}

func (p *Policy) runAttempt(ctx context.Context, attempt int, source ndinative.SourceDescriptor) {
	slog.Info("reconnect: scheduling attempt", "attempt", attempt, "max", MaxAttempts, "delay", Delay)

	select {
	case <-time.After(Delay):
	case <-ctx.Done():
		slog.Info("reconnect: attempt cancelled before delay elapsed", "attempt", attempt)
		return
	}

	p.mu.Lock()
	p.isReconnecting = false
	p.mu.Unlock()

	if err := p.Connect(ctx, source); err != nil {
		slog.Warn("reconnect: attempt failed", "attempt", attempt, "error", err)
		return
	}
	slog.Info("reconnect: attempt succeeded", "attempt", attempt)
}

// Cancel clears any pending reconnection job and maxes out the attempt
// counter, per spec.md §4.7 "Explicit user cancellation clears the
// pending job and sets attempts to max".
func (p *Policy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.isReconnecting = false
	p.attempts = MaxAttempts
}

// IsReconnecting reports whether a reconnection attempt is currently
// in its delay window; the flag is cleared just before the connect call.
func (p *Policy) IsReconnecting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isReconnecting
}

// Attempts reports the retry counter for the current outage, displayed
// to the user per spec.md §4.7.
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

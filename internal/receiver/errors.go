package receiver

import (
	"errors"
	"strings"
)

// Sentinel errors surfaced by the Receiver state machine, following the
// exported-error-variable idiom of the teacher's framebus package.
var (
	ErrAlreadyConnecting = errors.New("receiver: connect already in progress")
	ErrNotConnected      = errors.New("receiver: not connected")
	ErrHandleCreation    = errors.New("receiver: native handle creation failed")
)

// ErrorCategory classifies a StateError message for telemetry, grounded on
// stream-capture's ClassifyGStreamerError: since the native runtime's errors
// reach us as plain strings rather than a typed GError, classification here
// is the same keyword-heuristic approach applied directly to the message.
type ErrorCategory int

const (
	ErrCategoryUnknown ErrorCategory = iota
	ErrCategoryNetwork
	ErrCategoryCodec
	ErrCategoryAuth
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "password", "username",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation",
		"caps", "h264", "h265", "hevc", "not negotiated", "no decoder",
	}
	networkKeywords = []string{
		"connection", "timeout", "unreachable", "network", "dns",
		"resolve", "socket", "tcp", "udp", "not found",
		"could not connect", "handle creation failed",
	}
)

// ClassifyError categorizes a Receiver StateError message (ConnectionFailed/
// ConnectionLost causes) for the auto-reconnect telemetry surfaced to
// internal/health. Priority mirrors the teacher's: auth, then codec, then
// network, defaulting to unknown.
func ClassifyError(message string) ErrorCategory {
	if message == "" {
		return ErrCategoryUnknown
	}
	lower := strings.ToLower(message)
	if containsAny(lower, authKeywords) {
		return ErrCategoryAuth
	}
	if containsAny(lower, codecKeywords) {
		return ErrCategoryCodec
	}
	if containsAny(lower, networkKeywords) {
		return ErrCategoryNetwork
	}
	return ErrCategoryUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

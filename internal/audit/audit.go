// Package audit publishes structured authentication events to a message
// broker so security tooling can consume them out of band. Publishing is
// best effort: a broker outage must never fail a login.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Event types emitted by the authentication protocols.
const (
	EventRegistered         = "auth.registered"
	EventEnrollmentStarted  = "auth.enrollment_started"
	EventEnrollmentVerified = "auth.enrollment_verified"
	EventLoginSucceeded     = "auth.login_succeeded"
	EventLoginFailed        = "auth.login_failed"
	EventLockout            = "auth.lockout"
)

// Event is one authentication occurrence worth recording.
type Event struct {
	Type     string            `json:"type"`
	Email    string            `json:"email"`
	Success  bool              `json:"success"`
	At       time.Time         `json:"at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Backend defines the broker-agnostic publish operation.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Stream wraps a backend with a fixed channel and event encoding.
type Stream struct {
	backend Backend
	channel string
}

// NewStream constructs a Stream publishing to the named channel.
func NewStream(backend Backend, channel string) *Stream {
	return &Stream{backend: backend, channel: channel}
}

// Emit publishes the event. Failures are written to stderr and otherwise
// swallowed; authentication outcomes do not depend on the broker.
func (s *Stream) Emit(ctx context.Context, event Event) {
	if s == nil || s.backend == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to encode %s event: %v\n", event.Type, err)
		return
	}
	attrs := map[string]string{"type": event.Type}
	if _, err := s.backend.Publish(ctx, s.channel, data, attrs); err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to publish %s event: %v\n", event.Type, err)
	}
}

// Close closes the underlying backend.
func (s *Stream) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

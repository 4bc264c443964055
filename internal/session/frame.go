package session

import (
	"context"
	"encoding/json"

	"github.com/AdguardTeam/HostlistCompiler/internal/events"
)

// Frame types sent by clients.
const (
	FrameTypeCompile = "compile"
	FrameTypeCancel  = "cancel"
	FrameTypePing    = "ping"
)

// Frame types sent by the manager.  Terminal compilation frames reuse the
// event type strings, see [events.Type].
const (
	FrameTypeWelcome = "welcome"
	FrameTypePong    = "pong"
	FrameTypeEvent   = "event"
	FrameTypeError   = "error"
)

// Frame is a single protocol message.  Data holds the type-specific payload.
type Frame struct {
	Data      json.RawMessage `json:"data,omitempty"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	EventType events.Type     `json:"event_type,omitempty"`
}

// FrameWriter writes frames to the client.  Implementations are provided by
// the transport, for example a WebSocket connection or an in-memory collector
// in tests.  Writes are serialized by the connection, so implementations do
// not need to be safe for concurrent use.
type FrameWriter interface {
	WriteFrame(ctx context.Context, fr *Frame) (err error)
}

// WelcomeData is the payload of a [FrameTypeWelcome] frame.
type WelcomeData struct {
	Version      string   `json:"version"`
	ConnectionID string   `json:"connection_id"`
	Capabilities []string `json:"capabilities"`
}

// PongData is the payload of a [FrameTypePong] frame.
type PongData struct {
	// Timestamp is the server time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// ErrorData is the payload of a [FrameTypeError] frame.
type ErrorData struct {
	Message string `json:"message"`
}

// mustData marshals v for use as a frame payload.  v is always one of the
// payload structures above, which cannot fail to marshal.
func mustData(v any) (data json.RawMessage) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return data
}

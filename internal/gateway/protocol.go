// Package gateway is the WebSocket transport boundary: it upgrades
// connections, authenticates players, keeps one reader and one writer
// goroutine per session, and fans broadcast events out to observers.
// Game semantics live in internal/handler; the gateway only frames and
// routes.
package gateway

import (
	"encoding/json"
	"fmt"
)

// Envelope is one inbound client frame. Data is decoded by the handler
// the Type routes to.
type Envelope struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Frame is one outbound frame. Replies echo the request Seq and carry
// OK; events carry neither.
type Frame struct {
	Type  string     `json:"type"`
	Seq   int64      `json:"seq,omitempty"`
	OK    *bool      `json:"ok,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
	Data  any        `json:"data,omitempty"`
}

// ErrorBody is the rejection payload: a stable machine code plus the
// reason string shown to the player.
type ErrorBody struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Reply builds a success frame answering req.
func Reply(req *Envelope, data any) Frame {
	ok := true
	return Frame{Type: req.Type, Seq: req.Seq, OK: &ok, Data: data}
}

// ReplyError builds a rejection frame answering req.
func ReplyError(req *Envelope, code, reason string) Frame {
	ok := false
	return Frame{Type: req.Type, Seq: req.Seq, OK: &ok, Error: &ErrorBody{Code: code, Reason: reason}}
}

// Event builds a broadcast frame.
func Event(eventType string, data any) Frame {
	return Frame{Type: eventType, Data: data}
}

// LatLng is the wire form of a coordinate, shared by requests, replies
// and broadcast events.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DecodeEnvelope parses one wire frame.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return &env, nil
}

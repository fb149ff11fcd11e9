package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind discriminates the two payload shapes carried by the combined
// stream.
type EventKind string

const (
	EventTrade     EventKind = "trade"
	EventOrderbook EventKind = "orderbook"
)

// StreamEvent is the tagged union handed from the connector to the pipeline.
// Exactly one of Trade or Depth is non-nil, selected by Kind.
type StreamEvent struct {
	Kind     EventKind
	Trade    *RawTrade
	Depth    *RawDepthUpdate
	Received time.Time
}

// streamEnvelope is the combined-stream wire envelope.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DecodeStreamEvent decodes a combined-stream message into a typed event.
// Unknown stream suffixes and malformed payloads return an error so the
// caller can count and drop them.
func DecodeStreamEvent(msg []byte) (StreamEvent, error) {
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return StreamEvent{}, fmt.Errorf("decode stream envelope: %w", err)
	}
	if env.Stream == "" || len(env.Data) == 0 {
		return StreamEvent{}, fmt.Errorf("incomplete stream envelope")
	}

	switch {
	case strings.Contains(env.Stream, "@depth"):
		var depth RawDepthUpdate
		if err := json.Unmarshal(env.Data, &depth); err != nil {
			return StreamEvent{}, fmt.Errorf("decode depth update: %w", err)
		}
		return StreamEvent{Kind: EventOrderbook, Depth: &depth, Received: time.Now()}, nil
	case strings.Contains(env.Stream, "@aggTrade"):
		var trade RawTrade
		if err := json.Unmarshal(env.Data, &trade); err != nil {
			return StreamEvent{}, fmt.Errorf("decode agg trade: %w", err)
		}
		return StreamEvent{Kind: EventTrade, Trade: &trade, Received: time.Now()}, nil
	default:
		return StreamEvent{}, fmt.Errorf("unknown stream %q", env.Stream)
	}
}

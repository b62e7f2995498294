package sim

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeReset             // New population spawned
	EventTypeBatch             // Full nearest-neighbour batch finished
	EventTypeClear             // Pairing lines cleared
)

// EventVersion for backwards compatibility of the log format
const EventVersion uint8 = 1

// Event is one line of the JSONL event log.
type Event struct {
	Version    uint8           `json:"version"`
	Type       EventType       `json:"type"`
	Timestamp  int64           `json:"timestamp"` // Unix nano
	Sequence   uint64          `json:"sequence"`  // Assigned by EventLog
	Generation string          `json:"generation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeReset:
		return "reset"
	case EventTypeBatch:
		return "batch"
	case EventTypeClear:
		return "clear"
	default:
		return "unknown"
	}
}

// MarshalText makes the type readable in the JSON log.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ResetPayload records the shape of a new population, enough to respawn it.
type ResetPayload struct {
	Seed    int64   `json:"seed"`
	Count   int     `json:"count"`
	Rows    int     `json:"rows"`
	Columns int     `json:"columns"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// BatchPayload records the cost of one batch.
type BatchPayload struct {
	Pairs        int   `json:"pairs"`
	Found        int   `json:"found"`
	ElapsedNs    int64 `json:"elapsedNs"`
	CellsScanned int   `json:"cellsScanned"`
	Verified     int   `json:"verifiedCandidates"`
	Workers      int   `json:"workers"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, generation string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return Event{
		Version:    EventVersion,
		Type:       eventType,
		Timestamp:  time.Now().UnixNano(),
		Generation: generation,
		Payload:    raw,
	}
}

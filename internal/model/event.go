// Package model contains the fact types the sample rules reason about.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/cepsnap/internal/engine"
	"github.com/roach88/cepsnap/internal/marshal"
)

// SimpleEventType is the fact type name rule artifacts declare.
const SimpleEventType = "model.SimpleEvent"

func init() {
	marshal.RegisterType(SimpleEventType, func() engine.Fact { return &SimpleEvent{} })
}

// SimpleEvent is an immutable event carrying an identifier and a timestamp.
// Two events are equal when their identifiers are equal.
type SimpleEvent struct {
	id        string
	timestamp time.Time
}

// NewSimpleEvent creates an event with a fresh UUID identifier.
func NewSimpleEvent(ts time.Time) *SimpleEvent {
	return NewSimpleEventWithID(uuid.NewString(), ts)
}

// NewSimpleEventWithID creates an event with a caller-chosen identifier.
// The timestamp is truncated to millisecond resolution.
func NewSimpleEventWithID(id string, ts time.Time) *SimpleEvent {
	return &SimpleEvent{id: id, timestamp: ts.Truncate(time.Millisecond).UTC()}
}

// ID returns the event identifier.
func (e *SimpleEvent) ID() string { return e.id }

// Timestamp returns the event time.
func (e *SimpleEvent) Timestamp() time.Time { return e.timestamp }

// FactType implements engine.Fact.
func (e *SimpleEvent) FactType() string { return SimpleEventType }

// Equal reports whether both events carry the same identifier.
func (e *SimpleEvent) Equal(other *SimpleEvent) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.id == other.id
}

func (e *SimpleEvent) String() string {
	return fmt.Sprintf("SimpleEvent{id=%s, timestamp=%s}", e.id, FormatTimestamp(e.timestamp))
}

type simpleEventJSON struct {
	ID        string `json:"id"`
	Timestamp *int64 `json:"timestamp"`
}

// MarshalJSON writes {"id": ..., "timestamp": <ms since epoch>}.
func (e *SimpleEvent) MarshalJSON() ([]byte, error) {
	ms := e.timestamp.UnixMilli()
	return json.Marshal(simpleEventJSON{ID: e.id, Timestamp: &ms})
}

// UnmarshalJSON reads the form written by MarshalJSON. Both fields are
// required.
func (e *SimpleEvent) UnmarshalJSON(data []byte) error {
	var raw simpleEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("SimpleEvent: %w", err)
	}
	if raw.ID == "" {
		return fmt.Errorf("SimpleEvent: id is required")
	}
	if raw.Timestamp == nil {
		return fmt.Errorf("SimpleEvent %s: timestamp is required", raw.ID)
	}
	e.id = raw.ID
	e.timestamp = time.UnixMilli(*raw.Timestamp).UTC()
	return nil
}

// Timestamp layout without the millisecond part; Go layouts cannot express
// milliseconds glued to the seconds without a separator.
const timestampLayout = "20060102:150405"

// FormatTimestamp renders t in UTC as yyyyMMdd:HHmmssSSS.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%03d", t.Format(timestampLayout), t.Nanosecond()/int(time.Millisecond))
}

// ParseTimestamp parses a yyyyMMdd:HHmmssSSS timestamp as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) != len(timestampLayout)+3 {
		return time.Time{}, fmt.Errorf("timestamp %q: want yyyyMMdd:HHmmssSSS", s)
	}
	base, err := time.ParseInLocation(timestampLayout, s[:len(timestampLayout)], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	msPart := s[len(timestampLayout):]
	for _, r := range msPart {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("timestamp %q: milliseconds must be 3 digits", s)
		}
	}
	ms, _ := strconv.Atoi(msPart)
	return base.Add(time.Duration(ms) * time.Millisecond), nil
}

// Package record defines the request-log records served by the backend API.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogRecord is one captured HTTP request.
// Records are decoded fresh on every fetch and never mutated afterwards.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"` // milliseconds
	Status    int       `json:"status"`
	Service   string    `json:"service"`
	Method    string    `json:"method,omitempty"`
	Path      string    `json:"path,omitempty"`

	// Only present in /api/logs rows.
	ID       int64  `json:"id,omitempty"`
	ClientIP string `json:"client_ip,omitempty"`
}

// IsError reports whether the record counts towards the error rate.
func (r LogRecord) IsError() bool {
	return r.Status >= 400
}

// UnmarshalJSON accepts the timestamp encodings the backend is known to emit.
func (r *LogRecord) UnmarshalJSON(b []byte) error {
	type alias LogRecord
	var raw struct {
		alias
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = LogRecord(raw.alias)

	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("record timestamp: %w", err)
	}
	r.Timestamp = ts
	return nil
}

// TimeRange is a closed interval selected in the range picker.
// A nil *TimeRange means no filter: the server applies its default window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the range, bounds included.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Validate checks that the range is usable as a query filter.
func (tr TimeRange) Validate() error {
	if tr.Start.IsZero() || tr.End.IsZero() {
		return fmt.Errorf("time range needs both start and end")
	}
	if tr.End.Before(tr.Start) {
		return fmt.Errorf("time range end %s is before start %s",
			tr.End.Format(time.RFC3339), tr.Start.Format(time.RFC3339))
	}
	return nil
}

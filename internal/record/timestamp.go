package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layouts seen in backend payloads. sqlite DATETIME columns come back as text
// in Python's str(datetime) form; Flask's jsonify renders datetimes as RFC 1123.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseTimestamp decodes a JSON timestamp value. Strings are tried against the
// known layouts; numbers are Unix milliseconds. Values without a zone are UTC.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}

	if raw[0] != '"' {
		var ms json.Number
		if err := json.Unmarshal(raw, &ms); err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s", string(raw))
		}
		n, err := ms.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s", string(raw))
		}
		return time.UnixMilli(int64(n)).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	return ParseTimestampString(s)
}

// ParseTimestampString parses s with the known backend layouts.
func ParseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

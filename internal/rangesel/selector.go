// Package rangesel holds the dashboard's current time-range selection.
//
// It mirrors a date-range picker: a selection is stored with Select or Clear,
// and Close announces that the picker was dismissed so listeners can refresh.
package rangesel

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"logdash/internal/record"
)

// InputLayout is the picker's date format (flatpickr "Y-m-d H:i").
const InputLayout = "2006-01-02 15:04"

// rangeSeparator joins the two dates in the picker's range text.
const rangeSeparator = " to "

// Selector is safe for concurrent use.
type Selector struct {
	mu        sync.RWMutex
	current   *record.TimeRange
	window    time.Duration
	explicit  bool
	listeners []func(*record.TimeRange)
}

// New returns a Selector. A positive window preselects [now-window, now].
// The default does not slide on its own; Reseed recomputes it.
func New(window time.Duration, now time.Time) *Selector {
	s := &Selector{window: window}
	if window > 0 {
		s.current = &record.TimeRange{Start: now.Add(-window), End: now}
	}
	return s
}

// Reseed recomputes the default window ending at now, as a freshly loaded
// page does. It is a no-op once the user has selected or cleared a range,
// or when there is no default window. It reports whether the range moved.
func (s *Selector) Reseed(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.explicit || s.window <= 0 {
		return false
	}
	tr := record.TimeRange{Start: now.Add(-s.window), End: now}
	if s.current != nil && s.current.Start.Equal(tr.Start) && s.current.End.Equal(tr.End) {
		return false
	}
	s.current = &tr
	return true
}

// Explicit reports whether the current range came from the user.
func (s *Selector) Explicit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.explicit
}

// Current returns a copy of the selection, or nil when nothing is selected.
func (s *Selector) Current() *record.TimeRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	tr := *s.current
	return &tr
}

// Select stores a two-date selection.
func (s *Selector) Select(start, end time.Time) error {
	tr := record.TimeRange{Start: start, End: end}
	if err := tr.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = &tr
	s.explicit = true
	s.mu.Unlock()
	return nil
}

// Clear removes the selection. Queries then go out without start and end,
// and Reseed no longer restores the default window.
func (s *Selector) Clear() {
	s.mu.Lock()
	s.current = nil
	s.explicit = true
	s.mu.Unlock()
}

// OnClose registers fn to run whenever the picker closes.
func (s *Selector) OnClose(fn func(*record.TimeRange)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close signals "range changed" to every listener with the current selection.
func (s *Selector) Close() {
	s.mu.RLock()
	listeners := make([]func(*record.TimeRange), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	cur := s.Current()
	for _, fn := range listeners {
		fn(cur)
	}
}

// ParseInput parses picker text such as "2024-01-01 10:00 to 2024-01-02 10:00"
// in loc. Text holding a single date is an incomplete selection and yields nil.
func ParseInput(text string, loc *time.Location) (*record.TimeRange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}

	parts := strings.Split(text, rangeSeparator)
	switch len(parts) {
	case 1:
		if _, err := time.ParseInLocation(InputLayout, parts[0], loc); err != nil {
			return nil, fmt.Errorf("parse range date %q: %w", parts[0], err)
		}
		return nil, nil
	case 2:
	default:
		return nil, fmt.Errorf("range text %q has %d parts", text, len(parts))
	}

	start, err := time.ParseInLocation(InputLayout, strings.TrimSpace(parts[0]), loc)
	if err != nil {
		return nil, fmt.Errorf("parse range start: %w", err)
	}
	end, err := time.ParseInLocation(InputLayout, strings.TrimSpace(parts[1]), loc)
	if err != nil {
		return nil, fmt.Errorf("parse range end: %w", err)
	}

	tr := &record.TimeRange{Start: start, End: end}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	return tr, nil
}

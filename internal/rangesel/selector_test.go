package rangesel

import (
	"testing"
	"time"

	"logdash/internal/record"
)

func TestNew_DefaultWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(24*time.Hour, now)

	cur := s.Current()
	if cur == nil {
		t.Fatal("expected a preselected range")
	}
	if !cur.End.Equal(now) || !cur.Start.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("range = %v..%v", cur.Start, cur.End)
	}
}

func TestNew_NoWindow(t *testing.T) {
	s := New(0, time.Now())
	if s.Current() != nil {
		t.Error("expected no range when window is 0")
	}
}

func TestSelector_ReseedFollowsClock(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(24*time.Hour, start)

	if s.Reseed(start) {
		t.Error("Reseed at the seed time should report no change")
	}

	later := start.Add(48 * time.Hour)
	if !s.Reseed(later) {
		t.Fatal("Reseed after the clock advanced should move the window")
	}
	cur := s.Current()
	if cur == nil || !cur.End.Equal(later) || !cur.Start.Equal(later.Add(-24*time.Hour)) {
		t.Errorf("range = %+v, want window ending %v", cur, later)
	}
	if s.Explicit() {
		t.Error("a reseeded default is not an explicit selection")
	}
}

func TestSelector_ReseedKeepsExplicitSelection(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	picked := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s := New(24*time.Hour, start)
	if err := s.Select(picked, picked.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if s.Reseed(start.Add(time.Hour)) {
		t.Error("Reseed must not replace a user selection")
	}
	if cur := s.Current(); cur == nil || !cur.Start.Equal(picked) {
		t.Errorf("range = %+v, want start %v", cur, picked)
	}

	s.Clear()
	if s.Reseed(start.Add(2 * time.Hour)) {
		t.Error("Reseed must not restore the default after Clear")
	}
	if s.Current() != nil {
		t.Error("range should stay cleared")
	}
}

func TestSelector_ReseedWithoutWindow(t *testing.T) {
	s := New(0, time.Now())
	if s.Reseed(time.Now().Add(time.Hour)) || s.Current() != nil {
		t.Error("Reseed with no default window should do nothing")
	}
}

func TestSelector_SelectAndClear(t *testing.T) {
	s := New(0, time.Now())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Select(start, start.Add(time.Hour)); err != nil {
		t.Fatalf("Select error = %v", err)
	}
	if cur := s.Current(); cur == nil || !cur.Start.Equal(start) {
		t.Errorf("Current() = %v", cur)
	}

	if err := s.Select(start, start.Add(-time.Hour)); err == nil {
		t.Error("expected error for inverted range")
	}
	if cur := s.Current(); cur == nil || !cur.End.Equal(start.Add(time.Hour)) {
		t.Error("rejected selection must not replace the previous one")
	}

	s.Clear()
	if s.Current() != nil {
		t.Error("expected nil after Clear")
	}
}

func TestSelector_CurrentIsCopy(t *testing.T) {
	s := New(time.Hour, time.Now())
	cur := s.Current()
	cur.Start = time.Time{}

	if s.Current().Start.IsZero() {
		t.Error("mutating the returned range changed the selector")
	}
}

func TestSelector_CloseNotifiesListeners(t *testing.T) {
	s := New(time.Hour, time.Now())

	var calls int
	var got *record.TimeRange
	s.OnClose(func(tr *record.TimeRange) {
		calls++
		got = tr
	})
	s.OnClose(func(*record.TimeRange) { calls++ })

	s.Close()

	if calls != 2 {
		t.Errorf("listener calls = %d, want 2", calls)
	}
	if got == nil {
		t.Error("listener should receive the current range")
	}

	s.Clear()
	s.Close()
	if got != nil {
		t.Error("listener should receive nil after Clear")
	}
}

func TestParseInput(t *testing.T) {
	loc := time.UTC

	tests := []struct {
		name    string
		in      string
		wantNil bool
		wantErr bool
	}{
		{"full range", "2024-01-01 10:00 to 2024-01-02 10:00", false, false},
		{"single date", "2024-01-01 10:00", true, false},
		{"empty", "  ", true, false},
		{"garbage", "yesterday to today", false, true},
		{"inverted", "2024-01-02 10:00 to 2024-01-01 10:00", false, true},
		{"too many parts", "2024-01-01 10:00 to 2024-01-02 10:00 to 2024-01-03 10:00", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := ParseInput(tt.in, loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInput(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (tr == nil) != tt.wantNil {
				t.Errorf("ParseInput(%q) = %v, wantNil %v", tt.in, tr, tt.wantNil)
			}
		})
	}
}

func TestParseInput_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	tr, err := ParseInput("2024-01-01 10:00 to 2024-01-01 12:00", loc)
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	want := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	if !tr.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", tr.Start.UTC(), want)
	}
}

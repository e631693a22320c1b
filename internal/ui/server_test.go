package ui

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"logdash/internal/aggregate"
	"logdash/internal/history"
	"logdash/internal/rangesel"
	"logdash/internal/record"
	"logdash/internal/render"
)

type countingRefresher struct{ n atomic.Int32 }

func (c *countingRefresher) Refresh() { c.n.Add(1) }

type fixture struct {
	server    *Server
	http      *httptest.Server
	rc        *render.Context
	ranges    *rangesel.Selector
	hist      *history.Ring
	bus       *Bus
	refresher *countingRefresher
	closes    *atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, rangesel.New(0, time.Now()), time.Now)
}

func newFixtureWith(t *testing.T, ranges *rangesel.Selector, now func() time.Time) *fixture {
	t.Helper()
	f := &fixture{
		rc:        render.NewContext(time.UTC, true),
		ranges:    ranges,
		hist:      history.NewRing(10),
		bus:       NewBus(16),
		refresher: &countingRefresher{},
		closes:    &atomic.Int32{},
	}
	f.ranges.OnClose(func(*record.TimeRange) { f.closes.Add(1) })

	assets := fstest.MapFS{
		"index.html": {Data: []byte("<html>logdash</html>")},
		"app.js":     {Data: []byte("console.log(1)")},
	}
	f.server = NewServer(Options{
		Render:    f.rc,
		Refresher: f.refresher,
		Ranges:    f.ranges,
		History:   f.hist,
		Bus:       f.bus,
		Assets:    assets,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.server.now = now
	f.http = httptest.NewServer(f.server.Handler())
	t.Cleanup(func() {
		f.http.Close()
		f.bus.Shutdown()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func applyStats(t *testing.T, rc *render.Context, seq uint64) {
	t.Helper()
	u := render.StatsUpdate{
		Summary: aggregate.Summary{TotalCount: 2, AverageDurationMs: 15, ErrorRatePercent: 50},
		Traffic: aggregate.Series{Labels: []string{"9:05"}, Counts: []int{2}},
		Status:  aggregate.Series{Labels: []string{"200", "500"}, Counts: []int{1, 1}},
	}
	if ok, err := rc.ApplyStats(seq, u, time.Now()); !ok || err != nil {
		t.Fatalf("ApplyStats = %v, %v", ok, err)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	if resp := f.do(t, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("before first cycle: status = %d, want 503", resp.StatusCode)
	}
	applyStats(t, f.rc, 1)
	if resp := f.do(t, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("after first cycle: status = %d, want 200", resp.StatusCode)
	}
}

func TestView(t *testing.T) {
	f := newFixture(t)
	applyStats(t, f.rc, 1)

	resp := f.do(t, http.MethodGet, "/api/view", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var v render.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.Summary.Total != 2 || v.Summary.AvgDuration != "15.00ms" || v.Summary.ErrorRate != "50.0%" {
		t.Errorf("summary = %+v", v.Summary)
	}
	if len(v.Status.Labels) != 2 || len(v.Status.Colors) != 2 {
		t.Errorf("status chart = %+v", v.Status)
	}
}

func TestLogsTable(t *testing.T) {
	f := newFixture(t)
	f.rc.ApplyLogs(1, []record.LogRecord{{
		Timestamp: time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
		Service:   "api",
		Method:    "GET",
		Path:      "/health",
		Status:    200,
		Duration:  1.5,
	}}, time.Now())

	resp := f.do(t, http.MethodGet, "/api/logs/table", "")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"08:30:00", "/health", "1.50ms", `class="ok"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("table missing %q: %s", want, body)
		}
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/refresh", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if f.refresher.n.Load() != 1 {
		t.Errorf("refresh count = %d, want 1", f.refresher.n.Load())
	}
}

func TestSetRange(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantRange bool
		wantStart time.Time
	}{
		{
			name:      "rfc3339 bounds",
			body:      `{"start":"2024-01-01T10:00:00Z","end":"2024-01-01T12:00:00Z"}`,
			wantCode:  http.StatusAccepted,
			wantRange: true,
			wantStart: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:      "picker text",
			body:      `{"input":"2024-02-03 08:00 to 2024-02-03 09:30"}`,
			wantCode:  http.StatusAccepted,
			wantRange: true,
			wantStart: time.Date(2024, 2, 3, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "single picked date clears",
			body:     `{"input":"2024-02-03 08:00"}`,
			wantCode: http.StatusAccepted,
		},
		{
			name:     "end before start",
			body:     `{"start":"2024-01-01T12:00:00Z","end":"2024-01-01T10:00:00Z"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing bounds",
			body:     `{"start":"2024-01-01T12:00:00Z"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad picker text",
			body:     `{"input":"yesterday"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed json",
			body:     `{`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ranges.Select(time.Unix(0, 0), time.Unix(60, 0))

			resp := f.do(t, http.MethodPost, "/api/range", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if tt.wantCode != http.StatusAccepted {
				if f.closes.Load() != 0 {
					t.Error("rejected range must not fire close")
				}
				return
			}

			if f.closes.Load() != 1 {
				t.Errorf("close fired %d times, want 1", f.closes.Load())
			}
			cur := f.ranges.Current()
			if !tt.wantRange {
				if cur != nil {
					t.Errorf("range = %+v, want none", cur)
				}
				return
			}
			if cur == nil || !cur.Start.Equal(tt.wantStart) {
				t.Errorf("range = %+v, want start %v", cur, tt.wantStart)
			}
		})
	}
}

func TestClearRange(t *testing.T) {
	f := newFixture(t)
	f.ranges.Select(time.Unix(0, 0), time.Unix(60, 0))

	resp := f.do(t, http.MethodDelete, "/api/range", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if f.ranges.Current() != nil {
		t.Error("range should be cleared")
	}
	if f.closes.Load() != 1 {
		t.Errorf("close fired %d times, want 1", f.closes.Load())
	}

	var body RangeBody
	json.NewDecoder(f.do(t, http.MethodGet, "/api/range", "").Body).Decode(&body)
	if body.Start != nil || body.End != nil {
		t.Errorf("GET /api/range = %+v, want empty", body)
	}
}

func TestGetRange_ReseedsDefaultWindow(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var clock atomic.Int64
	clock.Store(start.UnixNano())
	f := newFixtureWith(t, rangesel.New(24*time.Hour, start), func() time.Time {
		return time.Unix(0, clock.Load()).UTC()
	})

	getRange := func() RangeBody {
		t.Helper()
		var body RangeBody
		if err := json.NewDecoder(f.do(t, http.MethodGet, "/api/range", "").Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		return body
	}

	if got := getRange(); got.End == nil || !got.End.Equal(start) {
		t.Fatalf("first load range = %+v, want end %v", got, start)
	}
	if f.closes.Load() != 0 {
		t.Errorf("unchanged window fired close %d times", f.closes.Load())
	}

	later := start.Add(2 * time.Hour)
	clock.Store(later.UnixNano())
	got := getRange()
	if got.Start == nil || got.End == nil || !got.End.Equal(later) || !got.Start.Equal(later.Add(-24*time.Hour)) {
		t.Fatalf("reload range = %+v, want window ending %v", got, later)
	}
	if cur := f.ranges.Current(); cur == nil || !cur.End.Equal(later) {
		t.Errorf("selector range = %+v, want end %v", cur, later)
	}
	if f.closes.Load() != 1 {
		t.Errorf("close fired %d times after reseed, want 1", f.closes.Load())
	}

	picked := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f.do(t, http.MethodPost, "/api/range", `{"start":"2024-01-01T10:00:00Z","end":"2024-01-01T12:00:00Z"}`)
	clock.Store(later.Add(time.Hour).UnixNano())
	if got := getRange(); got.Start == nil || !got.Start.Equal(picked) {
		t.Errorf("range after explicit pick = %+v, want start %v", got, picked)
	}
}

func TestCycles(t *testing.T) {
	f := newFixture(t)
	for i := uint64(1); i <= 5; i++ {
		f.hist.Add(history.Cycle{Seq: i, Trigger: "timer"})
	}

	var cycles []history.Cycle
	json.NewDecoder(f.do(t, http.MethodGet, "/api/cycles?limit=2", "").Body).Decode(&cycles)
	if len(cycles) != 2 || cycles[0].Seq != 5 {
		t.Errorf("cycles = %+v", cycles)
	}

	if resp := f.do(t, http.MethodGet, "/api/cycles?limit=abc", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}
}

func TestStatic(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path        string
		wantBody    string
		wantTypePre string
	}{
		{"/", "<html>logdash</html>", "text/html"},
		{"/app.js", "console.log(1)", "application/javascript"},
		{"/unknown/page", "<html>logdash</html>", "text/html"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, tt.path, "")
			body, _ := io.ReadAll(resp.Body)
			if string(body) != tt.wantBody {
				t.Errorf("body = %q", body)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, tt.wantTypePre) {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWebSocket_InitialViewThenUpdates(t *testing.T) {
	f := newFixture(t)
	applyStats(t, f.rc, 1)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.Type != EventView || first.View == nil || first.View.Summary.Total != 2 {
		t.Fatalf("initial event = %+v", first)
	}

	// Wait until the server has subscribed this client.
	deadline := time.Now().Add(time.Second)
	for f.server.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	v := f.rc.View()
	v.Seq = 42
	f.bus.Publish(v)

	var next Event
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Type != EventView || next.View.Seq != 42 {
		t.Errorf("update event = %+v", next)
	}

	if err := conn.WriteJSON(clientMessage{Type: "refresh"}); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(time.Second)
	for f.refresher.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.refresher.n.Load() != 1 {
		t.Error("refresh message should trigger a manual refresh")
	}
}

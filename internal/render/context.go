package render

import (
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"logdash/internal/aggregate"
	"logdash/internal/record"
)

// Indicator is the non-fatal status line shown above the dashboard.
type Indicator struct {
	OK      bool      `json:"ok"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Part names one independently fetched half of the view.
type Part string

const (
	PartStats Part = "stats"
	PartLogs  Part = "logs"
)

// failure is the last unresolved error for a part.
type failure struct {
	seq uint64
	msg string
}

// SummaryView holds the formatted headline counters.
type SummaryView struct {
	Total       int    `json:"total"`
	AvgDuration string `json:"avg_duration"`
	ErrorRate   string `json:"error_rate"`
}

// View is a consistent copy of everything the dashboard displays.
type View struct {
	Seq       uint64        `json:"seq"`
	UpdatedAt time.Time     `json:"updated_at"`
	Summary   SummaryView   `json:"summary"`
	Traffic   ChartSnapshot `json:"traffic"`
	Status    ChartSnapshot `json:"status"`
	Logs      []Row         `json:"logs"`
	Indicator Indicator     `json:"status_indicator"`
}

// StatsUpdate carries the aggregates computed from one stats fetch.
type StatsUpdate struct {
	Summary aggregate.Summary
	Traffic aggregate.Series
	Status  aggregate.Series
}

// Context is the render target owned by the refresh controller. Writes go
// through Apply*, which drop results from cycles older than the last applied
// one when the stale guard is on.
type Context struct {
	mu         sync.RWMutex
	traffic    *Chart
	status     *Chart
	table      *Table
	summary    aggregate.Summary
	loc        *time.Location
	staleGuard bool

	statsSeq    uint64
	logsSeq     uint64
	seq         uint64
	updatedAt   time.Time
	statsFail   failure
	logsFail    failure
	indicatorAt time.Time
}

// NewContext creates the two charts and the table once.
func NewContext(loc *time.Location, staleGuard bool) *Context {
	if loc == nil {
		loc = time.Local
	}
	return &Context{
		traffic:    NewChart(ChartLine, "Requests", []string{TrafficColor}),
		status:     NewChart(ChartDoughnut, "", StatusPalette),
		table:      NewTable(),
		loc:        loc,
		staleGuard: staleGuard,
	}
}

// Location is the zone used for minute buckets and row times.
func (c *Context) Location() *time.Location {
	return c.loc
}

// ApplyStats updates the counters and both charts. It reports false when the
// update came from a superseded cycle and was dropped.
func (c *Context) ApplyStats(seq uint64, u StatsUpdate, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleGuard && seq <= c.statsSeq {
		return false, nil
	}
	if len(u.Traffic.Labels) != len(u.Traffic.Counts) || len(u.Status.Labels) != len(u.Status.Counts) {
		return false, fmt.Errorf("stats update for cycle %d has mismatched series", seq)
	}
	if err := c.traffic.Update(u.Traffic.Labels, u.Traffic.Counts); err != nil {
		return false, err
	}
	if err := c.status.Update(u.Status.Labels, u.Status.Counts); err != nil {
		return false, err
	}
	c.summary = u.Summary
	c.statsSeq = seq
	c.statsFail = failure{}
	c.indicatorAt = now
	c.touch(seq, now)
	return true, nil
}

// ApplyLogs replaces the table rows. It reports false for superseded cycles.
func (c *Context) ApplyLogs(seq uint64, logs []record.LogRecord, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleGuard && seq <= c.logsSeq {
		return false
	}
	c.table.RenderLogs(logs, c.loc)
	c.logsSeq = seq
	c.logsFail = failure{}
	c.indicatorAt = now
	c.touch(seq, now)
	return true
}

// NoteFailure marks part as unavailable with msg. Applying the part clears
// the note. With the stale guard on, a failure from a cycle older than the
// last applied or noted one for that part is ignored.
func (c *Context) NoteFailure(part Part, seq uint64, msg string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fail, applied := &c.statsFail, c.statsSeq
	if part == PartLogs {
		fail, applied = &c.logsFail, c.logsSeq
	}
	if c.staleGuard && (seq <= applied || seq < fail.seq) {
		return false
	}
	*fail = failure{seq: seq, msg: msg}
	c.indicatorAt = now
	return true
}

// indicator builds the status line from the parts' failure notes.
// Callers hold c.mu.
func (c *Context) indicator() Indicator {
	var parts []string
	if c.statsFail.msg != "" {
		parts = append(parts, string(PartStats)+" unavailable: "+c.statsFail.msg)
	}
	if c.logsFail.msg != "" {
		parts = append(parts, string(PartLogs)+" unavailable: "+c.logsFail.msg)
	}
	return Indicator{OK: len(parts) == 0, Message: strings.Join(parts, "; "), At: c.indicatorAt}
}

func (c *Context) touch(seq uint64, now time.Time) {
	if seq > c.seq {
		c.seq = seq
	}
	c.updatedAt = now
}

// HasStats reports whether any stats update has been applied.
func (c *Context) HasStats() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.traffic.Revision() > 0
}

// View returns a consistent snapshot of the render state.
func (c *Context) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return View{
		Seq:       c.seq,
		UpdatedAt: c.updatedAt,
		Summary: SummaryView{
			Total:       c.summary.TotalCount,
			AvgDuration: c.summary.AverageDisplay(),
			ErrorRate:   c.summary.ErrorRateDisplay(),
		},
		Traffic:   c.traffic.Snapshot(),
		Status:    c.status.Snapshot(),
		Logs:      c.table.Rows(),
		Indicator: c.indicator(),
	}
}

// TableHTML renders the current log rows as a <tbody> fragment.
func (c *Context) TableHTML() (template.HTML, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table.HTML()
}

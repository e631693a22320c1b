package render

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"
	"time"

	"logdash/internal/record"
)

// TimeOfDayLayout shows the local time without a date.
const TimeOfDayLayout = "15:04:05"

// Row is one rendered log-table row.
type Row struct {
	Time        string `json:"time"`
	Service     string `json:"service"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      int    `json:"status"`
	StatusClass string `json:"status_class"`
	Duration    string `json:"duration"`
}

// StatusClass is "error" for status >= 400 and "ok" otherwise.
func StatusClass(status int) string {
	if status >= 400 {
		return "error"
	}
	return "ok"
}

// NewRow formats a record for the table in loc.
func NewRow(r record.LogRecord, loc *time.Location) Row {
	ts := r.Timestamp
	if loc != nil {
		ts = ts.In(loc)
	}
	return Row{
		Time:        ts.Format(TimeOfDayLayout),
		Service:     r.Service,
		Method:      r.Method,
		Path:        r.Path,
		Status:      r.Status,
		StatusClass: StatusClass(r.Status),
		Duration:    fmt.Sprintf("%.2fms", r.Duration),
	}
}

var rowsTemplate = template.Must(template.New("rows").Parse(
	`{{range .}}<tr><td>{{.Time}}</td><td>{{.Service}}</td><td>{{.Method}}</td><td>{{.Path}}</td><td class="{{.StatusClass}}">{{.Status}}</td><td>{{.Duration}}</td></tr>
{{end}}`))

// Table holds the recent-log rows. Every render replaces all rows.
type Table struct {
	mu   sync.RWMutex
	rows []Row
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{rows: []Row{}}
}

// RenderLogs replaces the rows with one per entry, in the order given.
func (t *Table) RenderLogs(entries []record.LogRecord, loc *time.Location) {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = NewRow(e, loc)
	}
	t.mu.Lock()
	t.rows = rows
	t.mu.Unlock()
}

// Rows returns a copy of the current rows.
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// HTML renders the rows as a <tbody> fragment with escaped cell values.
func (t *Table) HTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := rowsTemplate.Execute(&buf, t.Rows()); err != nil {
		return "", fmt.Errorf("render log rows: %w", err)
	}
	return template.HTML(buf.String()), nil
}

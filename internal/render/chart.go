// Package render owns the dashboard's render state: two persistent charts,
// the summary counters and the recent-log table.
package render

import (
	"fmt"
	"sync"
)

// ChartType names the chart kind understood by the browser renderer.
type ChartType string

const (
	ChartLine     ChartType = "line"
	ChartDoughnut ChartType = "doughnut"
)

var (
	// TrafficColor is the traffic line colour.
	TrafficColor = "#38bdf8"

	// StatusPalette is cycled when more statuses than colours appear.
	StatusPalette = []string{"#22c55e", "#f43f5e", "#eab308"}
)

// Chart is a persistent chart whose labels and data are swapped together.
type Chart struct {
	mu       sync.RWMutex
	kind     ChartType
	series   string
	palette  []string
	labels   []string
	data     []int
	revision uint64
}

// NewChart creates an empty chart. series may be empty for unnamed datasets.
func NewChart(kind ChartType, series string, palette []string) *Chart {
	p := make([]string, len(palette))
	copy(p, palette)
	return &Chart{
		kind:    kind,
		series:  series,
		palette: p,
		labels:  []string{},
		data:    []int{},
	}
}

// Update replaces labels and data and counts a redraw. Slices of different
// lengths are rejected and the previous state is kept.
func (c *Chart) Update(labels []string, data []int) error {
	if len(labels) != len(data) {
		return fmt.Errorf("chart %s: %d labels for %d values", c.kind, len(labels), len(data))
	}

	l := make([]string, len(labels))
	copy(l, labels)
	d := make([]int, len(data))
	copy(d, data)

	c.mu.Lock()
	c.labels = l
	c.data = d
	c.revision++
	c.mu.Unlock()
	return nil
}

// ChartSnapshot is a consistent copy of a chart's state.
type ChartSnapshot struct {
	Type     ChartType `json:"type"`
	Series   string    `json:"series,omitempty"`
	Labels   []string  `json:"labels"`
	Data     []int     `json:"data"`
	Colors   []string  `json:"colors"`
	Revision uint64    `json:"revision"`
}

// Snapshot returns copies of labels, data and per-point colours.
func (c *Chart) Snapshot() ChartSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := ChartSnapshot{
		Type:     c.kind,
		Series:   c.series,
		Labels:   make([]string, len(c.labels)),
		Data:     make([]int, len(c.data)),
		Colors:   cycleColors(c.palette, len(c.labels)),
		Revision: c.revision,
	}
	copy(s.Labels, c.labels)
	copy(s.Data, c.data)
	return s
}

// Revision counts applied updates.
func (c *Chart) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

func cycleColors(palette []string, n int) []string {
	out := make([]string, n)
	if len(palette) == 0 {
		return out
	}
	for i := range out {
		out[i] = palette[i%len(palette)]
	}
	return out
}

// Package aggregate turns fetched records into the dashboard's counters and
// chart series. Every function is pure: the same input yields the same output.
package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"logdash/internal/record"
)

// Summary holds the headline counters. Values are unrounded; rounding is a
// display concern.
type Summary struct {
	TotalCount        int     `json:"total_count"`
	AverageDurationMs float64 `json:"average_duration_ms"`
	ErrorRatePercent  float64 `json:"error_rate_percent"`
}

// ComputeSummary counts records, averages their duration and derives the share
// of responses with status >= 400. An empty input yields all zeros.
func ComputeSummary(records []record.LogRecord) Summary {
	s := Summary{TotalCount: len(records)}
	if len(records) == 0 {
		return s
	}

	var total float64
	var errs int
	for _, r := range records {
		total += r.Duration
		if r.IsError() {
			errs++
		}
	}
	s.AverageDurationMs = total / float64(len(records))
	s.ErrorRatePercent = float64(errs) / float64(len(records)) * 100
	return s
}

// AverageDisplay renders the mean duration to 2 decimals with a unit suffix.
// With no records the counter shows a bare "0ms".
func (s Summary) AverageDisplay() string {
	if s.TotalCount == 0 {
		return "0ms"
	}
	return fmt.Sprintf("%.2fms", s.AverageDurationMs)
}

// ErrorRateDisplay renders the error rate to 1 decimal as a percentage.
func (s Summary) ErrorRateDisplay() string {
	if s.TotalCount == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", s.ErrorRatePercent)
}

// Series is an ordered label/count pair set ready for a chart.
type Series struct {
	Labels []string
	Counts []int
}

// TrafficBuckets counts records per minute of day, keyed "H:MM".
type TrafficBuckets map[string]int

// MinuteKey formats t as unpadded hour and zero-padded minute in loc.
func MinuteKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
}

// BucketByMinute groups records by the local minute of their timestamp.
// Minutes from different days share a bucket.
func BucketByMinute(records []record.LogRecord, loc *time.Location) TrafficBuckets {
	b := make(TrafficBuckets)
	for _, r := range records {
		b[MinuteKey(r.Timestamp, loc)]++
	}
	return b
}

// Labels returns the keys in ascending string order. This places "10:00"
// before "9:05"; callers wanting clock order use ChronologicalLabels.
func (b TrafficBuckets) Labels() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ChronologicalLabels returns the keys ordered by hour, then minute.
func (b TrafficBuckets) ChronologicalLabels() []string {
	keys := b.Labels()
	sort.SliceStable(keys, func(i, j int) bool {
		return minuteOfDay(keys[i]) < minuteOfDay(keys[j])
	})
	return keys
}

// Series pairs the given label order with counts.
func (b TrafficBuckets) Series(labels []string) Series {
	counts := make([]int, len(labels))
	for i, k := range labels {
		counts[i] = b[k]
	}
	return Series{Labels: labels, Counts: counts}
}

// Total sums all bucket counts.
func (b TrafficBuckets) Total() int {
	n := 0
	for _, c := range b {
		n += c
	}
	return n
}

func minuteOfDay(key string) int {
	var h, m int
	if _, err := fmt.Sscanf(key, "%d:%d", &h, &m); err != nil {
		return -1
	}
	return h*60 + m
}

// StatusDistribution counts records per exact status code in first-seen order.
type StatusDistribution struct {
	order  []int
	counts map[int]int
}

// DistributionByStatus groups records by status code.
func DistributionByStatus(records []record.LogRecord) StatusDistribution {
	d := StatusDistribution{counts: make(map[int]int)}
	for _, r := range records {
		if _, seen := d.counts[r.Status]; !seen {
			d.order = append(d.order, r.Status)
		}
		d.counts[r.Status]++
	}
	return d
}

// Statuses returns the distinct codes in first-seen order.
func (d StatusDistribution) Statuses() []int {
	out := make([]int, len(d.order))
	copy(out, d.order)
	return out
}

// Count returns how many records had status code.
func (d StatusDistribution) Count(code int) int {
	return d.counts[code]
}

// Len is the number of distinct codes.
func (d StatusDistribution) Len() int {
	return len(d.order)
}

// Total sums all counts.
func (d StatusDistribution) Total() int {
	n := 0
	for _, c := range d.counts {
		n += c
	}
	return n
}

// Series returns labels and counts in first-seen order.
func (d StatusDistribution) Series() Series {
	s := Series{
		Labels: make([]string, len(d.order)),
		Counts: make([]int, len(d.order)),
	}
	for i, code := range d.order {
		s.Labels[i] = strconv.Itoa(code)
		s.Counts[i] = d.counts[code]
	}
	return s
}

// Package refresh drives the fetch, aggregate and render cycle.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"logdash/internal/aggregate"
	"logdash/internal/fetch"
	"logdash/internal/history"
	"logdash/internal/record"
	"logdash/internal/render"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerLoad   Trigger = "load"
	TriggerManual Trigger = "manual"
	TriggerRange  Trigger = "range"
	TriggerTimer  Trigger = "timer"
)

// DefaultInterval is the timer period when none is configured.
const DefaultInterval = 5 * time.Second

// Fetcher retrieves one cycle's worth of backend data.
type Fetcher interface {
	Fetch(ctx context.Context, tr *record.TimeRange, logLimit int) fetch.Result
}

// RangeSource supplies the time range in effect when a cycle starts.
type RangeSource interface {
	Current() *record.TimeRange
}

// Publisher receives the render view after a cycle changed it.
type Publisher interface {
	Publish(v render.View)
}

// Options tunes a Controller.
type Options struct {
	Interval      time.Duration
	LogLimit      int
	Chronological bool // order traffic labels by minute of day instead of as strings
}

// Controller owns the render context and runs cycles for every trigger.
// Cycles are never coalesced: each trigger runs in its own goroutine and
// overlapping cycles race to the render context, which drops superseded
// results when its stale guard is on.
type Controller struct {
	fetcher   Fetcher
	ranges    RangeSource
	rc        *render.Context
	hist      *history.Ring
	publisher Publisher
	metrics   *Metrics
	logger    *slog.Logger
	opts      Options

	seq atomic.Uint64
	wg  sync.WaitGroup

	mu      sync.RWMutex
	baseCtx context.Context

	now func() time.Time
}

// NewController wires a controller. publisher, hist and metrics may be nil.
func NewController(f Fetcher, ranges RangeSource, rc *render.Context, hist *history.Ring, publisher Publisher, metrics *Metrics, logger *slog.Logger, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LogLimit <= 0 {
		opts.LogLimit = fetch.DefaultLogLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		fetcher:   f,
		ranges:    ranges,
		rc:        rc,
		hist:      hist,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
		baseCtx:   context.Background(),
		now:       time.Now,
	}
}

// Context returns the render context the controller writes to.
func (c *Controller) Context() *render.Context {
	return c.rc
}

// Run fires the load cycle, then a timer cycle every interval until ctx is
// done. It waits for in-flight cycles before returning.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	c.Trigger(TriggerLoad)

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Trigger(TriggerTimer)
		case <-ctx.Done():
			c.wg.Wait()
			return nil
		}
	}
}

// Trigger starts a cycle in the background and returns immediately.
func (c *Controller) Trigger(t Trigger) {
	c.mu.RLock()
	ctx := c.baseCtx
	c.mu.RUnlock()
	if ctx.Err() != nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.RunCycle(ctx, t)
	}()
}

// Refresh starts a manual cycle.
func (c *Controller) Refresh() {
	c.Trigger(TriggerManual)
}

// RangeClosed starts a range cycle. It matches the selector's close hook.
func (c *Controller) RangeClosed(_ *record.TimeRange) {
	c.Trigger(TriggerRange)
}

// Wait blocks until every started cycle has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// RunCycle performs one cycle synchronously and returns its history entry.
func (c *Controller) RunCycle(ctx context.Context, trigger Trigger) history.Cycle {
	seq := c.seq.Add(1)
	start := c.now()

	var tr *record.TimeRange
	if c.ranges != nil {
		tr = c.ranges.Current()
	}
	res := c.fetcher.Fetch(ctx, tr, c.opts.LogLimit)

	cycle := history.Cycle{
		Seq:     seq,
		Trigger: string(trigger),
		Start:   start,
		Records: len(res.Records),
		Logs:    len(res.RecentLogs),
	}

	if ctx.Err() != nil {
		// Shutdown: leave the last render untouched.
		cycle.Duration = c.now().Sub(start)
		c.metrics.RecordCycle(trigger, OutcomeCanceled, cycle.Duration)
		c.logger.Debug("refresh cycle canceled", "seq", seq, "trigger", trigger)
		return cycle
	}

	now := c.now()
	changed := false

	if res.StatsErr == nil {
		applied, err := c.rc.ApplyStats(seq, c.aggregate(res.Records), now)
		switch {
		case err != nil:
			res.StatsErr = err
		case applied:
			cycle.StatsApplied = true
			changed = true
			c.metrics.UpdateRecords(len(res.Records))
		default:
			c.metrics.RecordStale("stats")
			c.logger.Debug("discarded stale stats", "seq", seq, "trigger", trigger)
		}
	}
	if res.StatsErr != nil {
		cycle.StatsErr = res.StatsErr.Error()
		c.metrics.RecordFetchError(fetch.EndpointStats)
		c.logger.Warn("stats refresh failed", "seq", seq, "trigger", trigger, "err", res.StatsErr)
		if c.rc.NoteFailure(render.PartStats, seq, describe(res.StatsErr), now) {
			changed = true
		}
	}

	if res.LogsErr == nil {
		if c.rc.ApplyLogs(seq, res.RecentLogs, now) {
			cycle.LogsApplied = true
			changed = true
		} else {
			c.metrics.RecordStale("logs")
			c.logger.Debug("discarded stale logs", "seq", seq, "trigger", trigger)
		}
	} else {
		cycle.LogsErr = res.LogsErr.Error()
		c.metrics.RecordFetchError(fetch.EndpointLogs)
		c.logger.Warn("logs refresh failed", "seq", seq, "trigger", trigger, "err", res.LogsErr)
		if c.rc.NoteFailure(render.PartLogs, seq, describe(res.LogsErr), now) {
			changed = true
		}
	}

	cycle.Duration = c.now().Sub(start)
	c.metrics.RecordCycle(trigger, outcomeOf(res), cycle.Duration)
	if c.hist != nil {
		c.hist.Add(cycle)
	}
	if changed && c.publisher != nil {
		c.publisher.Publish(c.rc.View())
	}
	return cycle
}

func (c *Controller) aggregate(records []record.LogRecord) render.StatsUpdate {
	loc := c.rc.Location()
	buckets := aggregate.BucketByMinute(records, loc)
	labels := buckets.Labels()
	if c.opts.Chronological {
		labels = buckets.ChronologicalLabels()
	}
	return render.StatsUpdate{
		Summary: aggregate.ComputeSummary(records),
		Traffic: buckets.Series(labels),
		Status:  aggregate.DistributionByStatus(records).Series(),
	}
}

func describe(err error) string {
	var se *fetch.StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}

func outcomeOf(res fetch.Result) string {
	switch {
	case res.OK():
		return OutcomeOK
	case res.StatsErr != nil && res.LogsErr != nil:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

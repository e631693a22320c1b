// Package fetch retrieves request-log records from the stats backend.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"logdash/internal/record"
)

const (
	EndpointStats = "/api/stats"
	EndpointLogs  = "/api/logs"

	// DefaultLogLimit is how many recent log rows the table shows.
	DefaultLogLimit = 20

	errorBodyMax = 1024
)

// Client is a read-only client for the backend's stats and logs endpoints.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

// NewClient constructs a backend client. A zero timeout means requests are
// bounded only by their context.
func NewClient(base string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", base)
	}
	return &Client{
		BaseURL: u,
		HTTP:    &http.Client{Timeout: timeout},
	}, nil
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Result holds the outcome of one fetch pass. The two parts succeed or fail
// independently.
type Result struct {
	Records    []record.LogRecord
	RecentLogs []record.LogRecord
	StatsErr   error
	LogsErr    error
}

// OK reports whether both parts succeeded.
func (r Result) OK() bool {
	return r.StatsErr == nil && r.LogsErr == nil
}

// Fetch runs the stats and logs requests concurrently.
func (c *Client) Fetch(ctx context.Context, tr *record.TimeRange, logLimit int) Result {
	var (
		res Result
		wg  sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.Records, res.StatsErr = c.FetchStats(ctx, tr)
	}()
	go func() {
		defer wg.Done()
		res.RecentLogs, res.LogsErr = c.FetchLogs(ctx, logLimit)
	}()
	wg.Wait()
	return res
}

// FetchStats returns every record in tr, or in the server's default window
// when tr is nil.
func (c *Client) FetchStats(ctx context.Context, tr *record.TimeRange) ([]record.LogRecord, error) {
	q := url.Values{}
	if tr != nil && !tr.Start.IsZero() && !tr.End.IsZero() {
		q.Set("start", formatInstant(tr.Start))
		q.Set("end", formatInstant(tr.End))
	}
	return c.get(ctx, EndpointStats, q)
}

// FetchLogs returns the most recent log rows, newest first as ordered by the
// server, capped at limit.
func (c *Client) FetchLogs(ctx context.Context, limit int) ([]record.LogRecord, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	recs, err := c.get(ctx, EndpointLogs, q)
	if err != nil {
		return nil, err
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]record.LogRecord, error) {
	u := c.BaseURL.ResolveReference(&url.URL{Path: endpoint})
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := ioReadAllLimit(resp.Body, errorBodyMax)
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(bytes.TrimSpace(buf))}
	}

	var out []record.LogRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return out, nil
}

// formatInstant renders t the way a browser's Date.toISOString does.
func formatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func ioReadAllLimit(r io.Reader, max int64) ([]byte, error) {
	buf := &bytes.Buffer{}
	if max <= 0 {
		return io.ReadAll(r)
	}
	_, err := io.CopyN(buf, r, max+1)
	if err != nil && err != io.EOF {
		return nil, err
	}
	b := buf.Bytes()
	if int64(len(b)) > max {
		return b[:max], nil
	}
	return b, nil
}

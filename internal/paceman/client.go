package paceman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pacewatch/internal/pace"
	logx "pacewatch/pkg/logx"
)

// ErrNotFound marks a run whose data has been retracted upstream (or never
// existed). Callers treat it as fatal for that run only.
var ErrNotFound = errors.New("paceman: not found")

// UpstreamError wraps transient transport/HTTP failures so callers can
// log-and-continue on the next tick.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("paceman: %s: http %d", e.Op, e.Status)
	}
	return fmt.Sprintf("paceman: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const liveRunsCacheKey = "liveruns"

type Config struct {
	BaseURL      string // stats API base, e.g. https://paceman.gg/stats/api
	LiveURL      string // live-runs feed URL
	Timeout      time.Duration
	RatePerSec   int
	LiveCacheTTL time.Duration
}

// Client talks to the upstream API. It rate-limits all calls and caches the
// shared live-runs feed so N watchers cost one fetch per TTL window.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   Cache
	log     logx.Logger
}

func New(cfg Config, cache Cache, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://paceman.gg/stats/api"
	}
	if cfg.LiveURL == "" {
		cfg.LiveURL = "https://paceman.gg/api/ars/liveruns"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 4
	}
	if cfg.LiveCacheTTL <= 0 {
		cfg.LiveCacheTTL = 4 * time.Second
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		cache:   cache,
		log:     log,
	}
}

// RecentRunID returns the streamer's most recent run ID, or ok=false when the
// streamer has no recorded runs.
func (c *Client) RecentRunID(ctx context.Context, streamer string) (int64, bool, error) {
	q := url.Values{}
	q.Set("name", streamer)
	q.Set("limit", "1")
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/getRecentRuns/?" + q.Encode()

	var runs []RecentRun
	if err := c.getJSON(ctx, "recent runs", u, &runs); err != nil {
		return 0, false, err
	}
	if len(runs) == 0 || runs[0].ID == 0 {
		return 0, false, nil
	}
	return runs[0].ID, true, nil
}

// RunSnapshot fetches the committed world state of one run. A 404 (or an
// empty body) is reported as ErrNotFound: the run was retracted upstream.
func (c *Client) RunSnapshot(ctx context.Context, runID int64) (*RunSnapshot, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/getWorld/?worldId=" + strconv.FormatInt(runID, 10)

	var snap RunSnapshot
	if err := c.getJSON(ctx, "run snapshot", u, &snap); err != nil {
		return nil, err
	}
	if len(snap.Data) == 0 {
		return nil, ErrNotFound
	}
	return &snap, nil
}

// LiveEvents returns the live event feed entry for one streamer, resolved
// from the shared (cached) live-runs listing. ok=false means the streamer has
// no live run right now.
func (c *Client) LiveEvents(ctx context.Context, streamer string) (pace.LiveEvents, bool, error) {
	runs, err := c.liveRuns(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, r := range runs {
		if r.Matches(streamer) {
			return r.Events(), true, nil
		}
	}
	return nil, false, nil
}

func (c *Client) liveRuns(ctx context.Context) ([]LiveRun, error) {
	if v, ok := c.cache.Get(liveRunsCacheKey); ok {
		if runs, ok := v.([]LiveRun); ok {
			return runs, nil
		}
	}

	var runs []LiveRun
	if err := c.getJSON(ctx, "live runs", c.cfg.LiveURL, &runs); err != nil {
		return nil, err
	}
	c.cache.Set(liveRunsCacheKey, runs, c.cfg.LiveCacheTTL)
	return runs, nil
}

func (c *Client) getJSON(ctx context.Context, op, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return &UpstreamError{Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// Package syncclient talks to the remote schedule store. All outbound calls
// go through one retrying core with circuit breaking, request body replay,
// and deterministic exponential backoff, so transient remote failures are
// absorbed without duplicating schedule state: a save is a full replace of
// one scope, which makes retries idempotent.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"powersched/internal/recurrence"
	"powersched/internal/schedule"
	"powersched/internal/types"
)

// Options configures the sync client. RetryAttempts counts retries after the
// first try, so a call makes at most RetryAttempts+1 requests. The delay
// before retry n (zero-based) is BaseDelay * 2^n.
type Options struct {
	BaseURL       string
	Token         string
	RetryAttempts int
	BaseDelay     time.Duration
	Timeout       time.Duration
}

// DefaultOptions returns the production retry posture.
func DefaultOptions(baseURL, token string) Options {
	return Options{
		BaseURL:       baseURL,
		Token:         token,
		RetryAttempts: 3,
		BaseDelay:     500 * time.Millisecond,
		Timeout:       15 * time.Second,
	}
}

// Client is the remote schedule store client.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	opts    Options
	logger  *slog.Logger
	clock   types.Clock
	sleepFn func(time.Duration)
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithSleepFunc overrides the sleep between retries, for tests.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleepFn = fn }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(clock types.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a sync client.
func New(opts Options, logger *slog.Logger, clientOpts ...Option) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "schedule-sync",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		breaker: cb,
		opts:    opts,
		logger:  logger,
		clock:   types.RealClock{},
		sleepFn: time.Sleep,
	}
	for _, o := range clientOpts {
		o(c)
	}
	return c
}

// FetchAll retrieves the schedule data for the given remote keys in one
// round trip. Every requested key is present in the result; keys unknown to
// the remote store map to an empty per-host object. Legacy single-object
// host values are upgraded on the way in.
func (c *Client) FetchAll(ctx context.Context, keys []string) (map[string]types.HostSchedules, error) {
	payload, err := json.Marshal(types.FetchRequest{Keys: keys})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "encoding fetch request", err)
	}

	body, err := c.post(ctx, "/schedules/fetch", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items map[string]map[string]json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewAppError(types.ErrCodeRemoteStatus, "decoding fetch response", err)
	}

	items := make(map[string]types.HostSchedules, len(keys))
	for key, hosts := range resp.Items {
		data := make(types.HostSchedules, len(hosts))
		for host, raw := range hosts {
			entries, err := schedule.DecodeEntryList(raw)
			if err != nil {
				return nil, types.NewAppError(types.ErrCodeRemoteStatus,
					fmt.Sprintf("decoding fetched schedules for %s/%s", key, host), err)
			}
			if len(entries) > 0 {
				data[host] = entries
			}
		}
		items[key] = data
	}
	for _, key := range keys {
		if _, ok := items[key]; !ok {
			items[key] = make(types.HostSchedules)
		}
	}
	return items, nil
}

// SaveOne pushes one scope's full per-host state. Each entry in the payload
// is enriched with its cron translation; the enrichment happens on a copy
// and never leaks back into local state.
func (c *Client) SaveOne(ctx context.Context, scope types.ScopeKey, data types.HostSchedules, user string) error {
	payload, err := json.Marshal(types.SaveRequest{
		Key:       scope.RemoteKey(),
		Data:      enrichWithCronjobs(data),
		User:      user,
		Timestamp: c.clock.Now().Format(time.RFC3339),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "encoding save request", err)
	}

	if _, err := c.post(ctx, "/schedules/save", payload); err != nil {
		return err
	}
	return nil
}

// SaveMultiple pushes a batch of dirty scopes sequentially, continuing past
// per-scope failures. The result slice has one entry per change, in order.
func (c *Client) SaveMultiple(ctx context.Context, changes []types.ScopeChange, user string) []types.SaveResult {
	results := make([]types.SaveResult, 0, len(changes))
	for _, change := range changes {
		err := c.SaveOne(ctx, change.Scope, change.Data, user)
		if err != nil {
			c.logger.Error("scope save failed",
				"scope", change.Scope.String(), "error", err)
		}
		results = append(results, types.SaveResult{Key: change.Scope.RemoteKey(), Err: err})
	}
	return results
}

// post runs one remote call through the breaker and retry loop. Retries
// cover network errors, 429, and 5xx; other statuses return immediately.
// The delay before retry n is BaseDelay * 2^n with no jitter, so the retry
// schedule is reproducible.
func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.opts.RetryAttempts
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "building remote request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.opts.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.Token)
		}
		if traceID := types.GetRequestID(ctx); traceID != "" {
			req.Header.Set("X-B3-TraceId", traceID)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.http.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("remote store returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			defer resp.Body.Close()
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, types.NewAppError(types.ErrCodeRemoteUnavailable, "reading remote response", readErr)
			}
			if resp.StatusCode >= 400 {
				return nil, types.NewAppError(types.ErrCodeRemoteStatus,
					fmt.Sprintf("remote store returned %d for %s", resp.StatusCode, path), nil).
					WithDetails(map[string]any{"status": resp.StatusCode, "body": string(body)})
			}
			return body, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			delay := c.opts.BaseDelay * (1 << attempt)
			c.logger.Warn("remote call failed, retrying",
				"path", path, "attempt", attempt+1, "delay", delay, "error", err)
			c.sleepFn(delay)
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

func (c *Client) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeRemoteUnavailable,
			"circuit breaker is open; remote store unavailable", err)
	}
	if resp != nil {
		return types.NewAppError(types.ErrCodeRemoteStatus,
			fmt.Sprintf("remote store returned %d after retries", resp.StatusCode), err).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	return types.NewAppError(types.ErrCodeRemoteUnavailable, "remote store unreachable", err)
}

// enrichWithCronjobs returns a copy of the scope data with each entry's cron
// expressions attached for the consumer that applies them host-side.
func enrichWithCronjobs(data types.HostSchedules) types.HostSchedules {
	out := make(types.HostSchedules, len(data))
	for host, entries := range data {
		list := make([]types.ScheduleEntry, len(entries))
		for i, e := range entries {
			e.Cronjobs = recurrence.CronStrings(e)
			list[i] = e
		}
		out[host] = list
	}
	return out
}

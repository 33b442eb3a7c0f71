// Package report exports activity logs from the cloud security service to
// CSV. The activity API is paginated by offset within a time window; deep
// windows are fetched hour by hour, falling back to minute windows when the
// service refuses the hour (HTTP 400/404) or the offset grows past the
// configured ceiling.
package report

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

	"grimm.is/icebox/internal/clock"
	"grimm.is/icebox/internal/config"
	"grimm.is/icebox/internal/logging"
)

const (
	tokenPath    = "/auth/v2/token"
	activityPath = "/reports/v2/activity"

	maxAuthRefreshes   = 5
	maxTransportRetry  = 5
	transportBaseDelay = time.Second
)

// ErrAuthRejected is returned when the service keeps rejecting freshly
// issued tokens.
var ErrAuthRejected = errors.New("authentication rejected by activity API")

// Event is one activity record as returned by the service. The schema is
// service-defined and open-ended, so it stays a raw map until CSV writing.
type Event map[string]any

// Options are optional client collaborators.
type Options struct {
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *logging.Logger
}

// Client fetches activity events with token refresh, pagination and rate
// limiting.
type Client struct {
	cfg     *config.ReportConfig
	http    *http.Client
	clk     clock.Clock
	logger  *logging.Logger
	limiter *RateLimiter

	token string
}

// NewClient creates a client for the configured reporting endpoint.
func NewClient(cfg *config.ReportConfig, opts Options) *Client {
	c := &Client{
		cfg:    cfg,
		http:   opts.HTTPClient,
		clk:    opts.Clock,
		logger: opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.clk == nil {
		c.clk = clock.RealClock{}
	}
	if c.logger == nil {
		c.logger = logging.Default().WithComponent("report")
	}
	c.limiter = NewRateLimiter(cfg.MaxRequestsPerHr, time.Hour, c.clk)
	return c
}

// Authenticate obtains a bearer token via the client-credentials grant.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.APIURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("%w: token endpoint returned %d: %s", ErrAuthRejected, resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("%w: empty access_token", ErrAuthRejected)
	}
	c.token = payload.AccessToken
	return nil
}

// FetchHour returns all events in the hour starting at hourStart. When the
// whole-hour query is refused or paginates past the offset ceiling, it
// retries the hour as sixty one-minute windows.
func (c *Client) FetchHour(ctx context.Context, hourStart time.Time) ([]Event, error) {
	hourEnd := hourStart.Add(time.Hour).Add(-time.Millisecond)

	events, fallback, err := c.fetchWindow(ctx, hourStart, hourEnd, c.cfg.OffsetCeiling)
	if err != nil {
		return nil, err
	}
	if !fallback {
		return events, nil
	}

	c.logger.Info("hour window refused, falling back to minute windows",
		"hour", hourStart.Format("2006-01-02 15:00"))

	var collected []Event
	for m := 0; m < 60; m++ {
		minuteStart := hourStart.Add(time.Duration(m) * time.Minute)
		minuteEnd := minuteStart.Add(time.Minute).Add(-time.Millisecond)

		minuteEvents, _, err := c.fetchWindow(ctx, minuteStart, minuteEnd, 0)
		if err != nil {
			return nil, err
		}
		collected = append(collected, minuteEvents...)
	}
	return collected, nil
}

// fetchWindow paginates events between from and to. The second return is
// true when the caller should fall back to smaller windows.
func (c *Client) fetchWindow(ctx context.Context, from, to time.Time, offsetCeiling int) ([]Event, bool, error) {
	var events []Event
	offset := 0
	refreshes := 0

	for {
		if offsetCeiling > 0 && offset >= offsetCeiling {
			return events, true, nil
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, false, err
		}

		resp, err := c.getActivityPage(ctx, from, to, offset)
		if err != nil {
			return nil, false, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var payload struct {
				Data []Event `json:"data"`
			}
			err := json.NewDecoder(resp.Body).Decode(&payload)
			resp.Body.Close()
			if err != nil {
				return nil, false, fmt.Errorf("decode activity page: %w", err)
			}
			if len(payload.Data) == 0 {
				return events, false, nil
			}
			events = append(events, payload.Data...)
			offset += len(payload.Data)
			refreshes = 0
			if len(payload.Data) < c.cfg.PageSize {
				return events, false, nil
			}

		case http.StatusForbidden:
			resp.Body.Close()
			refreshes++
			if refreshes >= maxAuthRefreshes {
				return nil, false, fmt.Errorf("%w: %d consecutive 403s", ErrAuthRejected, refreshes)
			}
			c.logger.Warn("activity API returned 403, refreshing token", "attempt", refreshes)
			if err := c.Authenticate(ctx); err != nil {
				return nil, false, err
			}
			// Retry the same page with the fresh token.

		case http.StatusBadRequest, http.StatusNotFound:
			resp.Body.Close()
			return events, true, nil

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
			resp.Body.Close()
			return nil, false, fmt.Errorf("activity API returned %d: %s", resp.StatusCode, body)
		}
	}
}

// getActivityPage performs one GET with retry on transport errors.
func (c *Client) getActivityPage(ctx context.Context, from, to time.Time, offset int) (*http.Response, error) {
	q := url.Values{
		"from":   {strconv.FormatInt(from.UnixMilli(), 10)},
		"to":     {strconv.FormatInt(to.UnixMilli(), 10)},
		"limit":  {strconv.Itoa(c.cfg.PageSize)},
		"offset": {strconv.Itoa(offset)},
	}

	var lastErr error
	for attempt := 0; attempt < maxTransportRetry; attempt++ {
		if attempt > 0 {
			delay := transportBaseDelay << (attempt - 1)
			c.logger.Warn("transport error, retrying", "delay", delay.String(), "error", lastErr)
			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.APIURL+activityPath+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("activity API unreachable after %d attempts: %w", maxTransportRetry, lastErr)
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := c.clk.NewTimer(d)
	defer timer.Stop()
	return timer.Wait(ctx)
}

// Export fetches every hour in [from, to) and streams the events to the
// writer. It returns the number of events written.
func (c *Client) Export(ctx context.Context, from, to time.Time, w *CSVWriter) (int, error) {
	if c.token == "" {
		if err := c.Authenticate(ctx); err != nil {
			return 0, err
		}
	}

	total := 0
	for hour := from.Truncate(time.Hour); hour.Before(to); hour = hour.Add(time.Hour) {
		events, err := c.FetchHour(ctx, hour)
		if err != nil {
			return total, fmt.Errorf("hour %s: %w", hour.Format(time.RFC3339), err)
		}
		if err := w.WriteEvents(events); err != nil {
			return total, err
		}
		total += len(events)
		c.logger.Info("hour exported", "hour", hour.Format("2006-01-02 15:00"), "events", len(events))
	}
	return total, w.Flush()
}

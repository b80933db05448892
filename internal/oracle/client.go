// Package oracle queries an external calendar provider for free/busy
// intervals. The oracle is a convenience signal, not a source of truth:
// callers treat every failure as "no additional busy information".
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tessaly/bookingd/internal/availability"
)

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	httpc   *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
		httpc:   &http.Client{},
	}
}

type freeBusyRequest struct {
	CalendarID string `json:"calendar_id"`
	TimeMin    string `json:"time_min"`
	TimeMax    string `json:"time_max"`
}

type freeBusyResponse struct {
	Busy []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"busy"`
}

// FreeBusy returns busy intervals for the calendar within [from, to). The
// call carries a short timeout on top of the caller's context so a slow
// provider cannot stall availability requests.
func (c *Client) FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]availability.Interval, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(freeBusyRequest{
		CalendarID: calendarID,
		TimeMin:    from.UTC().Format(time.RFC3339),
		TimeMax:    to.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/freebusy", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("freebusy query returned status %d", resp.StatusCode)
	}

	var fb freeBusyResponse
	if err := json.NewDecoder(resp.Body).Decode(&fb); err != nil {
		return nil, err
	}

	out := make([]availability.Interval, 0, len(fb.Busy))
	for _, b := range fb.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			continue
		}
		if end.After(start) {
			out = append(out, availability.Interval{Start: start, End: end})
		}
	}
	return out, nil
}

// Noop is the oracle used when no calendar provider is configured.
type Noop struct{}

func (Noop) FreeBusy(context.Context, string, time.Time, time.Time) ([]availability.Interval, error) {
	return nil, nil
}

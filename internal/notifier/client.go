// Package notifier delivers booking alerts to doctors through the
// notification endpoint.
package notifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telemed-admin/internal/metrics"
)

// Client posts booking notifications.
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds notifier configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a notifier client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "notifier"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

// NotifyBooking alerts the doctor that a booking was paid.
func (c *Client) NotifyBooking(ctx context.Context, bookingID string) error {
	url := fmt.Sprintf("%s/api/bookings/notify/%s", c.baseURL, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.NotifyRequests.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("notify booking %s: %w", bookingID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if c.metrics != nil {
		c.metrics.NotifyRequests.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify booking %s: unexpected status %d", bookingID, resp.StatusCode)
	}
	return nil
}

// Package botengine is the HTTP client for the conversational bot engine,
// which owns message delivery to end users and invoice sending.
package botengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telemed-admin/internal/metrics"
)

// Client provides typed access to the bot-engine API.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds bot-engine client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a bot-engine client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "botengine"),
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

// responseEnvelope mirrors the bot-engine's standard response shape.
type responseEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// PaymentCompletion triggers invoice delivery after a booking is marked paid.
type PaymentCompletion struct {
	AppointmentID string `json:"appointmentId"`
	UserPhone     string `json:"userPhone"`
	DoctorName    string `json:"doctorName"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
}

// CompletePayment notifies the bot engine that a booking payment settled so
// it can deliver the invoice to the user.
func (c *Client) CompletePayment(ctx context.Context, req PaymentCompletion) error {
	return c.post(ctx, "/payments/complete", req)
}

// OutboundMessage is an admin-authored message for delivery to a user.
type OutboundMessage struct {
	SessionID string `json:"sessionId"`
	UserPhone string `json:"userPhone"`
	Content   string `json:"content"`
}

// SendMessage delivers an admin message through the bot engine.
func (c *Client) SendMessage(ctx context.Context, msg OutboundMessage) error {
	return c.post(ctx, "/messages/send", msg)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	status := "error"
	if err == nil {
		status = fmt.Sprintf("%d", resp.StatusCode)
	}
	if c.metrics != nil {
		c.metrics.BotEngineRequests.WithLabelValues(endpoint, status).Inc()
		c.metrics.BotEngineLatency.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env responseEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
		if !env.Status && env.Message != "" {
			return fmt.Errorf("post %s: bot engine rejected request: %s", endpoint, env.Message)
		}
	}
	return nil
}

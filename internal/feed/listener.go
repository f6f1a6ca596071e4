package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"telemed-admin/internal/metrics"
	"telemed-admin/internal/repo"
)

// MessageGetter hydrates feed payloads into full message rows.
type MessageGetter interface {
	GetMessage(ctx context.Context, id string) (*repo.Message, error)
}

// Listener holds a dedicated Postgres connection on LISTEN and publishes
// inserted messages into the hub.
type Listener struct {
	databaseURL string
	channel     string
	store       MessageGetter
	hub         *Hub
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewListener creates a feed listener. It opens its own connection so LISTEN
// does not tie up the pool.
func NewListener(databaseURL, channel string, store MessageGetter, hub *Hub, logger *slog.Logger, metricRegistry *metrics.Metrics) *Listener {
	return &Listener{
		databaseURL: databaseURL,
		channel:     channel,
		store:       store,
		hub:         hub,
		logger:      logger.With("component", "feed_listener"),
		metrics:     metricRegistry,
	}
}

type feedPayload struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
}

// Run listens for message notifications until the context is cancelled,
// reconnecting after transient connection failures.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("feed connection lost, reconnecting", "error", err)
			if l.metrics != nil {
				l.metrics.Errors.WithLabelValues("feed_listener").Inc()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return fmt.Errorf("connect feed listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info("feed listener attached", "channel", l.channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.handle(ctx, notification.Payload)
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	var p feedPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		l.logger.Warn("malformed feed payload", "error", err)
		if l.metrics != nil {
			l.metrics.FeedEvents.WithLabelValues("malformed").Inc()
		}
		return
	}

	msg, err := l.store.GetMessage(ctx, p.ID)
	if err != nil {
		l.logger.Warn("feed message lookup failed", "message_id", p.ID, "error", err)
		if l.metrics != nil {
			l.metrics.FeedEvents.WithLabelValues("lookup_failed").Inc()
		}
		return
	}
	l.hub.Publish(*msg)
}

package repo

import (
	"context"
	"fmt"
	"time"
)

const messageColumns = `id, session_id, direction, content, delivery_status, created_at`

// InsertMessage stores a message and returns the persisted row.
func (r *Repository) InsertMessage(ctx context.Context, msg Message) (*Message, error) {
	const q = `
INSERT INTO messages (session_id, direction, content, delivery_status)
VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'confirmed'))
RETURNING id, delivery_status, created_at;
`
	err := r.pool.QueryRow(ctx, q, msg.SessionID, msg.Direction, msg.Content, msg.DeliveryStatus).
		Scan(&msg.ID, &msg.DeliveryStatus, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// GetMessage returns a message by identifier.
func (r *Repository) GetMessage(ctx context.Context, id string) (*Message, error) {
	q := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1 LIMIT 1;`, messageColumns)
	var m Message
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&m.ID, &m.SessionID, &m.Direction, &m.Content, &m.DeliveryStatus, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get message")
	}
	return &m, nil
}

// ListMessagesBySession returns the session transcript in chronological order.
func (r *Repository) ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	q := fmt.Sprintf(`SELECT %s FROM messages WHERE session_id = $1 ORDER BY created_at ASC;`, messageColumns)
	return r.queryMessages(ctx, q, sessionID)
}

// ListRecentMessages returns the latest messages across all sessions, newest
// first. Used by the response-time estimator.
func (r *Repository) ListRecentMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`SELECT %s FROM messages ORDER BY created_at DESC LIMIT $1;`, messageColumns)
	return r.queryMessages(ctx, q, limit)
}

func (r *Repository) queryMessages(ctx context.Context, q string, args ...any) ([]Message, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &m.Content, &m.DeliveryStatus, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// UpdateMessageDelivery records the delivery outcome of an outbound message.
func (r *Repository) UpdateMessageDelivery(ctx context.Context, id, status string) error {
	const q = `UPDATE messages SET delivery_status = $2 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("update message delivery: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update message delivery: %w", ErrNotFound)
	}
	return nil
}

// CountMessagesSince returns the number of messages created at or after the cutoff.
func (r *Repository) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE created_at >= $1;`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages since: %w", err)
	}
	return count, nil
}

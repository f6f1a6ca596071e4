package repo

import (
	"context"
	"fmt"
	"time"
)

// ListSessionsByUser returns the user's sessions newest first.
func (r *Repository) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	const q = `
SELECT id, user_id, status, metadata, started_at, ended_at
FROM sessions
WHERE user_id = $1
ORDER BY started_at DESC;
`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Status, &s.Metadata, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns a session by identifier.
func (r *Repository) GetSession(ctx context.Context, id string) (*Session, error) {
	const q = `
SELECT id, user_id, status, metadata, started_at, ended_at
FROM sessions
WHERE id = $1
LIMIT 1;
`
	var s Session
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.UserID, &s.Status, &s.Metadata, &s.StartedAt, &s.EndedAt)
	if err != nil {
		return nil, notFound(err, "get session")
	}
	return &s, nil
}

// CountActiveSessions returns the number of sessions currently marked active.
func (r *Repository) CountActiveSessions(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE status = 'active';`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

// EndSession transitions a session to an ended status.
func (r *Repository) EndSession(ctx context.Context, id, status string, endedAt time.Time) error {
	const q = `UPDATE sessions SET status = $2, ended_at = $3 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, status, endedAt)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("end session: %w", ErrNotFound)
	}
	return nil
}

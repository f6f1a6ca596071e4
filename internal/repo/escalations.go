package repo

import (
	"context"
	"fmt"
	"time"
)

const escalationColumns = `id, user_id, session_id, reason, status, created_at, resolved_at, resolved_by`

// ListEscalations returns every escalation, newest first. Triage ordering is
// applied by the caller.
func (r *Repository) ListEscalations(ctx context.Context) ([]Escalation, error) {
	q := fmt.Sprintf(`SELECT %s FROM escalations ORDER BY created_at DESC;`, escalationColumns)
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var escalations []Escalation
	for rows.Next() {
		var e Escalation
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.Reason, &e.Status, &e.CreatedAt, &e.ResolvedAt, &e.ResolvedBy); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		escalations = append(escalations, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return escalations, nil
}

// GetEscalation returns an escalation by identifier.
func (r *Repository) GetEscalation(ctx context.Context, id string) (*Escalation, error) {
	q := fmt.Sprintf(`SELECT %s FROM escalations WHERE id = $1 LIMIT 1;`, escalationColumns)
	var e Escalation
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&e.ID, &e.UserID, &e.SessionID, &e.Reason, &e.Status, &e.CreatedAt, &e.ResolvedAt, &e.ResolvedBy)
	if err != nil {
		return nil, notFound(err, "get escalation")
	}
	return &e, nil
}

// InsertEscalation creates a new escalation in pending state.
func (r *Repository) InsertEscalation(ctx context.Context, esc Escalation) (*Escalation, error) {
	const q = `
INSERT INTO escalations (user_id, session_id, reason, status)
VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'pending'))
RETURNING id, status, created_at;
`
	err := r.pool.QueryRow(ctx, q, esc.UserID, esc.SessionID, esc.Reason, esc.Status).
		Scan(&esc.ID, &esc.Status, &esc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert escalation: %w", err)
	}
	return &esc, nil
}

// UpdateEscalationStatus writes a status transition. resolvedBy and resolvedAt
// are only set when entering the resolved state.
func (r *Repository) UpdateEscalationStatus(ctx context.Context, id, status string, resolvedBy *string, resolvedAt *time.Time) error {
	const q = `
UPDATE escalations
SET status = $2,
    resolved_by = COALESCE($3, resolved_by),
    resolved_at = COALESCE($4, resolved_at)
WHERE id = $1;
`
	ct, err := r.pool.Exec(ctx, q, id, status, resolvedBy, resolvedAt)
	if err != nil {
		return fmt.Errorf("update escalation status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update escalation status: %w", ErrNotFound)
	}
	return nil
}

// CountEscalationsByStatus returns the number of escalations in a given state.
func (r *Repository) CountEscalationsByStatus(ctx context.Context, status string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalations WHERE status = $1;`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count escalations: %w", err)
	}
	return count, nil
}

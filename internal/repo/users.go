package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, phone_number, first_name, gender, age_range, location, kyc_completed, kyc_completed_at, created_at, last_active`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.PhoneNumber, &u.FirstName, &u.Gender, &u.AgeRange, &u.Location,
		&u.KYCCompleted, &u.KYCCompletedAt, &u.CreatedAt, &u.LastActive)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns users ordered newest first.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2;`, userColumns)
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetUser returns a user by internal identifier.
func (r *Repository) GetUser(ctx context.Context, id string) (*User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1;`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFound(err, "get user")
	}
	return u, nil
}

// GetUserByPhone returns a user by phone number.
func (r *Repository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE phone_number = $1 LIMIT 1;`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, q, phone))
	if err != nil {
		return nil, notFound(err, "get user by phone")
	}
	return u, nil
}

// CountUsers returns the total number of registered users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// CountUsersSince returns the number of users created at or after the cutoff.
func (r *Repository) CountUsersSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE created_at >= $1;`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users since: %w", err)
	}
	return count, nil
}

// UpsertKYC stores the KYC record for a user and marks the user profile
// as verified in the same transaction.
func (r *Repository) UpsertKYC(ctx context.Context, rec KYCRecord) (*KYCRecord, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const insert = `
INSERT INTO kyc_records (user_id, name, gender, age_range, location, completed_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
RETURNING id, completed_at;
`
		var completedAt *time.Time
		if !rec.CompletedAt.IsZero() {
			completedAt = &rec.CompletedAt
		}
		if err := tx.QueryRow(ctx, insert, rec.UserID, rec.Name, rec.Gender, rec.AgeRange, rec.Location, completedAt).
			Scan(&rec.ID, &rec.CompletedAt); err != nil {
			return fmt.Errorf("insert kyc record: %w", err)
		}

		const mark = `
UPDATE users
SET kyc_completed = TRUE,
    kyc_completed_at = $2,
    first_name = COALESCE($3, first_name),
    gender = COALESCE($4, gender),
    age_range = COALESCE($5, age_range),
    location = COALESCE($6, location)
WHERE id = $1;
`
		ct, err := tx.Exec(ctx, mark, rec.UserID, rec.CompletedAt, rec.Name, rec.Gender, rec.AgeRange, rec.Location)
		if err != nil {
			return fmt.Errorf("mark user kyc complete: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("mark user kyc complete: %w", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetKYCByUser returns the most recent KYC record for a user.
func (r *Repository) GetKYCByUser(ctx context.Context, userID string) (*KYCRecord, error) {
	const q = `
SELECT id, user_id, name, gender, age_range, location, completed_at
FROM kyc_records
WHERE user_id = $1
ORDER BY completed_at DESC
LIMIT 1;
`
	var rec KYCRecord
	err := r.pool.QueryRow(ctx, q, userID).
		Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.Gender, &rec.AgeRange, &rec.Location, &rec.CompletedAt)
	if err != nil {
		return nil, notFound(err, "get kyc record")
	}
	return &rec, nil
}

// CountCompletedKYC returns the number of users who finished KYC.
func (r *Repository) CountCompletedKYC(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE kyc_completed;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed kyc: %w", err)
	}
	return count, nil
}

package repo

import (
	"context"
	"fmt"
)

// ListPharmacies returns all partner pharmacies ordered by name.
func (r *Repository) ListPharmacies(ctx context.Context) ([]Pharmacy, error) {
	const q = `
SELECT id, name, phone_number, location, address, status, created_at
FROM pharmacies
ORDER BY name;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}
	defer rows.Close()

	var pharmacies []Pharmacy
	for rows.Next() {
		var p Pharmacy
		if err := rows.Scan(&p.ID, &p.Name, &p.PhoneNumber, &p.Location, &p.Address, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pharmacy: %w", err)
		}
		pharmacies = append(pharmacies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pharmacies: %w", err)
	}
	return pharmacies, nil
}

// InsertPharmacy adds a partner pharmacy.
func (r *Repository) InsertPharmacy(ctx context.Context, p Pharmacy) (*Pharmacy, error) {
	const q = `
INSERT INTO pharmacies (name, phone_number, location, address, status)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'active'))
RETURNING id, status, created_at;
`
	err := r.pool.QueryRow(ctx, q, p.Name, p.PhoneNumber, p.Location, p.Address, p.Status).
		Scan(&p.ID, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert pharmacy: %w", err)
	}
	return &p, nil
}

// UpdatePharmacy rewrites pharmacy details.
func (r *Repository) UpdatePharmacy(ctx context.Context, p Pharmacy) error {
	const q = `
UPDATE pharmacies
SET name = $2, phone_number = $3, location = $4, address = $5, status = $6
WHERE id = $1;
`
	ct, err := r.pool.Exec(ctx, q, p.ID, p.Name, p.PhoneNumber, p.Location, p.Address, p.Status)
	if err != nil {
		return fmt.Errorf("update pharmacy: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update pharmacy: %w", ErrNotFound)
	}
	return nil
}

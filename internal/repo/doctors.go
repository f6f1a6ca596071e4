package repo

import (
	"context"
	"fmt"
)

const doctorColumns = `id, name, phone_number, specialty, experience_years, consultation_fee, location, availability_status, registration_status, is_active, password_hash, created_at`

func scanDoctor(row interface{ Scan(...any) error }) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.PhoneNumber, &d.Specialty, &d.ExperienceYears, &d.ConsultationFee,
		&d.Location, &d.AvailabilityStatus, &d.RegistrationStatus, &d.IsActive, &d.PasswordHash, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDoctors returns all doctors, newest registrations first.
func (r *Repository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	q := fmt.Sprintf(`SELECT %s FROM doctors ORDER BY created_at DESC;`, doctorColumns)
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		doctors = append(doctors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doctors: %w", err)
	}
	return doctors, nil
}

// GetDoctor returns a doctor by identifier.
func (r *Repository) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	q := fmt.Sprintf(`SELECT %s FROM doctors WHERE id = $1 LIMIT 1;`, doctorColumns)
	d, err := scanDoctor(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFound(err, "get doctor")
	}
	return d, nil
}

// GetDoctorByPhone returns a doctor by portal phone number.
func (r *Repository) GetDoctorByPhone(ctx context.Context, phone string) (*Doctor, error) {
	q := fmt.Sprintf(`SELECT %s FROM doctors WHERE phone_number = $1 LIMIT 1;`, doctorColumns)
	d, err := scanDoctor(r.pool.QueryRow(ctx, q, phone))
	if err != nil {
		return nil, notFound(err, "get doctor by phone")
	}
	return d, nil
}

// InsertDoctor registers a new doctor in pending state.
func (r *Repository) InsertDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	const q = `
INSERT INTO doctors (name, phone_number, specialty, experience_years, consultation_fee, location, availability_status, registration_status)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'offline'), 'pending')
RETURNING id, availability_status, registration_status, is_active, created_at;
`
	err := r.pool.QueryRow(ctx, q, d.Name, d.PhoneNumber, d.Specialty, d.ExperienceYears, d.ConsultationFee, d.Location, d.AvailabilityStatus).
		Scan(&d.ID, &d.AvailabilityStatus, &d.RegistrationStatus, &d.IsActive, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return &d, nil
}

// ApproveDoctor flips a pending registration to approved.
func (r *Repository) ApproveDoctor(ctx context.Context, id string) error {
	const q = `UPDATE doctors SET registration_status = 'approved' WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("approve doctor: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("approve doctor: %w", ErrNotFound)
	}
	return nil
}

// SetDoctorPassword stores the bcrypt hash for portal login.
func (r *Repository) SetDoctorPassword(ctx context.Context, id, hash string) error {
	const q = `UPDATE doctors SET password_hash = $2 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, hash)
	if err != nil {
		return fmt.Errorf("set doctor password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set doctor password: %w", ErrNotFound)
	}
	return nil
}

// SetDoctorAvailability updates the live availability flag.
func (r *Repository) SetDoctorAvailability(ctx context.Context, id, status string) error {
	const q = `UPDATE doctors SET availability_status = $2 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("set doctor availability: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set doctor availability: %w", ErrNotFound)
	}
	return nil
}

// ListDoctorAvailability returns the weekly availability slots for a doctor.
func (r *Repository) ListDoctorAvailability(ctx context.Context, doctorID string) ([]DoctorAvailability, error) {
	const q = `
SELECT id, doctor_id, day_of_week, start_time, end_time
FROM doctor_availability
WHERE doctor_id = $1
ORDER BY day_of_week, start_time;
`
	rows, err := r.pool.Query(ctx, q, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor availability: %w", err)
	}
	defer rows.Close()

	var slots []DoctorAvailability
	for rows.Next() {
		var s DoctorAvailability
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &s.StartTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("scan availability slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability slots: %w", err)
	}
	return slots, nil
}

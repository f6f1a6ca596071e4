package repo

import (
	"context"
	"fmt"
	"time"
)

const bookingColumns = `id, doctor_id, user_id, appointment_id, status, payment_status, payment_amount, payment_currency, payment_reference, consultation_date, diagnosis_notes, doctor_notified, notified_at, created_at`

func scanBooking(row interface{ Scan(...any) error }) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.DoctorID, &b.UserID, &b.AppointmentID, &b.Status, &b.PaymentStatus,
		&b.PaymentAmount, &b.PaymentCurrency, &b.PaymentReference, &b.ConsultationDate,
		&b.DiagnosisNotes, &b.DoctorNotified, &b.NotifiedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBookings returns bookings ordered newest first.
func (r *Repository) ListBookings(ctx context.Context, limit, offset int) ([]Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT %s FROM bookings ORDER BY created_at DESC LIMIT $1 OFFSET $2;`, bookingColumns)
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, nil
}

// GetBooking returns a booking by identifier.
func (r *Repository) GetBooking(ctx context.Context, id string) (*Booking, error) {
	q := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1 LIMIT 1;`, bookingColumns)
	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFound(err, "get booking")
	}
	return b, nil
}

// MarkBookingPaid records payment details and returns the updated booking.
func (r *Repository) MarkBookingPaid(ctx context.Context, id, reference string, amount int64, currency string) (*Booking, error) {
	q := fmt.Sprintf(`
UPDATE bookings
SET payment_status = 'paid',
    payment_reference = $2,
    payment_amount = $3,
    payment_currency = COALESCE(NULLIF($4, ''), payment_currency),
    status = 'confirmed'
WHERE id = $1
RETURNING %s;
`, bookingColumns)
	b, err := scanBooking(r.pool.QueryRow(ctx, q, id, reference, amount, currency))
	if err != nil {
		return nil, notFound(err, "mark booking paid")
	}
	return b, nil
}

// SetBookingNotified flags the booking after the doctor alert was delivered.
func (r *Repository) SetBookingNotified(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE bookings SET doctor_notified = TRUE, notified_at = $2 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("set booking notified: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set booking notified: %w", ErrNotFound)
	}
	return nil
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func sqliteNotFound(err error, verb string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", verb, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", verb, err)
}

// -- Users --

func (r *SQLiteRepository) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?;`, userColumns)
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
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
	return users, rows.Err()
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE id = ? LIMIT 1;`, userColumns)
	u, err := scanUser(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, sqliteNotFound(err, "get user")
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE phone_number = ? LIMIT 1;`, userColumns)
	u, err := scanUser(r.db.QueryRowContext(ctx, q, phone))
	if err != nil {
		return nil, sqliteNotFound(err, "get user by phone")
	}
	return u, nil
}

func (r *SQLiteRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) CountUsersSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE created_at >= ?;`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users since: %w", err)
	}
	return count, nil
}

// -- KYC --

func (r *SQLiteRepository) UpsertKYC(ctx context.Context, rec KYCRecord) (*KYCRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin kyc tx: %w", err)
	}
	defer tx.Rollback()

	rec.ID = randomUUID()
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	const insert = `
INSERT INTO kyc_records (id, user_id, name, gender, age_range, location, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	if _, err := tx.ExecContext(ctx, insert, rec.ID, rec.UserID, rec.Name, rec.Gender, rec.AgeRange, rec.Location, rec.CompletedAt); err != nil {
		return nil, fmt.Errorf("insert kyc record: %w", err)
	}

	const mark = `
UPDATE users
SET kyc_completed = 1,
    kyc_completed_at = ?,
    first_name = COALESCE(?, first_name),
    gender = COALESCE(?, gender),
    age_range = COALESCE(?, age_range),
    location = COALESCE(?, location)
WHERE id = ?;
`
	res, err := tx.ExecContext(ctx, mark, rec.CompletedAt, rec.Name, rec.Gender, rec.AgeRange, rec.Location, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("mark user kyc complete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("mark user kyc complete: %w", ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit kyc tx: %w", err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) GetKYCByUser(ctx context.Context, userID string) (*KYCRecord, error) {
	const q = `
SELECT id, user_id, name, gender, age_range, location, completed_at
FROM kyc_records
WHERE user_id = ?
ORDER BY completed_at DESC
LIMIT 1;
`
	var rec KYCRecord
	err := r.db.QueryRowContext(ctx, q, userID).
		Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.Gender, &rec.AgeRange, &rec.Location, &rec.CompletedAt)
	if err != nil {
		return nil, sqliteNotFound(err, "get kyc record")
	}
	return &rec, nil
}

func (r *SQLiteRepository) CountCompletedKYC(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE kyc_completed = 1;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed kyc: %w", err)
	}
	return count, nil
}

// -- Sessions --

func (r *SQLiteRepository) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	const q = `
SELECT id, user_id, status, metadata, started_at, ended_at
FROM sessions
WHERE user_id = ?
ORDER BY started_at DESC;
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	const q = `
SELECT id, user_id, status, metadata, started_at, ended_at
FROM sessions
WHERE id = ?
LIMIT 1;
`
	s, err := scanSQLiteSession(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get session: %w", ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

func scanSQLiteSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var metadata []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.Status, &metadata, &s.StartedAt, &s.EndedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &s, nil
}

func (r *SQLiteRepository) CountActiveSessions(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE status = 'active';`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) EndSession(ctx context.Context, id, status string, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?;`, status, endedAt, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session: %w", ErrNotFound)
	}
	return nil
}

// -- Messages --

func (r *SQLiteRepository) InsertMessage(ctx context.Context, msg Message) (*Message, error) {
	msg.ID = randomUUID()
	if msg.DeliveryStatus == "" {
		msg.DeliveryStatus = DeliveryConfirmed
	}
	msg.CreatedAt = time.Now().UTC()
	const q = `
INSERT INTO messages (id, session_id, direction, content, delivery_status, created_at)
VALUES (?, ?, ?, ?, ?, ?);
`
	if _, err := r.db.ExecContext(ctx, q, msg.ID, msg.SessionID, msg.Direction, msg.Content, msg.DeliveryStatus, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (r *SQLiteRepository) GetMessage(ctx context.Context, id string) (*Message, error) {
	q := fmt.Sprintf(`SELECT %s FROM messages WHERE id = ? LIMIT 1;`, messageColumns)
	var m Message
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&m.ID, &m.SessionID, &m.Direction, &m.Content, &m.DeliveryStatus, &m.CreatedAt)
	if err != nil {
		return nil, sqliteNotFound(err, "get message")
	}
	return &m, nil
}

func (r *SQLiteRepository) ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	q := fmt.Sprintf(`SELECT %s FROM messages WHERE session_id = ? ORDER BY created_at ASC;`, messageColumns)
	return r.queryMessages(ctx, q, sessionID)
}

func (r *SQLiteRepository) ListRecentMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`SELECT %s FROM messages ORDER BY created_at DESC LIMIT ?;`, messageColumns)
	return r.queryMessages(ctx, q, limit)
}

func (r *SQLiteRepository) queryMessages(ctx context.Context, q string, args ...any) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
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
	return msgs, rows.Err()
}

func (r *SQLiteRepository) UpdateMessageDelivery(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET delivery_status = ? WHERE id = ?;`, status, id)
	if err != nil {
		return fmt.Errorf("update message delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update message delivery: %w", ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE created_at >= ?;`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages since: %w", err)
	}
	return count, nil
}

// -- Escalations --

func (r *SQLiteRepository) ListEscalations(ctx context.Context) ([]Escalation, error) {
	q := fmt.Sprintf(`SELECT %s FROM escalations ORDER BY created_at DESC;`, escalationColumns)
	rows, err := r.db.QueryContext(ctx, q)
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
	return escalations, rows.Err()
}

func (r *SQLiteRepository) GetEscalation(ctx context.Context, id string) (*Escalation, error) {
	q := fmt.Sprintf(`SELECT %s FROM escalations WHERE id = ? LIMIT 1;`, escalationColumns)
	var e Escalation
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&e.ID, &e.UserID, &e.SessionID, &e.Reason, &e.Status, &e.CreatedAt, &e.ResolvedAt, &e.ResolvedBy)
	if err != nil {
		return nil, sqliteNotFound(err, "get escalation")
	}
	return &e, nil
}

func (r *SQLiteRepository) InsertEscalation(ctx context.Context, esc Escalation) (*Escalation, error) {
	esc.ID = randomUUID()
	if esc.Status == "" {
		esc.Status = EscalationPending
	}
	esc.CreatedAt = time.Now().UTC()
	const q = `
INSERT INTO escalations (id, user_id, session_id, reason, status, created_at)
VALUES (?, ?, ?, ?, ?, ?);
`
	if _, err := r.db.ExecContext(ctx, q, esc.ID, esc.UserID, esc.SessionID, esc.Reason, esc.Status, esc.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert escalation: %w", err)
	}
	return &esc, nil
}

func (r *SQLiteRepository) UpdateEscalationStatus(ctx context.Context, id, status string, resolvedBy *string, resolvedAt *time.Time) error {
	const q = `
UPDATE escalations
SET status = ?,
    resolved_by = COALESCE(?, resolved_by),
    resolved_at = COALESCE(?, resolved_at)
WHERE id = ?;
`
	res, err := r.db.ExecContext(ctx, q, status, resolvedBy, resolvedAt, id)
	if err != nil {
		return fmt.Errorf("update escalation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update escalation status: %w", ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CountEscalationsByStatus(ctx context.Context, status string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalations WHERE status = ?;`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count escalations: %w", err)
	}
	return count, nil
}

// -- Doctors --

func (r *SQLiteRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	q := fmt.Sprintf(`SELECT %s FROM doctors ORDER BY created_at DESC;`, doctorColumns)
	rows, err := r.db.QueryContext(ctx, q)
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
	return doctors, rows.Err()
}

func (r *SQLiteRepository) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	q := fmt.Sprintf(`SELECT %s FROM doctors WHERE id = ? LIMIT 1;`, doctorColumns)
	d, err := scanDoctor(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, sqliteNotFound(err, "get doctor")
	}
	return d, nil
}

func (r *SQLiteRepository) GetDoctorByPhone(ctx context.Context, phone string) (*Doctor, error) {
	q := fmt.Sprintf(`SELECT %s FROM doctors WHERE phone_number = ? LIMIT 1;`, doctorColumns)
	d, err := scanDoctor(r.db.QueryRowContext(ctx, q, phone))
	if err != nil {
		return nil, sqliteNotFound(err, "get doctor by phone")
	}
	return d, nil
}

func (r *SQLiteRepository) InsertDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	d.ID = randomUUID()
	if d.AvailabilityStatus == "" {
		d.AvailabilityStatus = "offline"
	}
	d.RegistrationStatus = RegistrationPending
	d.IsActive = true
	d.CreatedAt = time.Now().UTC()
	const q = `
INSERT INTO doctors (id, name, phone_number, specialty, experience_years, consultation_fee, location, availability_status, registration_status, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', 1, ?);
`
	if _, err := r.db.ExecContext(ctx, q, d.ID, d.Name, d.PhoneNumber, d.Specialty, d.ExperienceYears,
		d.ConsultationFee, d.Location, d.AvailabilityStatus, d.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return &d, nil
}

func (r *SQLiteRepository) ApproveDoctor(ctx context.Context, id string) error {
	return r.execDoctorUpdate(ctx, "approve doctor", `UPDATE doctors SET registration_status = 'approved' WHERE id = ?;`, id)
}

func (r *SQLiteRepository) SetDoctorPassword(ctx context.Context, id, hash string) error {
	return r.execDoctorUpdate(ctx, "set doctor password", `UPDATE doctors SET password_hash = ? WHERE id = ?;`, hash, id)
}

func (r *SQLiteRepository) SetDoctorAvailability(ctx context.Context, id, status string) error {
	return r.execDoctorUpdate(ctx, "set doctor availability", `UPDATE doctors SET availability_status = ? WHERE id = ?;`, status, id)
}

func (r *SQLiteRepository) execDoctorUpdate(ctx context.Context, verb, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", verb, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListDoctorAvailability(ctx context.Context, doctorID string) ([]DoctorAvailability, error) {
	const q = `
SELECT id, doctor_id, day_of_week, start_time, end_time
FROM doctor_availability
WHERE doctor_id = ?
ORDER BY day_of_week, start_time;
`
	rows, err := r.db.QueryContext(ctx, q, doctorID)
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
	return slots, rows.Err()
}

// -- Bookings --

func (r *SQLiteRepository) ListBookings(ctx context.Context, limit, offset int) ([]Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT %s FROM bookings ORDER BY created_at DESC LIMIT ? OFFSET ?;`, bookingColumns)
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
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
	return bookings, rows.Err()
}

func (r *SQLiteRepository) GetBooking(ctx context.Context, id string) (*Booking, error) {
	q := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = ? LIMIT 1;`, bookingColumns)
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, sqliteNotFound(err, "get booking")
	}
	return b, nil
}

func (r *SQLiteRepository) MarkBookingPaid(ctx context.Context, id, reference string, amount int64, currency string) (*Booking, error) {
	const q = `
UPDATE bookings
SET payment_status = 'paid',
    payment_reference = ?,
    payment_amount = ?,
    payment_currency = COALESCE(NULLIF(?, ''), payment_currency),
    status = 'confirmed'
WHERE id = ?;
`
	res, err := r.db.ExecContext(ctx, q, reference, amount, currency, id)
	if err != nil {
		return nil, fmt.Errorf("mark booking paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("mark booking paid: %w", ErrNotFound)
	}
	return r.GetBooking(ctx, id)
}

func (r *SQLiteRepository) SetBookingNotified(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bookings SET doctor_notified = 1, notified_at = ? WHERE id = ?;`, at, id)
	if err != nil {
		return fmt.Errorf("set booking notified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set booking notified: %w", ErrNotFound)
	}
	return nil
}

// -- Pharmacies --

func (r *SQLiteRepository) ListPharmacies(ctx context.Context) ([]Pharmacy, error) {
	const q = `
SELECT id, name, phone_number, location, address, status, created_at
FROM pharmacies
ORDER BY name;
`
	rows, err := r.db.QueryContext(ctx, q)
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
	return pharmacies, rows.Err()
}

func (r *SQLiteRepository) InsertPharmacy(ctx context.Context, p Pharmacy) (*Pharmacy, error) {
	p.ID = randomUUID()
	if p.Status == "" {
		p.Status = "active"
	}
	p.CreatedAt = time.Now().UTC()
	const q = `
INSERT INTO pharmacies (id, name, phone_number, location, address, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	if _, err := r.db.ExecContext(ctx, q, p.ID, p.Name, p.PhoneNumber, p.Location, p.Address, p.Status, p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert pharmacy: %w", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) UpdatePharmacy(ctx context.Context, p Pharmacy) error {
	const q = `
UPDATE pharmacies
SET name = ?, phone_number = ?, location = ?, address = ?, status = ?
WHERE id = ?;
`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.PhoneNumber, p.Location, p.Address, p.Status, p.ID)
	if err != nil {
		return fmt.Errorf("update pharmacy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update pharmacy: %w", ErrNotFound)
	}
	return nil
}

// -- Analytics sources --

func (r *SQLiteRepository) ListEventTimes(ctx context.Context, entity string, from, to time.Time) ([]time.Time, error) {
	src, ok := eventTables[entity]
	if !ok {
		return nil, fmt.Errorf("list event times: unknown entity %q", entity)
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s >= ? AND %s < ? ORDER BY %s;`,
		src[1], src[0], src[1], src[1], src[1])
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("list event times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan event time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

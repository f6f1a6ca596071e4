package repo

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for data persistence. Both the Postgres and
// the local SQLite implementations satisfy it.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	CountUsers(ctx context.Context) (int, error)
	CountUsersSince(ctx context.Context, since time.Time) (int, error)

	// KYC
	UpsertKYC(ctx context.Context, rec KYCRecord) (*KYCRecord, error)
	GetKYCByUser(ctx context.Context, userID string) (*KYCRecord, error)
	CountCompletedKYC(ctx context.Context) (int, error)

	// Sessions
	ListSessionsByUser(ctx context.Context, userID string) ([]Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	CountActiveSessions(ctx context.Context) (int, error)
	EndSession(ctx context.Context, id, status string, endedAt time.Time) error

	// Messages
	InsertMessage(ctx context.Context, msg Message) (*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error)
	ListRecentMessages(ctx context.Context, limit int) ([]Message, error)
	UpdateMessageDelivery(ctx context.Context, id, status string) error
	CountMessagesSince(ctx context.Context, since time.Time) (int, error)

	// Escalations
	ListEscalations(ctx context.Context) ([]Escalation, error)
	GetEscalation(ctx context.Context, id string) (*Escalation, error)
	InsertEscalation(ctx context.Context, esc Escalation) (*Escalation, error)
	UpdateEscalationStatus(ctx context.Context, id, status string, resolvedBy *string, resolvedAt *time.Time) error
	CountEscalationsByStatus(ctx context.Context, status string) (int, error)

	// Doctors
	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetDoctor(ctx context.Context, id string) (*Doctor, error)
	GetDoctorByPhone(ctx context.Context, phone string) (*Doctor, error)
	InsertDoctor(ctx context.Context, d Doctor) (*Doctor, error)
	ApproveDoctor(ctx context.Context, id string) error
	SetDoctorPassword(ctx context.Context, id, hash string) error
	SetDoctorAvailability(ctx context.Context, id, status string) error
	ListDoctorAvailability(ctx context.Context, doctorID string) ([]DoctorAvailability, error)

	// Bookings
	ListBookings(ctx context.Context, limit, offset int) ([]Booking, error)
	GetBooking(ctx context.Context, id string) (*Booking, error)
	MarkBookingPaid(ctx context.Context, id, reference string, amount int64, currency string) (*Booking, error)
	SetBookingNotified(ctx context.Context, id string, at time.Time) error

	// Pharmacies
	ListPharmacies(ctx context.Context) ([]Pharmacy, error)
	InsertPharmacy(ctx context.Context, p Pharmacy) (*Pharmacy, error)
	UpdatePharmacy(ctx context.Context, p Pharmacy) error

	// Analytics sources
	ListEventTimes(ctx context.Context, entity string, from, to time.Time) ([]time.Time, error)
}

package repo

import "time"

// Escalation status values, in triage priority order.
const (
	EscalationPending    = "pending"
	EscalationInProgress = "in_progress"
	EscalationResolved   = "resolved"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message delivery states for the outbound send pipeline.
const (
	DeliveryPending   = "pending"
	DeliveryConfirmed = "confirmed"
	DeliveryFailed    = "failed"
)

// Doctor registration states.
const (
	RegistrationPending  = "pending"
	RegistrationApproved = "approved"
)

// User represents the users table row.
type User struct {
	ID             string     `json:"id"`
	PhoneNumber    string     `json:"phone_number"`
	FirstName      *string    `json:"first_name"`
	Gender         *string    `json:"gender"`
	AgeRange       *string    `json:"age_range"`
	Location       *string    `json:"location"`
	KYCCompleted   bool       `json:"kyc_completed"`
	KYCCompletedAt *time.Time `json:"kyc_completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActive     *time.Time `json:"last_active"`
}

// KYCRecord represents a completed identity verification for a user.
type KYCRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        *string   `json:"name"`
	Gender      *string   `json:"gender"`
	AgeRange    *string   `json:"age_range"`
	Location    *string   `json:"location"`
	CompletedAt time.Time `json:"completed_at"`
}

// Session represents a conversation window between a user and the bot.
type Session struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at"`
}

// Message represents a single message within a session.
type Message struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	DeliveryStatus string    `json:"delivery_status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Escalation represents a user case flagged for human review.
type Escalation struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	SessionID  *string    `json:"session_id"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	ResolvedBy *string    `json:"resolved_by"`
}

// Doctor represents a doctor profile, including portal credentials.
type Doctor struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	PhoneNumber        string    `json:"phone_number"`
	Specialty          *string   `json:"specialty"`
	ExperienceYears    int       `json:"experience_years"`
	ConsultationFee    int64     `json:"consultation_fee"`
	Location           *string   `json:"location"`
	AvailabilityStatus string    `json:"availability_status"`
	RegistrationStatus string    `json:"registration_status"`
	IsActive           bool      `json:"is_active"`
	PasswordHash       *string   `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

// DoctorAvailability is a weekly availability slot for a doctor.
type DoctorAvailability struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Booking represents a paid-consultation booking between a user and a doctor.
type Booking struct {
	ID               string     `json:"id"`
	DoctorID         string     `json:"doctor_id"`
	UserID           string     `json:"user_id"`
	AppointmentID    string     `json:"appointment_id"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentAmount    int64      `json:"payment_amount"`
	PaymentCurrency  string     `json:"payment_currency"`
	PaymentReference *string    `json:"payment_reference"`
	ConsultationDate *time.Time `json:"consultation_date"`
	DiagnosisNotes   *string    `json:"diagnosis_notes"`
	DoctorNotified   bool       `json:"doctor_notified"`
	NotifiedAt       *time.Time `json:"notified_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Pharmacy represents a partner pharmacy.
type Pharmacy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber *string   `json:"phone_number"`
	Location    *string   `json:"location"`
	Address     *string   `json:"address"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

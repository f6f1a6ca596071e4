// Package auth implements the doctor portal authentication flow: phone
// lookup, first-time password setup, login, and bearer-token validation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"telemed-admin/internal/repo"
)

// Phone-check outcomes returned to the portal login flow.
const (
	StatusNeedsPasswordSetup = "NEEDS_PASSWORD_SETUP"
	StatusReadyForLogin      = "READY_FOR_LOGIN"
)

// Errors surfaced to handlers.
var (
	ErrInvalidCredentials = errors.New("invalid phone number or password")
	ErrNotApproved        = errors.New("doctor registration not yet approved")
	ErrPasswordSet        = errors.New("password already configured")
)

// DoctorStore is the slice of the store the auth service needs.
type DoctorStore interface {
	GetDoctor(ctx context.Context, id string) (*repo.Doctor, error)
	GetDoctorByPhone(ctx context.Context, phone string) (*repo.Doctor, error)
	SetDoctorPassword(ctx context.Context, id, hash string) error
}

// Service issues and validates doctor portal sessions.
type Service struct {
	store       DoctorStore
	logger      *slog.Logger
	secret      string
	tokenExpiry time.Duration
	now         func() time.Time
}

// Config holds auth service settings.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

// New creates an auth service.
func New(store DoctorStore, cfg Config, logger *slog.Logger) *Service {
	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Service{
		store:       store,
		logger:      logger.With("component", "auth"),
		secret:      cfg.JWTSecret,
		tokenExpiry: expiry,
		now:         time.Now,
	}
}

// CheckPhone reports whether a doctor must set a password before logging in.
// Unapproved registrations are indistinguishable from unknown phones so the
// portal leaks nothing about pending applications.
func (s *Service) CheckPhone(ctx context.Context, phone string) (string, error) {
	doctor, err := s.store.GetDoctorByPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	if doctor.RegistrationStatus != repo.RegistrationApproved {
		return "", fmt.Errorf("check phone: %w", repo.ErrNotFound)
	}
	if doctor.PasswordHash == nil || *doctor.PasswordHash == "" {
		return StatusNeedsPasswordSetup, nil
	}
	return StatusReadyForLogin, nil
}

// SessionResult pairs an issued token with the doctor profile.
type SessionResult struct {
	Token  string      `json:"token"`
	Doctor repo.Doctor `json:"doctor"`
}

// SetupPassword stores the first password for an approved doctor and logs
// them in.
func (s *Service) SetupPassword(ctx context.Context, phone, password string) (*SessionResult, error) {
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	doctor, err := s.store.GetDoctorByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if doctor.RegistrationStatus != repo.RegistrationApproved {
		return nil, ErrNotApproved
	}
	if doctor.PasswordHash != nil && *doctor.PasswordHash != "" {
		return nil, ErrPasswordSet
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetDoctorPassword(ctx, doctor.ID, string(hash)); err != nil {
		return nil, err
	}
	return s.issueSession(doctor)
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, phone, password string) (*SessionResult, error) {
	doctor, err := s.store.GetDoctorByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if doctor.RegistrationStatus != repo.RegistrationApproved {
		return nil, ErrNotApproved
	}
	if doctor.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*doctor.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueSession(doctor)
}

// Me resolves a bearer token to the current doctor profile.
func (s *Service) Me(ctx context.Context, token string) (*repo.Doctor, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.store.GetDoctor(ctx, claims.DoctorID)
}

// Verify validates a token without touching the store.
func (s *Service) Verify(token string) (*Claims, error) {
	return ParseToken(s.secret, token)
}

func (s *Service) issueSession(doctor *repo.Doctor) (*SessionResult, error) {
	token, err := SignToken(s.secret, doctor.ID, s.tokenExpiry, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("doctor session issued", "doctor_id", doctor.ID)
	return &SessionResult{Token: token, Doctor: *doctor}, nil
}

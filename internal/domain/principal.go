package domain

import (
	"context"
	"fmt"
	"time"
)

// Role identifies which lookup namespace a principal belongs to.
// Emails are unique within a role, not across roles.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
)

// ParseRole maps a request path segment to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleStaff:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown principal role %q", s)
	}
}

// Step-up verification methods a principal may have enrolled.
const (
	MethodAuthenticator = "authenticator"
	MethodSMS           = "sms"
)

// Principal represents an authenticable actor: a patient, doctor or staff member.
type Principal struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose the password hash in JSON
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone,omitempty"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TwoFactorState holds a principal's step-up enrollment.
// Invariants: Enabled implies a non-empty base32 Secret; SMSEnabled implies a Phone.
type TwoFactorState struct {
	Enabled    bool   `json:"enabled"`
	Secret     string `json:"-"` // TOTP shared secret, base32
	SMSEnabled bool   `json:"sms_enabled"`
	Phone      string `json:"phone,omitempty"`
}

// Required reports whether login must stop for a second factor.
func (s TwoFactorState) Required() bool {
	return s.Enabled || s.SMSEnabled
}

// Methods lists the step-up methods the principal can complete.
func (s TwoFactorState) Methods() []string {
	var m []string
	if s.Enabled {
		m = append(m, MethodAuthenticator)
	}
	if s.SMSEnabled {
		m = append(m, MethodSMS)
	}
	return m
}

// StepUpChallenge is returned when a correct password is not enough
// to mint a session. No token accompanies it.
type StepUpChallenge struct {
	PrincipalID int64    `json:"principal_id"`
	Role        Role     `json:"role"`
	Methods     []string `json:"methods"`
}

// PrincipalRepository is the per-namespace credential store. One implementation
// exists per principal role; the orchestrator is parameterized over it.
type PrincipalRepository interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id int64) (*Principal, error)
	Create(ctx context.Context, p *Principal) error

	TwoFactor(ctx context.Context, principalID int64) (*TwoFactorState, error)
	SetTwoFactor(ctx context.Context, principalID int64, state TwoFactorState) error

	// RecordAuthEvent appends to the audit trail. Callers treat it as
	// best-effort; a failed write never blocks an auth flow.
	RecordAuthEvent(ctx context.Context, principalID int64, event string, meta map[string]any) error
}

// ChallengeRepository tracks pending step-up challenges between the two
// request cycles of a 2FA login. Entries expire on their own.
type ChallengeRepository interface {
	Put(ctx context.Context, role Role, principalID int64, ttl time.Duration) error
	Exists(ctx context.Context, role Role, principalID int64) (bool, error)
	Delete(ctx context.Context, role Role, principalID int64) error
}

// SMSVerifier is the external SMS verification oracle. The core never stores
// or compares SMS codes itself; it trusts the channel's verdict.
type SMSVerifier interface {
	Send(ctx context.Context, phone string) error
	Check(ctx context.Context, phone, code string) (bool, error)
}

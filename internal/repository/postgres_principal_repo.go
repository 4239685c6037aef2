package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mbeneti/vitalis-auth/internal/domain"
)

// PostgresPrincipalRepo implements domain.PrincipalRepository for one principal
// namespace. Patients, doctors and staff live in separate tables, so the same
// email can exist in more than one namespace.
type PostgresPrincipalRepo struct {
	db    *sql.DB
	role  domain.Role
	table string
}

// NewPostgresPrincipalRepo creates the repository for the given role's table.
func NewPostgresPrincipalRepo(db *sql.DB, role domain.Role) (*PostgresPrincipalRepo, error) {
	var table string
	switch role {
	case domain.RolePatient:
		table = "patients"
	case domain.RoleDoctor:
		table = "doctors"
	case domain.RoleStaff:
		table = "staff"
	default:
		return nil, fmt.Errorf("no table for role %q", role)
	}
	return &PostgresPrincipalRepo{db: db, role: role, table: table}, nil
}

// The table name comes from the closed switch above, never from input,
// so interpolating it is safe.
func (r *PostgresPrincipalRepo) selectQuery(where string) string {
	return fmt.Sprintf(`
		SELECT id, email, password_hash, full_name, COALESCE(phone, ''), created_at, updated_at
		FROM %s
		WHERE %s
	`, r.table, where)
}

func (r *PostgresPrincipalRepo) scanPrincipal(row *sql.Row) (*domain.Principal, error) {
	p := &domain.Principal{Role: r.role}
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.FullName,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return p, nil
}

// FindByEmail retrieves a principal by email within this namespace.
func (r *PostgresPrincipalRepo) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.scanPrincipal(r.db.QueryRowContext(ctx, r.selectQuery("email = $1"), email))
}

// FindByID retrieves a principal by numeric identifier.
func (r *PostgresPrincipalRepo) FindByID(ctx context.Context, id int64) (*domain.Principal, error) {
	return r.scanPrincipal(r.db.QueryRowContext(ctx, r.selectQuery("id = $1"), id))
}

// Create inserts a new principal and fills in its generated ID.
func (r *PostgresPrincipalRepo) Create(ctx context.Context, p *domain.Principal) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (email, password_hash, full_name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, r.table)

	p.Role = r.role
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	var phone sql.NullString
	if p.Phone != "" {
		phone = sql.NullString{String: p.Phone, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		p.Email, p.PasswordHash, p.FullName, phone, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", r.role, err)
	}
	return nil
}

// TwoFactor loads the principal's step-up state. A principal with no row has
// the zero state: nothing enabled.
func (r *PostgresPrincipalRepo) TwoFactor(ctx context.Context, principalID int64) (*domain.TwoFactorState, error) {
	query := `
		SELECT enabled, COALESCE(secret, ''), sms_enabled, COALESCE(phone, '')
		FROM two_factor
		WHERE role = $1 AND principal_id = $2
	`

	state := &domain.TwoFactorState{}
	err := r.db.QueryRowContext(ctx, query, r.role, principalID).Scan(
		&state.Enabled,
		&state.Secret,
		&state.SMSEnabled,
		&state.Phone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.TwoFactorState{}, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return state, nil
}

// SetTwoFactor upserts the principal's step-up state. Last writer wins; there
// is no optimistic concurrency token on this row.
func (r *PostgresPrincipalRepo) SetTwoFactor(ctx context.Context, principalID int64, state domain.TwoFactorState) error {
	query := `
		INSERT INTO two_factor (role, principal_id, enabled, secret, sms_enabled, phone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (role, principal_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    secret = EXCLUDED.secret,
		    sms_enabled = EXCLUDED.sms_enabled,
		    phone = EXCLUDED.phone,
		    updated_at = EXCLUDED.updated_at
	`

	var secret, phone sql.NullString
	if state.Secret != "" {
		secret = sql.NullString{String: state.Secret, Valid: true}
	}
	if state.Phone != "" {
		phone = sql.NullString{String: state.Phone, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, r.role, principalID, state.Enabled, secret, state.SMSEnabled, phone, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update two-factor state: %w", err)
	}
	return nil
}

// RecordAuthEvent appends an immutable row to the auth_events audit table.
func (r *PostgresPrincipalRepo) RecordAuthEvent(ctx context.Context, principalID int64, event string, meta map[string]any) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO auth_events (role, principal_id, event, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	// principal_id is nullable; a failed login for an unknown email has none.
	var pid sql.NullInt64
	if principalID != 0 {
		pid = sql.NullInt64{Int64: principalID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query, r.role, pid, event, metaJSON, time.Now())
	return err
}

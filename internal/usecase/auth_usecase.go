package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbeneti/vitalis-auth/internal/domain"
	"github.com/mbeneti/vitalis-auth/internal/metrics"
	"github.com/mbeneti/vitalis-auth/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrUnsupportedMethod  = errors.New("unsupported verification method")
	ErrChallengeExpired   = errors.New("no pending login for this principal")
)

// dummyHash is compared against when the email is unknown, so a failed lookup
// costs the same as a wrong password and reveals nothing about enrollment.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Session is the successful outcome of authentication.
type Session struct {
	Token     string            `json:"-"`
	ExpiresIn int64             `json:"expires_in"`
	Principal *domain.Principal `json:"principal"`
}

// LoginResult is either a minted session or a step-up challenge, never both.
type LoginResult struct {
	Session   *Session
	Challenge *domain.StepUpChallenge
}

// AuthUsecase is the single source of truth for whether a login attempt is
// valid and what session should result. It is parameterized over one
// PrincipalRepository per role, collapsing the per-actor login paths into one.
type AuthUsecase struct {
	repos        map[domain.Role]domain.PrincipalRepository
	challenges   domain.ChallengeRepository
	sms          domain.SMSVerifier
	tokens       *security.TokenIssuer
	metrics      *metrics.AuthMetrics
	logger       *slog.Logger
	challengeTTL time.Duration
	totpSkew     uint
}

// NewAuthUsecase wires the orchestrator. challengeTTL bounds how long a
// password success remains redeemable for a second factor.
func NewAuthUsecase(
	repos map[domain.Role]domain.PrincipalRepository,
	challenges domain.ChallengeRepository,
	sms domain.SMSVerifier,
	tokens *security.TokenIssuer,
	m *metrics.AuthMetrics,
	logger *slog.Logger,
	challengeTTL time.Duration,
) *AuthUsecase {
	if challengeTTL <= 0 {
		challengeTTL = 5 * time.Minute
	}
	return &AuthUsecase{
		repos:        repos,
		challenges:   challenges,
		sms:          sms,
		tokens:       tokens,
		metrics:      m,
		logger:       logger,
		challengeTTL: challengeTTL,
		totpSkew:     security.DefaultTOTPSkew,
	}
}

func (u *AuthUsecase) repo(role domain.Role) (domain.PrincipalRepository, error) {
	r, ok := u.repos[role]
	if !ok {
		return nil, fmt.Errorf("no repository for role %q", role)
	}
	return r, nil
}

// Register creates a new principal with a freshly hashed password.
func (u *AuthUsecase) Register(ctx context.Context, role domain.Role, email, password, fullName, phone string) (*domain.Principal, error) {
	repo, err := u.repo(role)
	if err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	p := &domain.Principal{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Phone:        phone,
		Role:         role,
	}
	if err := repo.Create(ctx, p); err != nil {
		return nil, err
	}

	u.logger.Info("principal registered", "role", role, "principal_id", p.ID)
	return p, nil
}

// Login runs the first authentication step: credential verification and the
// step-up decision. A principal with any second factor enrolled gets a
// challenge instead of a session; no token is issued until the factor clears.
func (u *AuthUsecase) Login(ctx context.Context, role domain.Role, email, password string) (*LoginResult, error) {
	repo, err := u.repo(role)
	if err != nil {
		return nil, err
	}

	p, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Burn the same hashing cost as a real comparison.
			security.VerifyPassword(password, dummyHash)
			u.metrics.ObserveLogin(string(role), metrics.OutcomeInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		u.metrics.ObserveLogin(string(role), metrics.OutcomeError)
		return nil, err
	}

	if !security.VerifyPassword(password, p.PasswordHash) {
		_ = repo.RecordAuthEvent(ctx, p.ID, "LOGIN_FAILED", nil)
		u.metrics.ObserveLogin(string(role), metrics.OutcomeInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	state, err := repo.TwoFactor(ctx, p.ID)
	if err != nil {
		u.metrics.ObserveLogin(string(role), metrics.OutcomeError)
		return nil, err
	}

	if state.Required() {
		if err := u.challenges.Put(ctx, role, p.ID, u.challengeTTL); err != nil {
			u.metrics.ObserveLogin(string(role), metrics.OutcomeError)
			return nil, err
		}
		u.metrics.ObserveLogin(string(role), metrics.OutcomeStepUpRequired)
		return &LoginResult{Challenge: &domain.StepUpChallenge{
			PrincipalID: p.ID,
			Role:        role,
			Methods:     state.Methods(),
		}}, nil
	}

	session, err := u.mintSession(ctx, repo, p)
	if err != nil {
		u.metrics.ObserveLogin(string(role), metrics.OutcomeError)
		return nil, err
	}
	u.metrics.ObserveLogin(string(role), metrics.OutcomeSuccess)
	return &LoginResult{Session: session}, nil
}

// SendStepUpCode triggers SMS delivery of a one-time code during a pending
// login. It requires an unexpired challenge and SMS enrollment.
func (u *AuthUsecase) SendStepUpCode(ctx context.Context, role domain.Role, principalID int64) error {
	repo, err := u.repo(role)
	if err != nil {
		return err
	}

	pending, err := u.challenges.Exists(ctx, role, principalID)
	if err != nil {
		return err
	}
	if !pending {
		return ErrChallengeExpired
	}

	state, err := repo.TwoFactor(ctx, principalID)
	if err != nil {
		return err
	}
	if !state.SMSEnabled || state.Phone == "" {
		return ErrUnsupportedMethod
	}

	return u.sms.Send(ctx, state.Phone)
}

// VerifyStepUp runs the second authentication step. On a wrong code the
// pending challenge survives so the caller may retry; there is deliberately
// no attempt lockout.
func (u *AuthUsecase) VerifyStepUp(ctx context.Context, role domain.Role, principalID int64, code, method string) (*Session, error) {
	repo, err := u.repo(role)
	if err != nil {
		return nil, err
	}

	p, err := repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	pending, err := u.challenges.Exists(ctx, role, principalID)
	if err != nil {
		return nil, err
	}
	if !pending {
		return nil, ErrChallengeExpired
	}

	state, err := repo.TwoFactor(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	switch method {
	case domain.MethodAuthenticator:
		if !state.Enabled {
			return nil, ErrUnsupportedMethod
		}
		if !security.VerifyTOTP(state.Secret, code, u.totpSkew) {
			_ = repo.RecordAuthEvent(ctx, p.ID, "STEPUP_FAILED", map[string]any{"method": method})
			u.metrics.ObserveStepUp(string(role), metrics.OutcomeInvalidCode)
			return nil, ErrInvalidCode
		}
	case domain.MethodSMS:
		if !state.SMSEnabled || state.Phone == "" {
			return nil, ErrUnsupportedMethod
		}
		ok, err := u.sms.Check(ctx, state.Phone, code)
		if err != nil {
			u.metrics.ObserveStepUp(string(role), metrics.OutcomeError)
			return nil, err
		}
		if !ok {
			_ = repo.RecordAuthEvent(ctx, p.ID, "STEPUP_FAILED", map[string]any{"method": method})
			u.metrics.ObserveStepUp(string(role), metrics.OutcomeInvalidCode)
			return nil, ErrInvalidCode
		}
	default:
		return nil, ErrUnsupportedMethod
	}

	if err := u.challenges.Delete(ctx, role, principalID); err != nil {
		u.logger.Warn("failed to consume step-up challenge", "role", role, "principal_id", principalID, "err", err)
	}

	session, err := u.mintSession(ctx, repo, p)
	if err != nil {
		u.metrics.ObserveStepUp(string(role), metrics.OutcomeError)
		return nil, err
	}
	u.metrics.ObserveStepUp(string(role), metrics.OutcomeSuccess)
	return session, nil
}

// CurrentPrincipal resolves a session token to the live principal record.
func (u *AuthUsecase) CurrentPrincipal(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := u.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		// A signed token carrying a role this build doesn't know is
		// invalid, not a lookup miss.
		return nil, security.ErrTokenInvalid
	}

	repo, err := u.repo(role)
	if err != nil {
		return nil, security.ErrTokenInvalid
	}
	return repo.FindByID(ctx, claims.PrincipalID)
}

func (u *AuthUsecase) mintSession(ctx context.Context, repo domain.PrincipalRepository, p *domain.Principal) (*Session, error) {
	token, err := u.tokens.Issue(p.ID, string(p.Role))
	if err != nil {
		return nil, err
	}

	_ = repo.RecordAuthEvent(ctx, p.ID, "LOGIN_SUCCESS", nil)
	u.logger.Info("session issued", "role", p.Role, "principal_id", p.ID)

	return &Session{
		Token:     token,
		ExpiresIn: int64(u.tokens.TTL().Seconds()),
		Principal: p,
	}, nil
}

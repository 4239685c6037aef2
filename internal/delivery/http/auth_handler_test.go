package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbeneti/vitalis-auth/internal/domain"
	"github.com/mbeneti/vitalis-auth/internal/metrics"
	"github.com/mbeneti/vitalis-auth/internal/usecase"
	"github.com/mbeneti/vitalis-auth/pkg/security"
)

// In-memory fakes keep the handler tests end-to-end through the real
// orchestrator without a database.

type stubPrincipalRepo struct {
	principals map[int64]*domain.Principal
	twoFactor  map[int64]domain.TwoFactorState
	nextID     int64
}

func newStubPrincipalRepo() *stubPrincipalRepo {
	return &stubPrincipalRepo{
		principals: make(map[int64]*domain.Principal),
		twoFactor:  make(map[int64]domain.TwoFactorState),
		nextID:     1,
	}
}

func (s *stubPrincipalRepo) FindByEmail(_ context.Context, email string) (*domain.Principal, error) {
	for _, p := range s.principals {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubPrincipalRepo) FindByID(_ context.Context, id int64) (*domain.Principal, error) {
	if p, ok := s.principals[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (s *stubPrincipalRepo) Create(_ context.Context, p *domain.Principal) error {
	p.ID = s.nextID
	s.nextID++
	s.principals[p.ID] = p
	return nil
}

func (s *stubPrincipalRepo) TwoFactor(_ context.Context, id int64) (*domain.TwoFactorState, error) {
	state := s.twoFactor[id]
	return &state, nil
}

func (s *stubPrincipalRepo) SetTwoFactor(_ context.Context, id int64, state domain.TwoFactorState) error {
	s.twoFactor[id] = state
	return nil
}

func (s *stubPrincipalRepo) RecordAuthEvent(context.Context, int64, string, map[string]any) error {
	return nil
}

type stubChallengeRepo struct {
	pending map[string]bool
}

func (s *stubChallengeRepo) key(role domain.Role, id int64) string {
	return string(role) + ":" + strconv.FormatInt(id, 10)
}

func (s *stubChallengeRepo) Put(_ context.Context, role domain.Role, id int64, _ time.Duration) error {
	s.pending[s.key(role, id)] = true
	return nil
}

func (s *stubChallengeRepo) Exists(_ context.Context, role domain.Role, id int64) (bool, error) {
	return s.pending[s.key(role, id)], nil
}

func (s *stubChallengeRepo) Delete(_ context.Context, role domain.Role, id int64) error {
	delete(s.pending, s.key(role, id))
	return nil
}

type stubSMSVerifier struct {
	sentTo []string
}

func (s *stubSMSVerifier) Send(_ context.Context, phone string) error {
	s.sentTo = append(s.sentTo, phone)
	return nil
}

func (s *stubSMSVerifier) Check(_ context.Context, _ string, code string) (bool, error) {
	return code == "424242", nil
}

type testEnv struct {
	server   *echo.Echo
	patients *stubPrincipalRepo
	sms      *stubSMSVerifier
	tokens   *security.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		patients: newStubPrincipalRepo(),
		sms:      &stubSMSVerifier{},
		tokens:   security.NewTokenIssuer("test-secret", time.Hour),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	u := usecase.NewAuthUsecase(
		map[domain.Role]domain.PrincipalRepository{domain.RolePatient: env.patients},
		&stubChallengeRepo{pending: make(map[string]bool)},
		env.sms,
		env.tokens,
		metrics.New(nil),
		logger,
		5*time.Minute,
	)

	e := echo.New()
	e.Validator = NewRequestValidator()
	v1 := e.Group("/v1")
	NewAuthHandler(v1, u, logger, false)
	NewTwoFactorHandler(v1, u, env.tokens, logger, false)

	env.server = e
	return env
}

func (env *testEnv) addPatient(t *testing.T, email, password string, state domain.TwoFactorState) *domain.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	p := &domain.Principal{Email: email, PasswordHash: string(hash), FullName: "Test Patient", Role: domain.RolePatient}
	require.NoError(t, env.patients.Create(context.Background(), p))
	env.patients.twoFactor[p.ID] = state
	return p
}

func (env *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestLoginEndpointSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123", domain.TwoFactorState{})

	rec := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"pw123"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie, "login must set the session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)

	claims, err := env.tokens.Validate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RolePatient), claims.Role)

	var resp struct {
		Principal domain.Principal `json:"principal"`
		ExpiresIn int64            `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice@example.com", resp.Principal.Email)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestLoginEndpointWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123", domain.TwoFactorState{})

	rec := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(t, rec))
	assert.Contains(t, rec.Body.String(), "invalid email or password")
}

func TestLoginEndpointUnknownEmailSameResponse(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123", domain.TwoFactorState{})

	known := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"wrong"}`)
	unknown := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"ghost@example.com","password":"wrong"}`)

	assert.Equal(t, known.Code, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
}

func TestLoginEndpointStepUpChallenge(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPatient(t, "alice@example.com", "pw123",
		domain.TwoFactorState{Enabled: true, Secret: "JBSWY3DPEHPK3PXP"})

	rec := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"pw123"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, sessionCookie(t, rec), "no cookie may be set before the second factor")

	var challenge challengeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
	assert.Equal(t, p.ID, challenge.PrincipalID)
	assert.Equal(t, []string{domain.MethodAuthenticator}, challenge.Methods)
}

func TestVerifyEndpointSMS(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123",
		domain.TwoFactorState{SMSEnabled: true, Phone: "+15550100"})

	login := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"pw123"}`)
	require.Equal(t, http.StatusAccepted, login.Code)

	send := env.do(http.MethodPost, "/v1/auth/patient/sms/send", `{"principal_id":1}`)
	require.Equal(t, http.StatusNoContent, send.Code)
	assert.Equal(t, []string{"+15550100"}, env.sms.sentTo)

	verify := env.do(http.MethodPost, "/v1/auth/patient/verify", `{"principal_id":1,"code":"424242","method":"sms"}`)
	require.Equal(t, http.StatusOK, verify.Code)
	assert.NotNil(t, sessionCookie(t, verify))
}

func TestVerifyEndpointWithoutLogin(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123",
		domain.TwoFactorState{SMSEnabled: true, Phone: "+15550100"})

	rec := env.do(http.MethodPost, "/v1/auth/patient/verify", `{"principal_id":1,"code":"424242","method":"sms"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyEndpointUnsupportedMethod(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123",
		domain.TwoFactorState{SMSEnabled: true, Phone: "+15550100"})

	login := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"pw123"}`)
	require.Equal(t, http.StatusAccepted, login.Code)

	rec := env.do(http.MethodPost, "/v1/auth/patient/verify", `{"principal_id":1,"code":"424242","method":"fax"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpointUnknownRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/wizard/login", `{"email":"a@b.com","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpointMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123", domain.TwoFactorState{})

	login := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"pw123"}`)
	require.Equal(t, http.StatusOK, login.Code)

	rec := env.do(http.MethodGet, "/v1/me", "", sessionCookie(t, login))
	require.Equal(t, http.StatusOK, rec.Code)

	var p domain.Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "alice@example.com", p.Email)
}

func TestMeEndpointWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpointTamperedCookie(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123", domain.TwoFactorState{})

	login := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"pw123"}`)
	cookie := sessionCookie(t, login)
	cookie.Value += "x"

	rec := env.do(http.MethodGet, "/v1/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/logout", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestTwoFactorEnrollmentFlow(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "alice@example.com", "pw123", domain.TwoFactorState{})

	login := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"alice@example.com","password":"pw123"}`)
	require.Equal(t, http.StatusOK, login.Code)
	cookie := sessionCookie(t, login)

	setup := env.do(http.MethodPost, "/v1/2fa/setup", "", cookie)
	require.Equal(t, http.StatusOK, setup.Code)

	var enrollment struct {
		Secret string `json:"secret"`
		URI    string `json:"otpauth_uri"`
	}
	require.NoError(t, json.Unmarshal(setup.Body.Bytes(), &enrollment))
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.URI, "otpauth://totp/")

	// A wrong code must not enable anything.
	enable := env.do(http.MethodPost, "/v1/2fa/enable",
		`{"secret":"`+enrollment.Secret+`","code":"000000"}`, cookie)
	assert.Equal(t, http.StatusUnauthorized, enable.Code)
	assert.False(t, env.patients.twoFactor[1].Enabled)
}

func TestTwoFactorRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/2fa/disable", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/patient/register",
		`{"email":"bob@example.com","password":"hunter2hunter2","full_name":"Bob Okafor"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	login := env.do(http.MethodPost, "/v1/auth/patient/login", `{"email":"bob@example.com","password":"hunter2hunter2"}`)
	assert.Equal(t, http.StatusOK, login.Code)
}

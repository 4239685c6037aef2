package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mbeneti/vitalis-auth/internal/domain"
	"github.com/mbeneti/vitalis-auth/internal/gateway/smsverify"
	"github.com/mbeneti/vitalis-auth/internal/usecase"
	"github.com/mbeneti/vitalis-auth/pkg/security"
)

// AuthHandler is the HTTP delivery layer for authentication flows.
type AuthHandler struct {
	usecase       *usecase.AuthUsecase
	logger        *slog.Logger
	secureCookies bool
}

// NewAuthHandler registers the authentication routes on the provided group.
func NewAuthHandler(e *echo.Group, u *usecase.AuthUsecase, logger *slog.Logger, secureCookies bool) {
	handler := &AuthHandler{usecase: u, logger: logger, secureCookies: secureCookies}

	e.POST("/auth/:role/register", handler.Register)
	e.POST("/auth/:role/login", handler.Login)
	e.POST("/auth/:role/verify", handler.VerifyStepUp)
	e.POST("/auth/:role/sms/send", handler.SendStepUpCode)
	e.POST("/auth/logout", handler.Logout)
	e.GET("/me", handler.Me)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type stepUpRequest struct {
	PrincipalID int64  `json:"principal_id" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Method      string `json:"method" validate:"required"`
}

type sendCodeRequest struct {
	PrincipalID int64 `json:"principal_id" validate:"required"`
}

// sessionResponse is the success payload for login and step-up verification.
type sessionResponse struct {
	Principal *domain.Principal `json:"principal"`
	ExpiresIn int64             `json:"expires_in"`
}

// challengeResponse tells the client a second factor is still needed.
type challengeResponse struct {
	Message     string   `json:"message"`
	PrincipalID int64    `json:"principal_id"`
	Methods     []string `json:"methods"`
}

func bindRole(c echo.Context) (domain.Role, error) {
	return domain.ParseRole(c.Param("role"))
}

// writeAuthError maps orchestrator errors to stable status codes and reason
// strings; anything unexpected stays an opaque 500.
func (h *AuthHandler) writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrInvalidCode),
		errors.Is(err, usecase.ErrChallengeExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, usecase.ErrUnsupportedMethod):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, smsverify.ErrDelivery):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": smsverify.ErrDelivery.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, security.ErrTokenMissing),
		errors.Is(err, security.ErrTokenExpired),
		errors.Is(err, security.ErrTokenInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	default:
		h.logger.Error("auth request failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// Register creates a new principal account.
func (h *AuthHandler) Register(c echo.Context) error {
	role, err := bindRole(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown principal role"})
	}

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	p, err := h.usecase.Register(c.Request().Context(), role, req.Email, req.Password, req.FullName, req.Phone)
	if err != nil {
		return h.writeAuthError(c, err)
	}

	return c.JSON(http.StatusCreated, p)
}

// Login handles the first authentication step. A principal with a second
// factor enrolled gets a 202 challenge and no cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	role, err := bindRole(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown principal role"})
	}

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.usecase.Login(c.Request().Context(), role, req.Email, req.Password)
	if err != nil {
		return h.writeAuthError(c, err)
	}

	if result.Challenge != nil {
		return c.JSON(http.StatusAccepted, challengeResponse{
			Message:     "second factor required",
			PrincipalID: result.Challenge.PrincipalID,
			Methods:     result.Challenge.Methods,
		})
	}

	setSessionCookie(c, result.Session.Token, time.Duration(result.Session.ExpiresIn)*time.Second, h.secureCookies)
	return c.JSON(http.StatusOK, sessionResponse{
		Principal: result.Session.Principal,
		ExpiresIn: result.Session.ExpiresIn,
	})
}

// VerifyStepUp completes a pending 2FA login.
func (h *AuthHandler) VerifyStepUp(c echo.Context) error {
	role, err := bindRole(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown principal role"})
	}

	var req stepUpRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.usecase.VerifyStepUp(c.Request().Context(), role, req.PrincipalID, req.Code, req.Method)
	if err != nil {
		return h.writeAuthError(c, err)
	}

	setSessionCookie(c, session.Token, time.Duration(session.ExpiresIn)*time.Second, h.secureCookies)
	return c.JSON(http.StatusOK, sessionResponse{
		Principal: session.Principal,
		ExpiresIn: session.ExpiresIn,
	})
}

// SendStepUpCode asks the SMS oracle to deliver a code for a pending login.
func (h *AuthHandler) SendStepUpCode(c echo.Context) error {
	role, err := bindRole(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown principal role"})
	}

	var req sendCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.usecase.SendStepUpCode(c.Request().Context(), role, req.PrincipalID); err != nil {
		return h.writeAuthError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me resolves the current principal from the session cookie.
func (h *AuthHandler) Me(c echo.Context) error {
	p, err := h.usecase.CurrentPrincipal(c.Request().Context(), sessionToken(c))
	if err != nil {
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Logout clears the client-held cookie. The token is not revoked server-side;
// it simply expires.
func (h *AuthHandler) Logout(c echo.Context) error {
	clearSessionCookie(c, h.secureCookies)
	return c.NoContent(http.StatusNoContent)
}

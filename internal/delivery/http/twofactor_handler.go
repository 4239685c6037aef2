package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mbeneti/vitalis-auth/internal/domain"
	"github.com/mbeneti/vitalis-auth/internal/usecase"
	"github.com/mbeneti/vitalis-auth/pkg/security"
)

// TwoFactorHandler handles step-up enrollment and management. Every route
// requires an authenticated session; the principal acted on is always the
// session's own, never one named in the request.
type TwoFactorHandler struct {
	auth *AuthHandler
}

// NewTwoFactorHandler registers the 2FA management routes behind the session
// middleware.
func NewTwoFactorHandler(e *echo.Group, u *usecase.AuthUsecase, tokens *security.TokenIssuer, logger *slog.Logger, secureCookies bool) {
	handler := &TwoFactorHandler{
		auth: &AuthHandler{usecase: u, logger: logger, secureCookies: secureCookies},
	}

	g := e.Group("/2fa", SessionMiddleware(tokens))
	g.POST("/setup", handler.Setup)
	g.POST("/enable", handler.Enable)
	g.POST("/sms/send", handler.SendSMSEnrollment)
	g.POST("/sms/enable", handler.EnableSMS)
	g.POST("/disable", handler.Disable)
}

type enableRequest struct {
	Secret string `json:"secret" validate:"required"`
	Code   string `json:"code" validate:"required,len=6"`
}

type smsEnrollRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

type smsEnableRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"code" validate:"required"`
}

func sessionIdentity(c echo.Context) (domain.Role, int64) {
	role, _ := c.Get(ctxRole).(domain.Role)
	id, _ := c.Get(ctxPrincipalID).(int64)
	return role, id
}

// Setup generates a fresh TOTP secret and provisioning URI for the caller.
func (h *TwoFactorHandler) Setup(c echo.Context) error {
	role, id := sessionIdentity(c)

	enrollment, err := h.auth.usecase.SetupTOTP(c.Request().Context(), role, id)
	if err != nil {
		return h.auth.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, enrollment)
}

// Enable turns on the authenticator method once the submitted code proves
// possession of the secret.
func (h *TwoFactorHandler) Enable(c echo.Context) error {
	role, id := sessionIdentity(c)

	var req enableRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.auth.usecase.EnableTOTP(c.Request().Context(), role, id, req.Secret, req.Code); err != nil {
		return h.auth.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "authenticator enabled"})
}

// SendSMSEnrollment delivers a verification code to the phone being enrolled.
func (h *TwoFactorHandler) SendSMSEnrollment(c echo.Context) error {
	role, id := sessionIdentity(c)

	var req smsEnrollRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.auth.usecase.BeginSMSEnrollment(c.Request().Context(), role, id, req.Phone); err != nil {
		return h.auth.writeAuthError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EnableSMS turns on the SMS method after the oracle confirms the code.
func (h *TwoFactorHandler) EnableSMS(c echo.Context) error {
	role, id := sessionIdentity(c)

	var req smsEnableRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.auth.usecase.ConfirmSMSEnrollment(c.Request().Context(), role, id, req.Phone, req.Code); err != nil {
		return h.auth.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "sms verification enabled"})
}

// Disable clears all second factors for the caller.
func (h *TwoFactorHandler) Disable(c echo.Context) error {
	role, id := sessionIdentity(c)

	if err := h.auth.usecase.DisableTwoFactor(c.Request().Context(), role, id); err != nil {
		return h.auth.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "two-factor authentication disabled"})
}

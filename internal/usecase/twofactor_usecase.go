package usecase

import (
	"context"

	"github.com/mbeneti/vitalis-auth/internal/domain"
	"github.com/mbeneti/vitalis-auth/pkg/security"
)

// TOTPEnrollment is handed to the client during authenticator setup. Nothing
// is persisted until the caller proves possession via EnableTOTP.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
}

// SetupTOTP generates a fresh secret and provisioning URI for enrollment.
func (u *AuthUsecase) SetupTOTP(ctx context.Context, role domain.Role, principalID int64) (*TOTPEnrollment, error) {
	repo, err := u.repo(role)
	if err != nil {
		return nil, err
	}

	p, err := repo.FindByID(ctx, principalID)
	if err != nil {
		return nil, err
	}

	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		return nil, err
	}

	return &TOTPEnrollment{
		Secret: secret,
		URI:    security.ProvisioningURI(p.Email, secret),
	}, nil
}

// EnableTOTP persists authenticator enrollment, but only after a current code
// proves the caller holds the secret. A wrong code changes nothing.
func (u *AuthUsecase) EnableTOTP(ctx context.Context, role domain.Role, principalID int64, secret, code string) error {
	repo, err := u.repo(role)
	if err != nil {
		return err
	}

	if !security.VerifyTOTP(secret, code, u.totpSkew) {
		return ErrInvalidCode
	}

	state, err := repo.TwoFactor(ctx, principalID)
	if err != nil {
		return err
	}
	state.Enabled = true
	state.Secret = secret

	if err := repo.SetTwoFactor(ctx, principalID, *state); err != nil {
		return err
	}

	_ = repo.RecordAuthEvent(ctx, principalID, "TOTP_ENABLED", nil)
	u.logger.Info("authenticator enrolled", "role", role, "principal_id", principalID)
	return nil
}

// BeginSMSEnrollment asks the oracle to deliver a code to the phone the
// principal wants to enroll.
func (u *AuthUsecase) BeginSMSEnrollment(ctx context.Context, role domain.Role, principalID int64, phone string) error {
	if _, err := u.repo(role); err != nil {
		return err
	}
	return u.sms.Send(ctx, phone)
}

// ConfirmSMSEnrollment turns on the SMS method once the oracle confirms the
// caller received a code at that phone.
func (u *AuthUsecase) ConfirmSMSEnrollment(ctx context.Context, role domain.Role, principalID int64, phone, code string) error {
	repo, err := u.repo(role)
	if err != nil {
		return err
	}

	ok, err := u.sms.Check(ctx, phone, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	state, err := repo.TwoFactor(ctx, principalID)
	if err != nil {
		return err
	}
	state.SMSEnabled = true
	state.Phone = phone

	if err := repo.SetTwoFactor(ctx, principalID, *state); err != nil {
		return err
	}

	_ = repo.RecordAuthEvent(ctx, principalID, "SMS_2FA_ENABLED", nil)
	return nil
}

// DisableTwoFactor clears every second factor. An authenticated session is
// the only prerequisite; no re-auth challenge is demanded, which is a known
// weakness of the current policy.
func (u *AuthUsecase) DisableTwoFactor(ctx context.Context, role domain.Role, principalID int64) error {
	repo, err := u.repo(role)
	if err != nil {
		return err
	}

	if err := repo.SetTwoFactor(ctx, principalID, domain.TwoFactorState{}); err != nil {
		return err
	}

	_ = repo.RecordAuthEvent(ctx, principalID, "2FA_DISABLED", nil)
	return nil
}

package security

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpPeriod is the standard TOTP time-step size in seconds.
const totpPeriod = 30

// DefaultTOTPSkew is the clock-skew tolerance in adjacent time steps.
const DefaultTOTPSkew = 1

// GenerateTOTPSecret returns a fresh random secret in the Base32 alphabet
// authenticator apps expect.
func GenerateTOTPSecret() (string, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret), nil
}

// ProvisioningURI builds the otpauth:// URI that enrollment QR codes encode.
func ProvisioningURI(email, secret string) string {
	const issuer = "Vitalis"
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer), url.PathEscape(email), secret, url.QueryEscape(issuer))
}

// VerifyTOTP reports whether code is valid for secret at the current time,
// accepting codes up to skew time steps away on either side. An absent or
// malformed secret never validates.
func VerifyTOTP(secret, code string, skew uint) bool {
	return verifyTOTPAt(secret, code, skew, time.Now())
}

func verifyTOTPAt(secret, code string, skew uint, t time.Time) bool {
	if secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

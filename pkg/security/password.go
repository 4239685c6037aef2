package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost trades hash time for brute-force resistance; 12 keeps a
// verification in the tens of milliseconds on current hardware.
const bcryptCost = 12

// HashPassword produces a salted bcrypt hash of the plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
// It fails closed: a missing or malformed hash is a non-match, never an error
// that could bypass the check.
func VerifyPassword(password, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

package authkit

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// OTP defaults.
const (
	// OTPLength is the number of digits in a one-time code.
	OTPLength = 6

	// OTPExpiry is how long an issued code stays valid.
	OTPExpiry = 5 * time.Minute
)

// OTPManager issues and checks numeric one-time codes. Only a salted hash of
// the code is ever written to the user record; the plaintext exists solely in
// the return value of Issue for out-of-band delivery.
type OTPManager struct {
	// Hasher hashes codes at rest. Nil uses the default cost.
	Hasher *Hasher

	// Expiry overrides OTPExpiry when positive.
	Expiry time.Duration
}

func (m *OTPManager) expiry() time.Duration {
	if m == nil || m.Expiry <= 0 {
		return OTPExpiry
	}
	return m.Expiry
}

func (m *OTPManager) hasher() *Hasher {
	if m == nil {
		return nil
	}
	return m.Hasher
}

// Issue generates a fresh code and writes its hash and expiry onto user,
// clearing any prior verified flag. A previously issued code becomes unusable
// the moment the caller persists user, since the stored hash is replaced in
// the same write. The caller is responsible for saving user and delivering
// the returned plaintext.
func (m *OTPManager) Issue(user *User) (string, error) {
	code, err := generateNumericCode(OTPLength)
	if err != nil {
		return "", err
	}
	hash, err := m.hasher().Hash(code)
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(m.expiry())
	user.OTPHash = hash
	user.OTPExpiresAt = &expiresAt
	user.OTPVerified = false
	return code, nil
}

// Verify checks code against the user's active challenge. It never mutates
// user; consumption is the caller's decision so the registration and login
// paths can finish differently without double-writes.
//
// Expiry is strict: a code issued at T fails at exactly T+expiry.
func (m *OTPManager) Verify(user *User, code string) error {
	if user.OTPHash == "" || user.OTPExpiresAt == nil {
		return ErrNoChallenge
	}
	if !time.Now().Before(*user.OTPExpiresAt) {
		return ErrOTPExpired
	}
	if !m.hasher().Verify(code, user.OTPHash) {
		return ErrOTPMismatch
	}
	return nil
}

// generateNumericCode returns a fixed-length string of random decimal digits.
func generateNumericCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

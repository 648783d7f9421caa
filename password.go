package authkit

import "golang.org/x/crypto/bcrypt"

// Hasher performs one-way password hashing. The zero value uses
// bcrypt.DefaultCost, which keeps a single hash in the tens-of-milliseconds
// range on commodity hardware.
type Hasher struct {
	// Cost is the bcrypt cost factor. Values below bcrypt.MinCost fall back
	// to bcrypt.DefaultCost.
	Cost int
}

func (h *Hasher) cost() int {
	if h == nil || h.Cost < bcrypt.MinCost {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash returns the one-way hash of plaintext. The plaintext is never logged
// or persisted.
func (h *Hasher) Hash(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plaintext matches hash.
func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

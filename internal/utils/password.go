package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns the bcrypt hash of a raw password using the given
// cost. The hash is kept as opaque bytes because that is how it is stored.
func HashPassword(plain string, cost int) ([]byte, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// VerifyPassword safely compares a bcrypt hash and a plain password.
func VerifyPassword(hash []byte, plain string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}

package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a plaintext password. Cost values outside the
// bcrypt range fall back to the library default. Passwords over 72
// bytes are rejected by bcrypt itself rather than silently truncated.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a plaintext password against a stored hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordHashCost is the lowest bcrypt cost we accept for new hashes
const MinPasswordHashCost = 10

// BcryptHasher implements CredentialHasher with a fixed bcrypt cost
type BcryptHasher struct {
	Cost int
}

var _ CredentialHasher = BcryptHasher{}

// NewBcryptHasher returns a hasher, raising cost to MinPasswordHashCost if needed
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < MinPasswordHashCost {
		cost = MinPasswordHashCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return BcryptHasher{Cost: cost}
}

// HashPassword will generate a password hash
func (b BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost < MinPasswordHashCost {
		cost = MinPasswordHashCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (b BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

// HashPassword hashes with MinPasswordHashCost
func HashPassword(password string) (string, error) {
	return BcryptHasher{Cost: MinPasswordHashCost}.HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

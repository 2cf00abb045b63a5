package security

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	SecretKeyLength   = 48
	MinSecretKeyBytes = 32
	secretAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

var (
	ErrSecretKeyTooShort    = errors.New("secret key must be at least 32 characters")
	ErrSecretKeyPlaceholder = errors.New("secret key is a placeholder value")
	errInvalidLength        = errors.New("length must be positive")
)

var placeholderSecrets = []string{"change_me", "changeme", "replace_me", "your-secret", "example-secret"}

// GenerateSecretKey returns a fresh signing key for new installations.
func GenerateSecretKey() (string, error) {
	return randomFromAlphabet(SecretKeyLength, secretAlphabet)
}

func randomFromAlphabet(length int, alphabet string) (string, error) {
	if length <= 0 || alphabet == "" {
		return "", errInvalidLength
	}

	limit := big.NewInt(int64(len(alphabet)))
	var builder strings.Builder
	builder.Grow(length)
	for builder.Len() < length {
		position, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[position.Int64()])
	}
	return builder.String(), nil
}

func ValidateSecretKey(secret string) error {
	trimmed := strings.TrimSpace(secret)
	if len(trimmed) < MinSecretKeyBytes {
		return ErrSecretKeyTooShort
	}
	lowered := strings.ToLower(trimmed)
	for _, placeholder := range placeholderSecrets {
		if strings.Contains(lowered, placeholder) {
			return ErrSecretKeyPlaceholder
		}
	}
	return nil
}

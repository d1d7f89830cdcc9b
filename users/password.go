package users

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// PasswordParams tunes argon2id.
type PasswordParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultPasswordParams follows the RFC 9106 second recommended option.
var DefaultPasswordParams = PasswordParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

var errMalformedHash = errors.New("malformed password hash")

// Bounds on parameters read back from stored hashes. argon2.IDKey panics on
// zero rounds or parallelism and allocates whatever memory it is told to.
const (
	maxHashMemory     = 1024 * 1024 // KiB
	maxHashIterations = 64
	minHashKeyLength  = 16
	maxHashKeyLength  = 128
)

var commonPasswords = map[string]bool{
	"password": true, "12345678": true, "qwerty": true, "admin123": true,
	"letmein": true, "welcome": true, "monkey": true, "sunshine": true,
	"password1": true, "123123": true, "11111111": true, "abcd1234": true,
	"trustno1": true, "dragon": true, "baseball": true,
}

// HashPassword hashes password with DefaultPasswordParams.
func HashPassword(password string) (string, error) {
	return HashPasswordWithParams(password, DefaultPasswordParams)
}

// HashPasswordWithParams returns password hashed with argon2id in PHC string
// format: $argon2id$v=19$m=...,t=...,p=...$salt$key.
func HashPasswordWithParams(password string, p PasswordParams) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches an encoded argon2id hash.
// The parameters are taken from the hash itself.
func VerifyPassword(password, encoded string) (bool, error) {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	other := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

func decodeHash(encoded string) (PasswordParams, []byte, []byte, error) {
	var p PasswordParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %w", errMalformedHash, err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported argon2 version %d", errMalformedHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %w", errMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: %w", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: %w", errMalformedHash, err)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))

	if err := checkParams(p); err != nil {
		return p, nil, nil, err
	}
	return p, salt, key, nil
}

func checkParams(p PasswordParams) error {
	switch {
	case p.Iterations < 1 || p.Iterations > maxHashIterations:
		return fmt.Errorf("%w: iterations %d out of range", errMalformedHash, p.Iterations)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism %d out of range", errMalformedHash, p.Parallelism)
	case p.Memory < 8*uint32(p.Parallelism) || p.Memory > maxHashMemory:
		return fmt.Errorf("%w: memory %d out of range", errMalformedHash, p.Memory)
	case p.KeyLength < minHashKeyLength || p.KeyLength > maxHashKeyLength:
		return fmt.Errorf("%w: key length %d out of range", errMalformedHash, p.KeyLength)
	case p.SaltLength == 0:
		return fmt.Errorf("%w: empty salt", errMalformedHash)
	}
	return nil
}

// ValidatePassword checks a plain-text password against the account policy:
// 8 to 64 characters, no spaces, at least one digit, one upper-case letter,
// one lower-case letter and one special character, and not a well-known
// password. All violations are reported together.
func ValidatePassword(password string) error {
	var problems []string

	if n := len([]rune(password)); n < 8 || n > 64 {
		problems = append(problems, "must be 8 to 64 characters long")
	}
	if strings.ContainsRune(password, ' ') {
		problems = append(problems, "must not contain spaces")
	}
	if commonPasswords[strings.ToLower(password)] {
		problems = append(problems, "is too common")
	}

	var digit, upper, lower, special bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !digit {
		problems = append(problems, "must contain a digit")
	}
	if !upper {
		problems = append(problems, "must contain an upper-case letter")
	}
	if !lower {
		problems = append(problems, "must contain a lower-case letter")
	}
	if !special {
		problems = append(problems, "must contain a special character")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: password %s", ErrInvalidInput, strings.Join(problems, ", "))
	}
	return nil
}

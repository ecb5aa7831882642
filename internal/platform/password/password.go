package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	argon2Prefix = "$argon2id$"
	bcryptPrefix = "$2"

	// Layout of imported PBKDF2 hashes: 0x01 | 16 byte salt | 32 byte subkey.
	pbkdf2Marker     = 0x1
	pbkdf2Iterations = 10000
	pbkdf2SaltSize   = 128 / 8
	pbkdf2KeyLength  = 256 / 8
)

var ErrEmptyPassword = errors.New("password must not be empty")

// Hasher hashes and verifies account secrets.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// BcryptHasher writes bcrypt hashes and verifies both bcrypt and legacy argon2id hashes.
type BcryptHasher struct {
	cost int
}

func NewHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify never fails loudly: an unknown or malformed hash is a mismatch.
func (h *BcryptHasher) Verify(secret, hash string) bool {
	if hash == "" {
		return false
	}
	if strings.HasPrefix(hash, argon2Prefix) {
		return verifyArgon2(secret, hash)
	}
	if !strings.HasPrefix(hash, bcryptPrefix) {
		return verifyPBKDF2(secret, hash)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// verifyArgon2 checks hashes of the form $argon2id$m=65536,t=1,p=4$<salt>$<hash>.
func verifyArgon2(secret, encoded string) bool {
	parts := strings.Split(strings.TrimPrefix(encoded, argon2Prefix), "$")
	// An optional v=19 segment precedes the parameters.
	if len(parts) == 4 && strings.HasPrefix(parts[0], "v=") {
		parts = parts[1:]
	}
	if len(parts) != 3 {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if memory == 0 || time == 0 || threads == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(expected) == 0 {
		return false
	}

	derived := argon2.IDKey([]byte(secret), salt, time, memory, threads, uint32(len(expected)))

	return subtle.ConstantTimeCompare(derived, expected) == 1
}

// verifyPBKDF2 checks base64 encoded PBKDF2-HMAC-SHA256 hashes carried over
// from the previous user database.
func verifyPBKDF2(secret, encoded string) bool {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) != 1+pbkdf2SaltSize+pbkdf2KeyLength || decoded[0] != pbkdf2Marker {
		return false
	}

	salt := decoded[1 : pbkdf2SaltSize+1]
	subkey := decoded[pbkdf2SaltSize+1:]

	derived := pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)

	return subtle.ConstantTimeCompare(derived, subkey) == 1
}

package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	jwtSecretValue = getEnv("JWTSECRET", "")
	jwtSecretByte  = []byte(jwtSecretValue)
	jwtMutex       sync.RWMutex
)

// Argon2id parameters. Changing these invalidates no stored hash because the
// parameters are embedded in the encoded string.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonPrefix  = "argon2id$"
)

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}

// SetJWTSecret updates the JWT secret used for token signing and for legacy
// HMAC password verification. Thread-safe; primarily used by tests.
func SetJWTSecret(secret string) {
	jwtMutex.Lock()
	defer jwtMutex.Unlock()
	jwtSecretByte = []byte(secret)
}

// GetJWTSecretByte returns a copy of the current JWT secret bytes.
func GetJWTSecretByte() []byte {
	jwtMutex.RLock()
	defer jwtMutex.RUnlock()
	return append([]byte(nil), jwtSecretByte...)
}

// GenerateSalt returns a fresh random per-user salt, hex encoded.
func GenerateSalt() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashPasswordArgon2 derives an argon2id hash of the password with the given
// salt and returns it in the encoded form stored on the user row.
func HashPasswordArgon2(password, salt string) (string, error) {
	if salt == "" {
		return "", fmt.Errorf("salt cannot be empty")
	}
	key := argon2.IDKey([]byte(password), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	encoded := fmt.Sprintf("%sv=19$m=%d,t=%d,p=%d$%s$%s",
		argonPrefix, argonMemory, argonTime, argonThreads,
		salt, base64.RawStdEncoding.EncodeToString(key))
	return encoded, nil
}

// hashPasswordHMAC is the legacy scheme: HMAC-SHA256 keyed with the JWT
// secret. Kept only to verify accounts created before the argon2 migration.
func hashPasswordHMAC(password string) string {
	h := hmac.New(sha256.New, GetJWTSecretByte())
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPassword checks a plaintext password against the stored hash. Both
// the current argon2id form and the legacy HMAC form are accepted; callers
// upgrade legacy hashes on successful login.
func VerifyPassword(plain, stored, salt string) (bool, error) {
	if stored == "" {
		return false, fmt.Errorf("stored password hash is empty")
	}

	if strings.HasPrefix(stored, argonPrefix) {
		recomputed, err := HashPasswordArgon2(plain, salt)
		if err != nil {
			return false, err
		}
		return subtle.ConstantTimeCompare([]byte(recomputed), []byte(stored)) == 1, nil
	}

	legacy := hashPasswordHMAC(plain)
	return subtle.ConstantTimeCompare([]byte(legacy), []byte(stored)) == 1, nil
}

// IsLegacyPasswordHash reports whether the stored hash predates argon2id.
func IsLegacyPasswordHash(stored string) bool {
	return !strings.HasPrefix(stored, argonPrefix)
}

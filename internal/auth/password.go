package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const legacySeparator = "::"

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares password with a stored hash. Hashes in the legacy
// "salt::sha256(password+salt)" format are accepted; needsRehash reports that
// the caller should replace the stored hash with HashPassword output.
func CheckPassword(stored, password string) (ok bool, needsRehash bool) {
	if salt, digest, found := strings.Cut(stored, legacySeparator); found {
		sum := sha256.Sum256([]byte(password + salt))
		expected := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(expected), []byte(digest)) == 1 {
			return true, true
		}
		return false, false
	}

	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
}

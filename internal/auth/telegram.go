package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTelegramSignature = errors.New("telegram signature mismatch")
	ErrTelegramExpired   = errors.New("telegram auth data is too old")
	ErrTelegramPayload   = errors.New("telegram auth payload is incomplete")
)

// TelegramIdentity is the verified subset of a login widget payload.
type TelegramIdentity struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	AuthDate  time.Time
}

// DisplayName follows the widget naming order: full name, then username, then a generic label.
func (t TelegramIdentity) DisplayName() string {
	if name := strings.TrimSpace(t.FirstName + " " + t.LastName); name != "" {
		return name
	}
	if t.Username != "" {
		return t.Username
	}
	return fmt.Sprintf("User %d", t.ID)
}

// VerifyTelegramLogin checks a login widget payload. fields holds every widget
// field as a string, including "hash". maxAge <= 0 disables the freshness check.
func VerifyTelegramLogin(fields map[string]string, botToken string, maxAge time.Duration, now time.Time) (*TelegramIdentity, error) {
	hash := fields["hash"]
	if hash == "" || fields["id"] == "" {
		return nil, ErrTelegramPayload
	}

	lines := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == "hash" {
			continue
		}
		lines = append(lines, k+"="+v)
	}
	sort.Strings(lines)

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return nil, ErrTelegramSignature
	}

	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrTelegramPayload
	}

	identity := &TelegramIdentity{
		ID:        id,
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Username:  fields["username"],
	}

	if raw := fields["auth_date"]; raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, ErrTelegramPayload
		}
		identity.AuthDate = time.Unix(ts, 0).UTC()
	}

	if maxAge > 0 {
		if identity.AuthDate.IsZero() || now.Sub(identity.AuthDate) > maxAge {
			return nil, ErrTelegramExpired
		}
	}

	return identity, nil
}

package domain

import "time"

// User represents an application user stored in the database.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	// TelegramID is set for accounts created or linked through the login widget.
	TelegramID *int64
	// TelegramChatID is the private chat notifications are delivered to.
	TelegramChatID *int64
	Settings       NotificationSettings

	LastDailySentAt   *time.Time
	LastWeeklySentAt  *time.Time
	LastBurnoutSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the full name or an empty string.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return u.FullName
}

// HasChat reports whether the user can receive Telegram messages.
func (u *User) HasChat() bool {
	return u != nil && u.TelegramChatID != nil && *u.TelegramChatID != 0
}

// LastSentAt returns the dedup marker for kind.
func (u *User) LastSentAt(kind NotificationKind) *time.Time {
	switch kind {
	case KindDaily:
		return u.LastDailySentAt
	case KindWeekly:
		return u.LastWeeklySentAt
	case KindBurnout:
		return u.LastBurnoutSentAt
	default:
		return nil
	}
}

// Profile is the public view of a user returned by the API.
type Profile struct {
	ID                   int64                `json:"id"`
	Email                string               `json:"email"`
	Name                 string               `json:"name"`
	TelegramLinked       bool                 `json:"telegramLinked"`
	NotificationSettings NotificationSettings `json:"notificationSettings"`
}

// ToProfile converts the stored record to its public view.
func (u *User) ToProfile() Profile {
	return Profile{
		ID:                   u.ID,
		Email:                u.Email,
		Name:                 u.FullName,
		TelegramLinked:       u.HasChat(),
		NotificationSettings: u.Settings,
	}
}

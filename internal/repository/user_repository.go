package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/flowkat/internal/domain"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	FindByChatID(ctx context.Context, chatID int64) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdateProfile(ctx context.Context, id int64, fullName string, settings domain.NotificationSettings) error
	SetTelegramChat(ctx context.Context, id int64, chatID int64) error
	UpdateTelegramLogin(ctx context.Context, id int64, fullName string, telegramID int64) error
	ListNotifiable(ctx context.Context) ([]domain.User, error)
	CountNotifiable(ctx context.Context) (int, error)
	MarkSent(ctx context.Context, id int64, kind domain.NotificationKind, at time.Time) error
}

const userColumns = `
	id, email, password_hash, full_name, telegram_id, telegram_chat_id,
	notification_settings, last_daily_sent_at, last_weekly_sent_at, last_burnout_sent_at,
	created_at, updated_at`

const notifiableFilter = `
	telegram_chat_id IS NOT NULL
	AND (
		COALESCE((notification_settings->>'dailyReminder')::boolean, false)
		OR COALESCE((notification_settings->>'weeklyReport')::boolean, false)
		OR COALESCE((notification_settings->>'burnoutWarnings')::boolean, false)
	)`

var markerColumns = map[domain.NotificationKind]string{
	domain.KindDaily:   "last_daily_sent_at",
	domain.KindWeekly:  "last_weekly_sent_at",
	domain.KindBurnout: "last_burnout_sent_at",
}

type userRepository struct {
	base
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(db *sql.DB, log *slog.Logger, opts ...Option) UserRepository {
	return &userRepository{base: newBase(db, log, opts)}
}

// Create persists a new user record and fills in its generated fields.
// A duplicate email yields domain.ErrEmailTaken.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (email, password_hash, full_name, telegram_id, telegram_chat_id, notification_settings)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	settings, err := json.Marshal(user.Settings)
	if err != nil {
		return fmt.Errorf("encode notification settings: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.FullName,
		nullInt64(user.TelegramID),
		nullInt64(user.TelegramChatID),
		string(settings),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrEmailTaken
		}
		r.log.Error("failed to create user", slog.String("email", user.Email), slog.Any("error", err))
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by primary key.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByEmail retrieves a user by lower-cased email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

// FindByTelegramID retrieves a user created through Telegram login.
func (r *userRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return r.findOne(ctx, "telegram_id = $1", telegramID)
}

// FindByChatID returns the most recently updated account linked to chatID.
func (r *userRepository) FindByChatID(ctx context.Context, chatID int64) (*domain.User, error) {
	return r.findOne(ctx, "telegram_chat_id = $1 ORDER BY updated_at DESC LIMIT 1", chatID)
}

func (r *userRepository) findOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.log.Error("failed to fetch user", slog.String("where", where), slog.Any("error", err))
		return nil, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *userRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "update password hash", query, hash, id)
}

// UpdateProfile stores the display name and notification preferences.
func (r *userRepository) UpdateProfile(ctx context.Context, id int64, fullName string, settings domain.NotificationSettings) error {
	const query = `
		UPDATE users
		SET full_name = $1, notification_settings = $2, updated_at = NOW()
		WHERE id = $3
	`

	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode notification settings: %w", err)
	}

	return r.execOne(ctx, "update profile", query, fullName, string(payload), id)
}

// SetTelegramChat links the private chat used for notifications.
func (r *userRepository) SetTelegramChat(ctx context.Context, id int64, chatID int64) error {
	const query = `UPDATE users SET telegram_chat_id = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "set telegram chat", query, chatID, id)
}

// UpdateTelegramLogin refreshes the display name on widget login and binds the
// Telegram account. The widget id doubles as the private chat id.
func (r *userRepository) UpdateTelegramLogin(ctx context.Context, id int64, fullName string, telegramID int64) error {
	const query = `
		UPDATE users
		SET full_name = $1,
			telegram_id = $2,
			telegram_chat_id = COALESCE(telegram_chat_id, $2),
			updated_at = NOW()
		WHERE id = $3
	`
	return r.execOne(ctx, "update telegram login", query, fullName, telegramID, id)
}

// MarkSent records a successful delivery of kind at the given instant.
func (r *userRepository) MarkSent(ctx context.Context, id int64, kind domain.NotificationKind, at time.Time) error {
	column, ok := markerColumns[kind]
	if !ok {
		return fmt.Errorf("unknown notification kind %q", kind)
	}

	query := `UPDATE users SET ` + column + ` = $1 WHERE id = $2`
	return r.execOne(ctx, "mark sent", query, at.UTC(), id)
}

// ListNotifiable returns users with a linked chat and at least one notification enabled.
func (r *userRepository) ListNotifiable(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + notifiableFilter + ` ORDER BY id`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select notifiable users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notifiable user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifiable users: %w", err)
	}

	return users, nil
}

// CountNotifiable returns the size of ListNotifiable without loading rows.
func (r *userRepository) CountNotifiable(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE ` + notifiableFilter

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifiable users: %w", err)
	}
	return count, nil
}

func (r *userRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("user update failed", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user        domain.User
		telegramID  sql.NullInt64
		chatID      sql.NullInt64
		settings    []byte
		lastDaily   sql.NullTime
		lastWeekly  sql.NullTime
		lastBurnout sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&telegramID,
		&chatID,
		&settings,
		&lastDaily,
		&lastWeekly,
		&lastBurnout,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &user.Settings); err != nil {
			return nil, fmt.Errorf("decode notification settings: %w", err)
		}
	}

	user.TelegramID = int64Ptr(telegramID)
	user.TelegramChatID = int64Ptr(chatID)
	user.LastDailySentAt = timePtr(lastDaily)
	user.LastWeeklySentAt = timePtr(lastWeekly)
	user.LastBurnoutSentAt = timePtr(lastBurnout)

	return &user, nil
}

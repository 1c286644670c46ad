// Package profile manages display names, notification preferences and
// Telegram chat linking.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/usercache"
	appredis "github.com/Proton-105/flowkat/pkg/redis"
)

// LinkCodeTTL is how long a chat link code stays valid.
const LinkCodeTTL = 10 * time.Minute

const linkKeyPrefix = "tglink:"

// Users is the part of the user repository the service needs.
type Users interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByChatID(ctx context.Context, chatID int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, id int64, fullName string, settings domain.NotificationSettings) error
	SetTelegramChat(ctx context.Context, id int64, chatID int64) error
}

// CodeStore keeps one-time link codes.
type CodeStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
}

// UpdateInput is the body of a profile update. A nil NotificationSettings keeps the stored ones.
type UpdateInput struct {
	Name                 string                       `json:"name" validate:"max=200"`
	NotificationSettings *domain.NotificationSettings `json:"notificationSettings"`
}

// LinkCode is handed to the user to send to the bot.
type LinkCode struct {
	Code      string    `json:"code"`
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service provides profile operations.
type Service struct {
	users       Users
	cache       *usercache.Cache
	codes       CodeStore
	validate    *validator.Validate
	defaultTime string
	log         *slog.Logger
	now         func() time.Time
}

// NewService constructs the profile service. cache and codes may be nil when
// Redis is disabled; linking then reports a configuration error.
func NewService(users Users, cache *usercache.Cache, codes CodeStore, defaultDailyTime string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if _, _, ok := domain.ParseClock(defaultDailyTime); !ok {
		defaultDailyTime = fmt.Sprintf("%02d:00", domain.DefaultReminderHour)
	}

	return &Service{
		users:       users,
		cache:       cache,
		codes:       codes,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		defaultTime: defaultDailyTime,
		log:         log.With(slog.String("component", "profile")),
		now:         time.Now,
	}
}

// Get returns the public profile, served from cache when possible.
func (s *Service) Get(ctx context.Context, userID int64) (*domain.Profile, error) {
	if cached, err := s.cache.Get(ctx, userID); err != nil {
		s.log.Warn("profile cache read failed", slog.Int64("user_id", userID), slog.Any("error", err))
	} else if cached != nil {
		return cached, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, s.lookupError(err)
	}

	profile := s.toProfile(user)
	if err := s.cache.Set(ctx, &profile); err != nil {
		s.log.Warn("profile cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	return &profile, nil
}

// Update validates and stores the name and notification preferences.
func (s *Service) Update(ctx context.Context, userID int64, in UpdateInput) (*domain.Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.NewValidationError("Имя не должно превышать 200 символов")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, s.lookupError(err)
	}

	settings := user.Settings
	if in.NotificationSettings != nil {
		settings, err = NormalizeSettings(*in.NotificationSettings)
		if err != nil {
			return nil, err
		}
	}

	if err := s.users.UpdateProfile(ctx, userID, in.Name, settings); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	s.invalidate(ctx, userID)

	user.FullName = in.Name
	user.Settings = settings
	profile := s.toProfile(user)

	s.log.Info("profile updated", slog.Int64("user_id", userID))
	return &profile, nil
}

// NormalizeSettings checks the reminder time and zone. The time is stored as
// zero-padded "HH:MM" and the zone trimmed.
func NormalizeSettings(in domain.NotificationSettings) (domain.NotificationSettings, error) {
	if in.DailyReminderTime != "" {
		hour, minute, ok := domain.ParseClock(in.DailyReminderTime)
		if !ok {
			return in, apperrors.NewValidationError("Время напоминания должно быть в формате ЧЧ:ММ")
		}
		in.DailyReminderTime = fmt.Sprintf("%02d:%02d", hour, minute)
	}

	in.Timezone = strings.TrimSpace(in.Timezone)
	if in.Timezone != "" {
		if strings.EqualFold(in.Timezone, "Local") {
			return in, apperrors.NewValidationError("Неизвестный часовой пояс")
		}
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			return in, apperrors.NewValidationError("Неизвестный часовой пояс")
		}
	}

	return in, nil
}

// IssueLinkCode creates a one-time code the user sends to the bot as "/start <code>".
func (s *Service) IssueLinkCode(ctx context.Context, userID int64) (*LinkCode, error) {
	if s.codes == nil {
		return nil, apperrors.NewConfigError("redis")
	}

	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.codes.Set(ctx, linkKeyPrefix+code, strconv.FormatInt(userID, 10), LinkCodeTTL); err != nil {
		s.log.Error("failed to store link code", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("store link code: %w", err)
	}

	return &LinkCode{
		Code:      code,
		Command:   "/start " + code,
		ExpiresAt: s.now().Add(LinkCodeTTL).UTC(),
	}, nil
}

// LinkChat consumes code and binds chatID to its owner. Unknown or expired
// codes yield domain.ErrNotFound.
func (s *Service) LinkChat(ctx context.Context, code string, chatID int64) (*domain.User, error) {
	if s.codes == nil {
		return nil, apperrors.NewConfigError("redis")
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrNotFound
	}

	raw, err := s.codes.GetDel(ctx, linkKeyPrefix+code)
	if errors.Is(err, appredis.ErrNil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume link code: %w", err)
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed link code value %q: %w", raw, err)
	}

	if err := s.users.SetTelegramChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.log.Info("telegram chat linked", slog.Int64("user_id", userID), slog.Int64("chat_id", chatID))
	return user, nil
}

// FindByChat returns the account linked to chatID.
func (s *Service) FindByChat(ctx context.Context, chatID int64) (*domain.User, error) {
	return s.users.FindByChatID(ctx, chatID)
}

func (s *Service) toProfile(user *domain.User) domain.Profile {
	profile := user.ToProfile()
	if profile.NotificationSettings.DailyReminderTime == "" {
		profile.NotificationSettings.DailyReminderTime = s.defaultTime
	}
	return profile
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("profile cache invalidation failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) lookupError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperrors.NewNotFoundError("Пользователь не найден")
	}
	return apperrors.NewDatabaseError(err)
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/repository"
	"github.com/Proton-105/flowkat/pkg/config"
)

const defaultMinPassword = 6

// RegisterInput is the payload of a password registration.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=200"`
}

// Session is returned by every successful login.
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      domain.Profile `json:"user"`
}

// Service authenticates users.
type Service struct {
	users       repository.UserRepository
	tokens      *TokenService
	validate    *validator.Validate
	log         *slog.Logger
	botToken    string
	authMaxAge  time.Duration
	minPassword int
	now         func() time.Time
}

// NewService constructs the auth service.
func NewService(users repository.UserRepository, tokens *TokenService, authCfg config.AuthConfig, tgCfg config.TelegramConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	minPassword := authCfg.MinPassword
	if minPassword <= 0 {
		minPassword = defaultMinPassword
	}

	return &Service{
		users:       users,
		tokens:      tokens,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		log:         log.With(slog.String("component", "auth")),
		botToken:    tgCfg.Token,
		authMaxAge:  tgCfg.AuthMaxAge,
		minPassword: minPassword,
		now:         time.Now,
	}
}

// Register creates a password account and returns a session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	if in.Email == "" || in.Password == "" {
		return nil, apperrors.NewValidationError("Email и пароль обязательны")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.NewValidationError("Некорректный email")
	}
	if len([]rune(in.Password)) < s.minPassword {
		return nil, apperrors.NewValidationError(fmt.Sprintf("Пароль должен быть минимум %d символов", s.minPassword))
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{Email: in.Email, PasswordHash: hash, FullName: in.Name}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, apperrors.NewConflictError("Пользователь с таким email уже существует", err)
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	s.log.Info("user registered", slog.Int64("user_id", user.ID))
	return s.session(user)
}

// Login verifies email and password. Legacy hashes are upgraded to bcrypt on success.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("Email и пароль обязательны")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewUnauthorizedError("Неверный email или пароль")
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	ok, needsRehash := CheckPassword(user.PasswordHash, password)
	if !ok {
		return nil, apperrors.NewUnauthorizedError("Неверный email или пароль")
	}

	if needsRehash {
		if hash, err := HashPassword(password); err == nil {
			if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
				s.log.Warn("password rehash failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
			}
		}
	}

	return s.session(user)
}

// Telegram logs in with a login widget payload, creating the account on first use.
func (s *Service) Telegram(ctx context.Context, fields map[string]string) (*Session, error) {
	if s.botToken == "" {
		return nil, apperrors.NewConfigError("TELEGRAM_BOT_TOKEN")
	}
	if fields["id"] == "" || fields["hash"] == "" {
		return nil, apperrors.NewValidationError("Недостаточно данных от Telegram")
	}

	identity, err := VerifyTelegramLogin(fields, s.botToken, s.authMaxAge, s.now())
	switch {
	case errors.Is(err, ErrTelegramExpired):
		return nil, apperrors.NewUnauthorizedError("Данные Telegram устарели, войдите заново")
	case errors.Is(err, ErrTelegramPayload):
		return nil, apperrors.NewValidationError("Недостаточно данных от Telegram")
	case err != nil:
		return nil, apperrors.NewUnauthorizedError("Неверная подпись Telegram")
	}

	user, err := s.findTelegramUser(ctx, identity.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.NewDatabaseError(err)
	}

	name := identity.DisplayName()
	if user != nil {
		if err := s.users.UpdateTelegramLogin(ctx, user.ID, name, identity.ID); err != nil {
			return nil, apperrors.NewDatabaseError(err)
		}
		user.FullName = name
		if user.TelegramChatID == nil {
			user.TelegramChatID = &identity.ID
		}
		return s.session(user)
	}

	hash, err := HashPassword(randomSecret())
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	telegramID := identity.ID
	user = &domain.User{
		Email:          TelegramEmail(identity.ID),
		PasswordHash:   hash,
		FullName:       name,
		TelegramID:     &telegramID,
		TelegramChatID: &telegramID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	s.log.Info("telegram user created", slog.Int64("user_id", user.ID), slog.Int64("telegram_id", telegramID))
	return s.session(user)
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewUnauthorizedError("Токен не предоставлен")
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("Невалидный или истекший токен")
	}
	return claims, nil
}

// Me returns the authenticated user.
func (s *Service) Me(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Пользователь не найден")
		}
		return nil, apperrors.NewDatabaseError(err)
	}
	return user, nil
}

// TelegramEmail is the synthetic email of an account created through the widget.
func TelegramEmail(telegramID int64) string {
	return fmt.Sprintf("telegram_%d@energy.app", telegramID)
}

func (s *Service) findTelegramUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return user, err
	}
	// accounts created before telegram_id existed are keyed by the synthetic email
	return s.users.FindByEmail(ctx, TelegramEmail(telegramID))
}

func (s *Service) session(user *domain.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: user.ToProfile()}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

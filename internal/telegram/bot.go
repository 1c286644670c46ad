package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/flowkat/internal/domain"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/i18n"
)

// Bot commands.
const (
	CommandStart  = "/start"
	CommandStatus = "/status"
	CommandHelp   = "/help"
)

const handlerTimeout = 10 * time.Second

// Accounts links chats to accounts.
type Accounts interface {
	// LinkChat consumes a one-time code and binds chatID to its owner.
	// An unknown or expired code yields domain.ErrNotFound.
	LinkChat(ctx context.Context, code string, chatID int64) (*domain.User, error)
	FindByChat(ctx context.Context, chatID int64) (*domain.User, error)
}

// Bot is the companion bot users talk to when linking notifications.
type Bot struct {
	client   *Client
	router   *Router
	accounts Accounts
	tr       i18n.Translator
	appURL   string
	log      *slog.Logger
}

// NewBot wires command handlers onto client.
func NewBot(client *Client, accounts Accounts, tr i18n.Translator, appURL string, errHandler *apperrors.Handler, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}

	b := &Bot{
		client:   client,
		router:   NewRouter(log),
		accounts: accounts,
		tr:       tr,
		appURL:   appURL,
		log:      log.With("component", "bot"),
	}

	b.router.Use(RecoveryMiddleware(b.log, errHandler))
	b.router.Use(ErrorHandlingMiddleware(errHandler))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(MetricsMiddleware)

	b.router.RegisterCommand(CommandStart, b.handleStart)
	b.router.RegisterCommand(CommandStatus, b.handleStatus)
	b.router.RegisterCommand(CommandHelp, b.handleHelp)
	b.router.SetDefault(b.handleHelp)

	client.bot.Handle(telebot.OnText, b.router.Route)

	return b
}

// Start runs the long-polling loop until Stop is called.
func (b *Bot) Start() {
	b.log.Info("telegram bot polling started")
	b.client.bot.Start()
}

// Stop stops polling.
func (b *Bot) Stop() {
	b.log.Info("stopping telegram bot...")
	b.client.bot.Stop()
}

// Route handles one update. It is exposed for webhooks and tests.
func (b *Bot) Route(c telebot.Context) error {
	return b.router.Route(c)
}

func (b *Bot) handleStart(c telebot.Context) error {
	code := commandPayload(c.Text())
	if code == "" {
		return b.handleHelp(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	user, err := b.accounts.LinkChat(ctx, code, c.Chat().ID)
	if errors.Is(err, domain.ErrNotFound) {
		return c.Send(b.tr.T("bot.link_invalid"))
	}
	if err != nil {
		return err
	}

	b.log.Info("chat linked", slog.Int64("user_id", user.ID), slog.Int64("chat_id", c.Chat().ID))
	return b.sendWithApp(c, b.tr.T("bot.linked"))
}

func (b *Bot) handleStatus(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	user, err := b.accounts.FindByChat(ctx, c.Chat().ID)
	if errors.Is(err, domain.ErrNotFound) {
		return b.sendWithApp(c, b.tr.T("bot.status_unlinked"))
	}
	if err != nil {
		return err
	}

	return c.Send(b.tr.Format("bot.status_linked", map[string]string{"email": user.Email}))
}

func (b *Bot) handleHelp(c telebot.Context) error {
	return b.sendWithApp(c, b.tr.T("bot.start"))
}

// sendWithApp attaches an "open app" button when the web app URL is configured.
func (b *Bot) sendWithApp(c telebot.Context, text string) error {
	if b.appURL == "" {
		return c.Send(text)
	}

	markup := NewInlineKeyboard().
		AddRow(InlineButton{Text: b.tr.T("bot.open_app"), URL: b.appURL}).
		Markup()
	return c.Send(text, markup)
}

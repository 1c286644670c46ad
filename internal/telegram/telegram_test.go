package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/flowkat/internal/domain"
	"github.com/Proton-105/flowkat/internal/i18n"
	"github.com/Proton-105/flowkat/pkg/config"
)

const testToken = "123456:test-token"

type apiMessage struct {
	ChatID string
	Text   string
	Markup string
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []apiMessage
	failChat string
	getMe    int
}

func (f *fakeAPI) messages() []apiMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiMessage(nil), f.sent...)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !strings.HasPrefix(r.URL.Path, "/bot"+testToken+"/") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
		return
	}

	var params map[string]any
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		f.getMe++
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"FlowKat","username":"flowkat_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		chatID := fmt.Sprint(params["chat_id"])
		if chatID == f.failChat {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
			return
		}
		msg := apiMessage{ChatID: chatID, Text: fmt.Sprint(params["text"])}
		if markup, ok := params["reply_markup"]; ok {
			msg.Markup = fmt.Sprint(markup)
		}
		f.sent = append(f.sent, msg)
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":%s,"type":"private"}}}`, len(f.sent), chatID)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T) (*Client, *fakeAPI, *httptest.Server) {
	t.Helper()

	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.TelegramConfig{
		Token:       testToken,
		APIURL:      srv.URL,
		SendTimeout: 2 * time.Second,
	}, testLogger())
	require.NoError(t, err)

	return client, api, srv
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(config.TelegramConfig{}, testLogger())
	require.Error(t, err)
}

func TestClientSend(t *testing.T) {
	client, api, _ := newTestClient(t)

	require.NoError(t, client.Send(context.Background(), 42, "hello"))

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].ChatID)
	assert.Equal(t, "hello", msgs[0].Text)
}

func TestClientSendAPIError(t *testing.T) {
	client, api, _ := newTestClient(t)
	api.failChat = "7"

	err := client.Send(context.Background(), 7, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 7")
	assert.Empty(t, api.messages())
}

func TestClientSendCanceledContext(t *testing.T) {
	client, api, _ := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Send(ctx, 42, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.messages())
}

func TestClientHealthCheck(t *testing.T) {
	client, api, srv := newTestClient(t)

	require.NoError(t, client.HealthCheck(context.Background()))
	assert.Equal(t, 1, api.getMe)

	srv.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

type fakeAccounts struct {
	codes  map[string]*domain.User
	chats  map[int64]*domain.User
	err    error
	linked map[int64]int64
}

func (f *fakeAccounts) LinkChat(_ context.Context, code string, chatID int64) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.codes[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(f.codes, code)
	if f.linked == nil {
		f.linked = make(map[int64]int64)
	}
	f.linked[user.ID] = chatID
	return user, nil
}

func (f *fakeAccounts) FindByChat(_ context.Context, chatID int64) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.chats[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func newTestBot(t *testing.T, accounts Accounts, appURL string) (*Bot, *Client, *fakeAPI) {
	t.Helper()

	client, api, _ := newTestClient(t)
	manager, err := i18n.Load("ru")
	require.NoError(t, err)

	return NewBot(client, accounts, manager.Translator("ru"), appURL, nil, testLogger()), client, api
}

func textUpdate(client *Client, chatID int64, text string) telebot.Context {
	return client.bot.NewContext(telebot.Update{
		Message: &telebot.Message{
			Text:   text,
			Chat:   &telebot.Chat{ID: chatID, Type: telebot.ChatPrivate},
			Sender: &telebot.User{ID: chatID},
		},
	})
}

func TestBotStartLinksChat(t *testing.T) {
	accounts := &fakeAccounts{codes: map[string]*domain.User{"abc123": {ID: 5, Email: "a@example.com"}}}
	bot, client, api := newTestBot(t, accounts, "https://flowkat.app")

	require.NoError(t, bot.Route(textUpdate(client, 42, "/start abc123")))

	assert.Equal(t, int64(42), accounts.linked[5])
	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Telegram подключён")
	assert.Contains(t, msgs[0].Markup, "https://flowkat.app")

	// the code is single use
	require.NoError(t, bot.Route(textUpdate(client, 42, "/start@flowkat_bot abc123")))
	msgs = api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "не найден или устарел")
}

func TestBotStartWithoutCode(t *testing.T) {
	bot, client, api := newTestBot(t, &fakeAccounts{}, "")

	require.NoError(t, bot.Route(textUpdate(client, 42, "/start")))

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Подключить Telegram")
	assert.Empty(t, msgs[0].Markup)
}

func TestBotStatus(t *testing.T) {
	accounts := &fakeAccounts{chats: map[int64]*domain.User{42: {ID: 5, Email: "a@example.com"}}}
	bot, client, api := newTestBot(t, accounts, "")

	require.NoError(t, bot.Route(textUpdate(client, 42, "/status")))
	require.NoError(t, bot.Route(textUpdate(client, 43, "/STATUS")))

	msgs := api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "a@example.com")
	assert.Equal(t, "43", msgs[1].ChatID)
	assert.Contains(t, msgs[1].Text, "ещё не подключён")
}

func TestBotRepliesWithFallbackOnError(t *testing.T) {
	accounts := &fakeAccounts{err: errors.New("connection reset")}
	bot, client, api := newTestBot(t, accounts, "")

	require.NoError(t, bot.Route(textUpdate(client, 42, "/start abc")))

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, fallbackReply, msgs[0].Text)
}

func TestBotUnknownTextGetsHelp(t *testing.T) {
	bot, client, api := newTestBot(t, &fakeAccounts{}, "")

	require.NoError(t, bot.Route(textUpdate(client, 42, "hello there")))

	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Я бот FlowKat")
}

func TestCommandParsing(t *testing.T) {
	tests := []struct {
		text    string
		command string
		payload string
	}{
		{text: "/start", command: "/start"},
		{text: "/start abc", command: "/start", payload: "abc"},
		{text: "/Start@flowkat_bot  abc ", command: "/start", payload: "abc"},
		{text: "hello", command: "", payload: ""},
		{text: "", command: ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.command, commandName(tt.text))
			if strings.HasPrefix(tt.text, "/") {
				assert.Equal(t, tt.payload, commandPayload(tt.text))
			}
		})
	}
}

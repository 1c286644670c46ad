package telegram

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"
)

// Handler processes one update.
type Handler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Router dispatches text updates to command handlers.
type Router struct {
	mu             sync.RWMutex
	commands       map[string]Handler
	defaultHandler Handler
	middlewares    []Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with an empty registry.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands: make(map[string]Handler),
		log:      log,
	}
}

// RegisterCommand registers a handler for a bot command such as "/start".
func (r *Router) RegisterCommand(cmd string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// Use appends a middleware to the chain. The first one registered runs outermost.
func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the fallback handler for text that is not a known command.
func (r *Router) SetDefault(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route directs the incoming update to the matching handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	r.mu.RLock()
	handler := r.commands[commandName(c.Text())]
	if handler == nil {
		handler = r.defaultHandler
	}
	middlewares := append([]Middleware(nil), r.middlewares...)
	r.mu.RUnlock()

	if handler == nil {
		r.log.Debug("no handler for update", slog.String("text", c.Text()))
		return nil
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	return handler(c)
}

// commandName extracts "/start" from "/start@FlowKatBot payload".
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name)
}

// commandPayload returns the text following the command.
func commandPayload(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Proton-105/flowkat/internal/auth"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/middleware"
)

type credentials struct {
	Action   string `json:"action"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	a.doRegister(w, r, in)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	a.doLogin(w, r, in)
}

// authAction serves the single-endpoint form {"action": "register"|"login", ...}.
func (a *api) authAction(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}

	switch in.Action {
	case "register":
		a.doRegister(w, r, in)
	case "login":
		a.doLogin(w, r, in)
	default:
		a.fail(w, r, apperrors.NewValidationError("Неизвестное действие"))
	}
}

func (a *api) doRegister(w http.ResponseWriter, r *http.Request, in credentials) {
	session, err := a.Auth.Register(r.Context(), auth.RegisterInput{Email: in.Email, Password: in.Password, Name: in.Name})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, session)
}

func (a *api) doLogin(w http.ResponseWriter, r *http.Request, in credentials) {
	session, err := a.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, session)
}

// telegramLogin accepts the widget payload. Values may arrive as strings or numbers.
func (a *api) telegramLogin(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		a.fail(w, r, apperrors.NewValidationError("Недостаточно данных от Telegram"))
		return
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		default:
			fields[k] = fmt.Sprint(val)
		}
	}

	session, err := a.Auth.Telegram(r.Context(), fields)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, session)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.Auth.Me(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"user": user.ToProfile()})
}

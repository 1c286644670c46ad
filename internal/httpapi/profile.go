package httpapi

import (
	"net/http"

	"github.com/Proton-105/flowkat/internal/middleware"
	"github.com/Proton-105/flowkat/internal/profile"
)

func (a *api) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.Profiles.Get(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

func (a *api) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in profile.UpdateInput
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}

	p, err := a.Profiles.Update(r.Context(), userID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

func (a *api) telegramLink(w http.ResponseWriter, r *http.Request) {
	code, err := a.Profiles.IssueLinkCode(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, code)
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/Proton-105/flowkat/internal/entry"
	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/middleware"
)

func (a *api) listEntries(w http.ResponseWriter, r *http.Request) {
	res, err := a.Entries.List(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (a *api) saveEntry(w http.ResponseWriter, r *http.Request) {
	var in entry.Input
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}

	view, err := a.Entries.Save(r.Context(), userID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, view)
}

// deleteEntry takes the id from the path or from ?id=.
func (a *api) deleteEntry(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		a.fail(w, r, apperrors.NewValidationError("Не указан ID записи"))
		return
	}

	if err := a.Entries.Delete(r.Context(), userID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

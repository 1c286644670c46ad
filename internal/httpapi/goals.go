package httpapi

import (
	"net/http"

	"github.com/Proton-105/flowkat/internal/goal"
	"github.com/Proton-105/flowkat/internal/middleware"
)

func (a *api) getGoal(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	month, err := queryInt(r, "month")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	view, err := a.Goals.Get(r.Context(), userID(r), year, month)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (a *api) saveGoal(w http.ResponseWriter, r *http.Request) {
	var in goal.Input
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}

	view, err := a.Goals.Save(r.Context(), userID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

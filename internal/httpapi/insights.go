package httpapi

import (
	"net/http"

	"github.com/Proton-105/flowkat/internal/middleware"
)

func (a *api) analyze(w http.ResponseWriter, r *http.Request) {
	res, err := a.Insights.Analyze(r.Context(), userID(r), r.URL.Query().Get("provider"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (a *api) latestInsight(w http.ResponseWriter, r *http.Request) {
	res, err := a.Insights.Latest(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
	"github.com/Proton-105/flowkat/internal/middleware"
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError("Некорректный JSON")
	}
	return nil
}

func userID(r *http.Request) int64 {
	id, _ := middleware.UserID(r.Context())
	return id
}

// queryInt parses an optional integer query parameter; absent yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("Некорректный параметр " + name)
	}
	return v, nil
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.Errors.Write(r.Context(), w, err)
}

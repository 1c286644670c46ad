// Package middleware holds the HTTP middleware chain shared by the API routes.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/Proton-105/flowkat/internal/errors"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// ErrorWriter turns errors into JSON responses through the shared error handler.
type ErrorWriter struct {
	handler *apperrors.Handler
}

// NewErrorWriter wraps h.
func NewErrorWriter(h *apperrors.Handler) *ErrorWriter {
	return &ErrorWriter{handler: h}
}

// Write logs err and responds with its user-facing message.
func (e *ErrorWriter) Write(ctx context.Context, w http.ResponseWriter, err error) {
	msg, status := e.handler.Handle(ctx, err)
	WriteError(w, status, msg)
}

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

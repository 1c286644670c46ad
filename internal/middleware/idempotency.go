package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Proton-105/flowkat/internal/idempotency"
)

// IdempotencyHeader is the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// Idempotency replays the stored response of a repeated POST carrying an
// Idempotency-Key. Requests without the header, or unauthenticated ones, pass through.
func Idempotency(manager idempotency.Manager, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyHeader)
			userID, authed := UserID(r.Context())
			if clientKey == "" || !authed || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := idempotency.Key(userID, r.Method, r.URL.Path, clientKey)

			var recorder *bufferedResponse
			result, err := manager.Execute(r.Context(), key, idempotency.DefaultTTL, func(ctx context.Context) (*idempotency.Record, error) {
				recorder = newBufferedResponse()
				next.ServeHTTP(recorder, r.WithContext(ctx))
				return &idempotency.Record{
					StatusCode:  recorder.status,
					ContentType: recorder.header.Get("Content-Type"),
					Body:        recorder.body.Bytes(),
				}, nil
			})
			switch {
			case errors.Is(err, idempotency.ErrRequestInProgress):
				WriteError(w, http.StatusConflict, "Запрос уже обрабатывается")
				return
			case err != nil:
				log.Warn("idempotency store unavailable", slog.Any("error", err))
				if recorder == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			if recorder != nil {
				recorder.flush(w)
				return
			}

			rec := result.Record
			if rec.ContentType != "" {
				w.Header().Set("Content-Type", rec.ContentType)
			}
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
		})
	}
}

// bufferedResponse holds a handler's response until the idempotency record
// has been stored.
type bufferedResponse struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for k, values := range b.header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(b.status)
	_, _ = b.body.WriteTo(w)
}

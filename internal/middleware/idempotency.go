package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// IdempotencyHeader names the client-supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// maxKeyLength bounds Idempotency-Key values.
const maxKeyLength = 255

// IdempotencyStore persists responses by (scope, key). Reserve places an
// in-flight marker that Complete fills in or Release drops.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key, hash string) (existing domain.StoredResponse, reserved bool, err error)
	Complete(ctx context.Context, resp domain.StoredResponse) error
	Release(ctx context.Context, scope, key string) error
}

// NewIdempotency replays the stored response when a POST arrives with an
// Idempotency-Key already seen on the same path. Requests without the header
// pass through. Only responses below 500 are remembered, so transient
// failures can be retried with the same key.
//
// Reusing a key with a different body is rejected with 422. A second request
// arriving while the first still runs gets 409 idempotency_in_progress.
// Wire it after NewMaxBodySizeHandler so the buffered body is bounded.
func NewIdempotency(store IdempotencyStore, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				writeError(w, http.StatusBadRequest, "invalid_request", "Idempotency-Key must be at most 255 characters")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			scope := r.Method + " " + r.URL.Path

			existing, reserved, err := store.Reserve(r.Context(), scope, key, hash)
			if err != nil {
				// Fail open: the workflow below is itself idempotent per key.
				log.WarnContext(r.Context(), "idempotency reserve failed", "scope", scope, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				replay(w, r, log, existing, hash)
				return
			}

			saveCtx := context.WithoutCancel(r.Context())
			completed := false
			// Runs on panics too, so a crashed handler never pins the key.
			defer func() {
				if completed {
					return
				}
				if err := store.Release(saveCtx, scope, key); err != nil {
					log.WarnContext(saveCtx, "idempotency release failed", "scope", scope, "err", err)
				}
			}()

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				return
			}
			err = store.Complete(saveCtx, domain.StoredResponse{
				Scope:       scope,
				Key:         key,
				RequestHash: hash,
				Status:      rec.status,
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				log.WarnContext(saveCtx, "idempotency save failed", "scope", scope, "err", err)
				return
			}
			completed = true
		})
	}
}

// replay answers a request whose key is already held or completed.
func replay(w http.ResponseWriter, r *http.Request, log *slog.Logger, existing domain.StoredResponse, hash string) {
	switch {
	case existing.RequestHash != hash:
		writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused",
			"Idempotency-Key was already used with a different request body")
	case existing.Pending():
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "idempotency_in_progress",
			"a request with this Idempotency-Key is still being processed")
	default:
		log.InfoContext(r.Context(), "idempotent replay", "scope", existing.Scope, "idempotency_key", existing.Key)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(existing.Status)
		_, _ = w.Write(existing.Body)
	}
}

// recordingWriter tees the response so it can be stored after the handler
// returns.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

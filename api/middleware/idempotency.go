package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	orderIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL         = 2 * time.Minute
	idempotencyHeader   = "Idempotency-Key"
	replayedHeader      = "Idempotent-Replayed"
)

// Only order placement can create a duplicate on client retry; every other
// write is naturally idempotent.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/order/place":  orderIdempotencyTTL,
	http.MethodPost + " /api/order/stripe": orderIdempotencyTTL,
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	ttl, ok := idempotentRoutes[method+" "+pattern]
	return ttl, ok
}

// idempotencyRecord is stored under the key. While the first request runs it
// holds a claim (Claim set); afterwards the captured response.
type idempotencyRecord struct {
	Claim       string `json:"claim,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the stored response when a client retries an order
// placement with the same Idempotency-Key and body. The key is scoped to the
// caller and path. Server errors are not stored so the retry runs again.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := base64.RawStdEncoding.EncodeToString(sum[:])
			key := store.IdempotencyKey(scopeOf(r), clientKey)
			claim := mustJSON(idempotencyRecord{Claim: uuid.NewString(), RequestHash: hash})

			won, err := store.SetNX(ctx, key, claim, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !won {
				replay(ctx, store, key, hash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.code() >= http.StatusInternalServerError {
				if _, err := store.DeleteIfValue(ctx, key, claim); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency claim", err)
				}
				return
			}
			stored := mustJSON(idempotencyRecord{
				RequestHash: hash,
				Status:      capture.code(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			swapped, err := store.SwapIfValue(ctx, key, claim, stored, ttl)
			switch {
			case err != nil && logg != nil:
				logg.Error(ctx, "store idempotent response", err)
			case !swapped && logg != nil:
				logg.Warn(ctx, "idempotency claim expired before the response was stored")
			}
		})
	}
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, found, err := store.Lookup(ctx, key)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var record idempotencyRecord
	if found {
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
			return
		}
	}
	switch {
	case found && record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case !found || record.Claim != "":
		// a claim that vanished between SetNX and Lookup was just released
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

func scopeOf(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func mustJSON(record idempotencyRecord) string {
	raw, _ := json.Marshal(record)
	return string(raw)
}

// responseCapture tees the response so it can be stored after the handler
// returns.
type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) code() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

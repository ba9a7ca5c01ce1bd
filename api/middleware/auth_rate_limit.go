package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// credentials bodies are tiny; anything larger is not worth peeking at
const maxPeekBody = 16 << 10

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// AuthRateLimitPolicy throttles one credential surface (login, register)
// per client IP and per submitted email within a fixed window.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

type rateCheck struct {
	scope string
	key   string
	limit int
	field string
	value string
}

// AuthRateLimit counts attempts in Redis and answers 429 with Retry-After
// once a counter passes its limit. A failing store lets the request through:
// a Redis outage must not lock customers out of checkout.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var checks []rateCheck
			if ip := clientIP(r); policy.ipLimit > 0 && ip != "" {
				checks = append(checks, rateCheck{
					scope: "ip",
					key:   "rl:" + policy.name + ":ip:" + ip,
					limit: policy.ipLimit,
					field: "ip",
					value: ip,
				})
			}
			if policy.emailLimit > 0 {
				if hash := peekEmailHash(r); hash != "" {
					checks = append(checks, rateCheck{
						scope: "email",
						key:   "rl:" + policy.name + ":email:" + hash,
						limit: policy.emailLimit,
						field: "email_hash",
						value: hash,
					})
				}
			}

			for _, check := range checks {
				count, err := store.IncrWithTTL(ctx, check.key, policy.window)
				if err != nil {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy": policy.name,
							"scope":  check.scope,
							"error":  err.Error(),
						}), "auth.rate_limit.store_unavailable")
					}
					break
				}
				if count > int64(check.limit) {
					policy.reject(ctx, logg, w, check, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (p AuthRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, check rateCheck, count int64) {
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"policy":         p.name,
			"scope":          check.scope,
			check.field:      check.value,
			"attempts":       count,
			"limit":          check.limit,
			"window_seconds": int(p.window.Seconds()),
		})
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
		WithDetails(map[string]any{"scope": check.scope}))
}

// peekEmailHash reads the JSON body, restores it for the handler and returns
// the sha256 of the normalized email, or "" when there is none.
func peekEmailHash(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

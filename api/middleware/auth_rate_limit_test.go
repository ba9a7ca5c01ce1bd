package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func loginRequest(email, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/user/login",
		strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = remote
	return req
}

func TestAuthRateLimitPreservesBodyUnderLimit(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 2, 2)
	handler := AuthRateLimit(policy, newFakeRateStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `"email":"ana@example.com"`)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("ana@example.com", "1.2.3.4:5678"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitEmailLimitIgnoresCase(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 2)
	handler := AuthRateLimit(policy, newFakeRateStore(), nil)(okHandler())

	emails := []string{"ana@example.com", "ANA@example.com", " ana@example.com"}
	var last *httptest.ResponseRecorder
	for i, email := range emails {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, loginRequest(email, "1.2.3.4:5678"))
		if i < 2 {
			require.Equal(t, http.StatusOK, last.Code)
		}
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.Equal(t, "60", last.Header().Get("Retry-After"))
	var payload struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, string(pkgerrors.CodeRateLimit), payload.Code)
}

func TestAuthRateLimitIPLimitUsesForwardedFor(t *testing.T) {
	policy := NewAuthRateLimitPolicy("register", time.Minute, 1, 0)
	handler := AuthRateLimit(policy, newFakeRateStore(), nil)(okHandler())

	codes := make([]int, 0, 2)
	for _, email := range []string{"a@example.com", "b@example.com"} {
		req := loginRequest(email, "10.0.0.1:1234")
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAuthRateLimitFailsOpenWhenStoreErrors(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("connection refused")
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 1)
	handler := AuthRateLimit(policy, store, nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("ana@example.com", "1.2.3.4:5678"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newFakeRateStore()
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", 0, 1, 1), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("ana@example.com", "1.2.3.4:5678"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, store.counts)
}

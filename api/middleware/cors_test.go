package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func preflight(t *testing.T, app config.AppConfig, origin string) *httptest.ResponseRecorder {
	t.Helper()
	h := CORS(app)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/order/place", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", idempotencyHeader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	app := config.AppConfig{Env: config.AppEnvProd, FrontendURL: "https://shop.example"}

	rec := preflight(t, app, "https://shop.example")
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight(t, app, "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSLocalhostOnlyOutsideProd(t *testing.T) {
	local := "http://localhost:5173"

	rec := preflight(t, config.AppConfig{Env: "dev", FrontendURL: "https://shop.example"}, local)
	assert.Equal(t, local, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight(t, config.AppConfig{Env: config.AppEnvProd, FrontendURL: "https://shop.example"}, local)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

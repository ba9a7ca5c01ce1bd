package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// devOrigins are accepted on top of the configured list outside production
// so a local storefront build can talk to a shared API.
var devOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// CORS allows the storefront origins from app config. Preflight answers are
// cached for five minutes.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	origins := app.AllowedOrigins()
	if !app.IsProd() {
		origins = slices.Concat(origins, devOrigins)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

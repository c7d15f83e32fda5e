package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS returns middleware that answers preflight requests and sets CORS
// headers for the allowed origins. If allowedOrigins is empty, all origins
// are allowed.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		MaxAge:         86400,
	})
	return c.Handler
}

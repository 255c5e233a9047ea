package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/hris-leave-go/internal/handler/http/response"
)

// AdminOnly lets through requests whose gateway-asserted role is admin.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			response.Forbidden(w, "Admin privilege required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

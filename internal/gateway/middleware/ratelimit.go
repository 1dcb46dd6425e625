package middleware

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies one token bucket to every request
func RateLimitMiddleware(r int, burst int) func(http.HandlerFunc) http.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(r), burst)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, r, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next(w, r)
		}
	}
}

// errorBody mirrors the handler envelope so middleware rejections look the
// same as handler errors
type errorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	httpx.WriteJson(w, status, errorBody{
		Code:      status,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

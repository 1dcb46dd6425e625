package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id in both directions
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128
)

// RequestIDMiddleware reuses the caller's request id or assigns a UUIDv7
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			id, err := uuid.NewV7()
			if err != nil {
				requestID = uuid.NewString()
			} else {
				requestID = id.String()
			}
		}

		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(requestIDToContext(r.Context(), requestID))

		next(w, r)
	}
}

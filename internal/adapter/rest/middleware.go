package rest

import (
	"context"
	"net/http"
)

type contextKey string

const userIDKey contextKey = "userID"

// authMiddleware validates the shared Authorization token. An empty configured
// token disables the check (local development).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") != s.authToken {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireUser extracts the caller's identity from the X-User-ID header and
// stores it on the request context. Every /api route is user-scoped.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing X-User-ID header", nil)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}

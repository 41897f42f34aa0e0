package server

import (
	"context"
	"net/http"
)

// userIDKey is the context key for the caller's user ID.
type userIDKey struct{}

// UserIDMiddleware propagates the caller's identity from the X-User-ID header
// into the request context. Authentication itself happens upstream; this
// service only needs the ID to partition transcripts per user. Requests
// without the header proceed anonymously.
func UserIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		AddLogField(ctx, "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID retrieves the caller's user ID from context. Returns an empty
// string for anonymous requests.
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey{}).(string); ok {
		return userID
	}
	return ""
}

package httpx

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const credentialKey ctxKey = 0

// BearerAuth extracts the opaque bearer token; resolusi ke user dilakukan
// oleh order engine, bukan di sini.
func BearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		ctx := context.WithValue(r.Context(), credentialKey, strings.TrimSpace(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func credential(r *http.Request) string {
	v, _ := r.Context().Value(credentialKey).(string)
	return v
}

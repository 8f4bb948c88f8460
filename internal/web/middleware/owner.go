package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// OwnerHeader is set by the upstream auth gateway to the authenticated user.
const OwnerHeader = "X-Owner-ID"

type ownerKey struct{}

// RequireOwner rejects requests without an owner identity and stores the
// owner on the request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing owner identity", "AUTH_MISSING_OWNER")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

// OwnerFromContext returns the owner stored by RequireOwner.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const (
	headerAPIKey   = "api_key"
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	// scopeAdmin allows a key to act with the admin role.
	scopeAdmin = "admin"
)

// Authenticate checks the API key of the calling upstream and stores the end
// user identity it asserts in the request context.
//
// Keys are stored as HMAC-SHA256 hashes; the stored hash is compared in
// constant time after lookup.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerAPIKey)
		if key == "" {
			unauthorized(w)
			return
		}
		hash := auth.HashKey(h.pepper, key)
		info, err := h.apikeys.FindByHash(r.Context(), hash)
		if err != nil {
			unauthorized(w)
			return
		}
		computed, _ := hex.DecodeString(hash)
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
			unauthorized(w)
			return
		}

		id := auth.Identity{
			UserID: r.Header.Get(headerUserID),
			Role:   auth.Role(r.Header.Get(headerUserRole)),
		}
		if id.UserID == "" {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "authorization", "user identity is required")
			return
		}
		switch id.Role {
		case "":
			id.Role = auth.RoleUser
		case auth.RoleUser:
		case auth.RoleAdmin:
			if !info.HasScope(scopeAdmin) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "authorization", "api key may not act as admin")
				return
			}
		default:
			httpmiddleware.WriteError(w, http.StatusBadRequest, "validation", "unknown role")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := auth.FromContext(r.Context()); !ok || !id.IsAdmin() {
			httpmiddleware.WriteError(w, http.StatusForbidden, "authorization", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	httpmiddleware.WriteError(w, http.StatusUnauthorized, "authorization", "invalid api key")
}

// Package auth gates the HTTP surface: API-key roles, CORS, IP whitelist,
// per-key rate limiting and HMAC-signed end-user identities.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"hearth/pkg/config"
	"hearth/pkg/logger"
	"hearth/pkg/utils"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Shared here so
// limiter.go and gateway.go reference one type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

type ctxIdentityKey struct{}

// RequireSignedIdentity verifies HMAC signature headers and injects the
// verified user id into the request context. Frontend callers must present
// X-Identity plus X-Identity-Signature; backend/admin callers may omit the
// signature entirely.
func RequireSignedIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role-Name")
		userID := strings.TrimSpace(r.Header.Get("X-Identity"))
		sig := strings.TrimSpace(r.Header.Get("X-Identity-Signature"))

		// Backend/admin callers are trusted to assert identities. A
		// signature, when present, is still verified below.
		if role == "backend" || role == "admin" {
			if sig == "" {
				next.ServeHTTP(w, r)
				return
			}
		}

		if sig == "" || userID == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}

		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		ok := false
		for k := range keys {
			mac := hmac.New(sha256.New, []byte(k))
			mac.Write([]byte(userID))
			expected := hex.EncodeToString(mac.Sum(nil))
			if hmac.Equal([]byte(expected), []byte(sig)) {
				ok = true
				break
			}
		}
		if !ok {
			logger.Warn("invalid_signature", "user", userID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		logger.Debug("signature_verified", "user", userID)
		ctx := context.WithValue(r.Context(), ctxIdentityKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the signature-verified user id or "".
func IdentityFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxIdentityKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func validIdentity(id string) (bool, string) {
	if id == "" {
		return false, "identity required"
	}
	if len(id) > 128 {
		return false, "identity too long"
	}
	return true, ""
}

// ResolveIdentity is the canonical resolver handlers call. A verified
// identity from the signature middleware is authoritative; a conflicting
// header or body identity is rejected. Without a signature, backend/admin
// roles may assert an identity via body or the X-Identity header.
func ResolveIdentity(r *http.Request, bodyUser string) (string, int, string) {
	if id := IdentityFromContext(r.Context()); id != "" {
		if h := strings.TrimSpace(r.Header.Get("X-Identity")); h != "" && h != id {
			logger.Warn("identity_mismatch_header", "signature", id, "header", h, "path", r.URL.Path)
			return "", http.StatusForbidden, "identity mismatch between signature and header"
		}
		if bodyUser != "" && bodyUser != id {
			logger.Warn("identity_mismatch_body", "signature", id, "body", bodyUser, "path", r.URL.Path)
			return "", http.StatusForbidden, "identity mismatch between signature and body"
		}
		return id, 0, ""
	}

	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		if bodyUser != "" {
			if ok, msg := validIdentity(bodyUser); !ok {
				return "", http.StatusBadRequest, msg
			}
			return bodyUser, 0, ""
		}
		if h := strings.TrimSpace(r.Header.Get("X-Identity")); h != "" {
			if ok, msg := validIdentity(h); !ok {
				return "", http.StatusBadRequest, msg
			}
			return h, 0, ""
		}
		return "", http.StatusBadRequest, "identity required for backend requests"
	}

	logger.Warn("missing_identity_signature", "role", role, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid identity signature"
}

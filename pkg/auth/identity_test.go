package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"hearth/pkg/config"
)

func signIdentity(key, userID string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

func withSigningKeys(t *testing.T, keys ...string) {
	t.Helper()
	set := map[string]struct{}{}
	for _, k := range keys {
		set[k] = struct{}{}
	}
	config.SetRuntime(&config.RuntimeConfig{SigningKeys: set})
	t.Cleanup(func() { config.SetRuntime(nil) })
}

func TestRequireSignedIdentityVerifies(t *testing.T) {
	withSigningKeys(t, "secret-1")

	var gotUser string
	h := RequireSignedIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/reactions", nil)
	req.Header.Set("X-Role-Name", "frontend")
	req.Header.Set("X-Identity", "grandma")
	req.Header.Set("X-Identity-Signature", signIdentity("secret-1", "grandma"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUser != "grandma" {
		t.Fatalf("context identity: %q", gotUser)
	}
}

func TestRequireSignedIdentityRejects(t *testing.T) {
	withSigningKeys(t, "secret-1")
	h := RequireSignedIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// Bad signature.
	req := httptest.NewRequest(http.MethodPost, "/v1/reactions", nil)
	req.Header.Set("X-Role-Name", "frontend")
	req.Header.Set("X-Identity", "grandma")
	req.Header.Set("X-Identity-Signature", "deadbeef")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: expected 401, got %d", rr.Code)
	}

	// Missing headers from a frontend caller.
	req = httptest.NewRequest(http.MethodPost, "/v1/reactions", nil)
	req.Header.Set("X-Role-Name", "frontend")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing headers: expected 401, got %d", rr.Code)
	}
}

func TestRequireSignedIdentityBackendBypass(t *testing.T) {
	withSigningKeys(t, "secret-1")
	called := false
	h := RequireSignedIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/reactions", nil)
	req.Header.Set("X-Role-Name", "backend")
	req.Header.Set("X-Identity", "grandma")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !called {
		t.Fatalf("backend without signature should pass, got %d", rr.Code)
	}
}

func TestResolveIdentity(t *testing.T) {
	withSigningKeys(t, "secret-1")

	verified := RequireSignedIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verified identity is authoritative.
		id, code, _ := ResolveIdentity(r, "")
		if code != 0 || id != "grandma" {
			t.Errorf("verified resolve: id=%q code=%d", id, code)
		}
		// Conflicting body identity is rejected.
		if _, code, _ := ResolveIdentity(r, "uncle"); code != http.StatusForbidden {
			t.Errorf("conflicting body: expected 403, got %d", code)
		}
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/reactions", nil)
	req.Header.Set("X-Role-Name", "frontend")
	req.Header.Set("X-Identity", "grandma")
	req.Header.Set("X-Identity-Signature", signIdentity("secret-1", "grandma"))
	verified.ServeHTTP(httptest.NewRecorder(), req)

	// Backend asserts via body.
	req = httptest.NewRequest(http.MethodPost, "/v1/reactions", nil)
	req.Header.Set("X-Role-Name", "backend")
	if id, code, _ := ResolveIdentity(req, "uncle"); code != 0 || id != "uncle" {
		t.Fatalf("backend body assert: id=%q code=%d", id, code)
	}
	// Backend without any identity is a bad request.
	if _, code, _ := ResolveIdentity(req, ""); code != http.StatusBadRequest {
		t.Fatalf("backend without identity: expected 400, got %d", code)
	}
	// Frontend without a verified signature is unauthorized.
	req = httptest.NewRequest(http.MethodPost, "/v1/reactions", nil)
	req.Header.Set("X-Role-Name", "frontend")
	if _, code, _ := ResolveIdentity(req, "grandma"); code != http.StatusUnauthorized {
		t.Fatalf("frontend unsigned: expected 401, got %d", code)
	}
}

func TestGatewayRoleResolution(t *testing.T) {
	cfg := SecConfig{
		BackendKeys:  map[string]struct{}{"bk": {}},
		FrontendKeys: map[string]struct{}{"fk": {}},
		AdminKeys:    map[string]struct{}{"ak": {}},
		RPS:          100, Burst: 100,
	}
	var gotRole string
	h := AuthenticateRequestMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = r.Header.Get("X-Role-Name")
	}))

	cases := []struct {
		key      string
		wantCode int
		wantRole string
		path     string
	}{
		{"bk", http.StatusOK, "backend", "/v1/reactions"},
		{"fk", http.StatusOK, "frontend", "/v1/reactions"},
		{"ak", http.StatusOK, "admin", "/v1/reactions"},
		{"nope", http.StatusUnauthorized, "", "/v1/reactions"},
		{"", http.StatusUnauthorized, "", "/v1/reactions"},
		// Frontend keys cannot reach the recompute surface.
		{"fk", http.StatusForbidden, "", "/v1/posts/p1/warmth/recompute"},
	}
	for _, tc := range cases {
		gotRole = ""
		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		if tc.key != "" {
			req.Header.Set("X-API-Key", tc.key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.wantCode {
			t.Fatalf("key %q path %s: expected %d, got %d", tc.key, tc.path, tc.wantCode, rr.Code)
		}
		if tc.wantRole != "" && gotRole != tc.wantRole {
			t.Fatalf("key %q: expected role %q, got %q", tc.key, tc.wantRole, gotRole)
		}
	}
}

func TestGatewayHealthBypass(t *testing.T) {
	cfg := SecConfig{BackendKeys: map[string]struct{}{}, FrontendKeys: map[string]struct{}{}}
	h := AuthenticateRequestMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("health probe should bypass auth, got %d", rr.Code)
	}
}

func TestGatewayCORSPreflight(t *testing.T) {
	cfg := SecConfig{AllowedOrigins: []string{"https://app.example.com"}}
	h := AuthenticateRequestMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/reactions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("allow-origin header missing")
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/reactions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disallowed origin must not be echoed")
	}
}

func TestGatewayRateLimit(t *testing.T) {
	cfg := SecConfig{
		BackendKeys: map[string]struct{}{"bk": {}},
		RPS:         0.001, Burst: 1,
	}
	h := AuthenticateRequestMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/v1/reactions?post=p1", nil)
		req.Header.Set("X-API-Key", "bk")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rr.Code)
		}
	}
}

func TestGatewayIPWhitelist(t *testing.T) {
	cfg := SecConfig{
		IPWhitelist: []string{"10.1.1.1"},
		BackendKeys: map[string]struct{}{"bk": {}},
	}
	h := AuthenticateRequestMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/reactions?post=p1", nil)
	req.RemoteAddr = "192.168.0.9:55555"
	req.Header.Set("X-API-Key", "bk")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-whitelisted ip: expected 403, got %d", rr.Code)
	}

	req.RemoteAddr = "10.1.1.1:55555"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("whitelisted ip: expected 200, got %d", rr.Code)
	}
}

func TestLimiterRoleDefaults(t *testing.T) {
	p := &limiterPool{cfg: SecConfig{}}

	for i := 0; i < 10; i++ {
		if !p.Allow(RoleFrontend, "fk") {
			t.Fatalf("frontend call %d should be within the default burst", i+1)
		}
	}
	if p.Allow(RoleFrontend, "fk") {
		t.Fatalf("frontend key should exhaust its burst at 10")
	}
	for i := 0; i < 40; i++ {
		if !p.Allow(RoleBackend, "bk") {
			t.Fatalf("backend call %d should be within the larger backend burst", i+1)
		}
	}
}

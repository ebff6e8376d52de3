package logger

import (
	"net/http"
	"strings"
)

var sensitiveHeaders = map[string]struct{}{
	"Authorization":        {},
	"X-Api-Key":            {},
	"X-Identity-Signature": {},
	"Cookie":               {},
}

func redactHeaderValue(key, v string) string {
	if _, ok := sensitiveHeaders[http.CanonicalHeaderKey(key)]; ok {
		return "[redacted]"
	}
	return v
}

// SafeHeaders returns a compact string representation of headers suitable
// for logging, with sensitive values redacted.
func SafeHeaders(r *http.Request) string {
	parts := make([]string, 0, len(r.Header))
	for k, v := range r.Header {
		if len(v) == 0 {
			continue
		}
		parts = append(parts, k+"="+redactHeaderValue(k, v[0]))
	}
	return strings.Join(parts, "; ")
}

// LogRequest logs a concise, safe summary of an incoming request.
func LogRequest(r *http.Request) {
	if Log == nil {
		return
	}
	Log.Debug("incoming_request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"headers", SafeHeaders(r),
	)
}

package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/valyala/fasthttp"

	"hearth/pkg/api"
	"hearth/pkg/auth"
	"hearth/pkg/banner"
	"hearth/pkg/logger"
	"hearth/pkg/realtime"
	"hearth/pkg/store"
	"hearth/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// setupHTTPHandlers sets up all HTTP handlers on the provided mux. The API
// subtree additionally requires a verified identity; health, docs and
// metrics stay open.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	deps := api.Deps{
		Reactions: a.reactions,
		Comments:  a.comments,
		Agg:       a.agg,
		Hub:       a.hub,
	}
	mux.Handle("/v1/", auth.RequireSignedIdentity(api.Handler(deps)))
	mux.Handle("/ws", realtime.NewWSHandler(a.hub, a.dir, a.dir, a.eff.Config.Security.CORS.AllowedOrigins))

	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/metrics", promhttp.Handler())
}

// readyzHandler reports readiness: the store must be open.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// startHTTP builds the handler chain, starts the HTTP server in a goroutine
// and returns a channel that will carry any server error.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	sec := a.eff.Config.Security
	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string{}, sec.IPWhitelist...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range sec.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range sec.APIKeys.Frontend {
		secCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range sec.APIKeys.Admin {
		secCfg.AdminKeys[k] = struct{}{}
	}

	// auth gateway first, telemetry outermost
	wrapped := auth.AuthenticateRequestMiddleware(secCfg)(mux)
	wrapped = telemetry.Middleware(wrapped)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}

// startFast starts the enqueue-only fasthttp listener when configured. The
// returned channel never delivers when the listener is disabled.
func (a *App) startFast() <-chan error {
	errCh := make(chan error, 1)
	addr := a.eff.Config.Server.FastAddr
	if addr == "" {
		return errCh
	}

	a.fast = &fasthttp.Server{
		Handler:            api.FastMutations(a.queue),
		Name:               "hearth-fast",
		ReadBufferSize:     16 * 1024,
		MaxRequestBodySize: 256 * 1024,
		DisableKeepalive:   false,
	}
	logger.Info("fast_listener_starting", "addr", addr)
	go func() {
		errCh <- a.fast.ListenAndServe(addr)
	}()
	return errCh
}

package app

import (
	"context"
	"net/http"
	"time"

	"huddle/pkg/api"
	"huddle/pkg/banner"
	"huddle/pkg/logger"
	"huddle/pkg/resync"
	"huddle/pkg/ws"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	banner.Print(a.opts.Config, a.opts.Addr, a.opts.DBPath, a.opts.Sources, a.opts.Version)
}

// startHTTP builds the handler stack, starts the HTTP server in a
// goroutine and returns a channel carrying any fatal server error.
func (a *App) startHTTP() <-chan error {
	bcast, disp, limits := a.buildPipeline()
	recon := resync.NewReconciler(a.opts.Config.Tolerance())
	wsServer := ws.NewServer(a.channels, disp, bcast, limits, recon)
	handler := api.New(a.channels, wsServer, a.opts.DocsDir, a.opts.Version)

	a.srv = &http.Server{Addr: a.opts.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		cert := a.opts.Config.Server.TLS.CertFile
		key := a.opts.Config.Server.TLS.KeyFile
		logger.Info("http_listening", "addr", a.opts.Addr, "tls", cert != "" && key != "")
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}

func (a *App) shutdownHTTP() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err)
	}
}

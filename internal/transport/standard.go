package transport

import (
	"context"
	"net/http"
	"time"
)

// standardBackend serves plain HTTP/1.1 (and HTTP/2 over TLS) with
// net/http. It is always available and is the default choice.
type standardBackend struct {
	cfg Config
	srv *http.Server
}

func newStandard(cfg Config) Backend {
	return &standardBackend{cfg: cfg}
}

func (b *standardBackend) Name() string { return "standard" }

func (b *standardBackend) Serve(handler http.Handler) error {
	b.srv = &http.Server{
		Addr:         b.cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var err error
	if b.cfg.CertFile != "" && b.cfg.KeyFile != "" {
		err = b.srv.ListenAndServeTLS(b.cfg.CertFile, b.cfg.KeyFile)
	} else {
		err = b.srv.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (b *standardBackend) Shutdown(ctx context.Context) error {
	if b.srv == nil {
		return nil
	}
	return b.srv.Shutdown(ctx)
}

package transport

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// h2cBackend serves cleartext HTTP/2 for reverse-proxy deployments where
// TLS terminates upstream.
type h2cBackend struct {
	cfg Config
	srv *http.Server
}

func newH2C(cfg Config) Backend {
	return &h2cBackend{cfg: cfg}
}

func (b *h2cBackend) Name() string { return "h2c" }

func (b *h2cBackend) Serve(handler http.Handler) error {
	b.srv = &http.Server{
		Addr:        b.cfg.Addr,
		Handler:     h2c.NewHandler(handler, &http2.Server{}),
		IdleTimeout: 60 * time.Second,
	}

	err := b.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (b *h2cBackend) Shutdown(ctx context.Context) error {
	if b.srv == nil {
		return nil
	}
	return b.srv.Shutdown(ctx)
}

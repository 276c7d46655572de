package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/fcgi"
	"os"
)

// fcgiBackend serves FastCGI over a unix socket, for embedding behind a
// front web server. Available only when a socket path is configured.
type fcgiBackend struct {
	cfg      Config
	listener net.Listener
}

func newFCGI(cfg Config) Backend {
	return &fcgiBackend{cfg: cfg}
}

func (b *fcgiBackend) Name() string { return "fcgi" }

func (b *fcgiBackend) Serve(handler http.Handler) error {
	// Stale socket from a previous run blocks the bind.
	_ = os.Remove(b.cfg.FCGISocket)

	l, err := net.Listen("unix", b.cfg.FCGISocket)
	if err != nil {
		return err
	}
	b.listener = l

	err = fcgi.Serve(l, handler)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (b *fcgiBackend) Shutdown(ctx context.Context) error {
	if b.listener == nil {
		return nil
	}
	err := b.listener.Close()
	_ = os.Remove(b.cfg.FCGISocket)
	return err
}

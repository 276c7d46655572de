// Package transport chooses and supervises the HTTP server backend that
// carries the gateway's routes.
package transport

import (
	"context"
	"net/http"
)

// Config is the runtime configuration handed to a backend on start. Empty
// cert/key paths mean plain listening even on TLS-capable backends.
type Config struct {
	Addr       string
	CertFile   string
	KeyFile    string
	FCGISocket string
	Debug      bool
}

// Backend is one pluggable HTTP server implementation. Serve blocks until
// the server stops; a clean shutdown reports nil.
type Backend interface {
	Name() string
	Serve(handler http.Handler) error
	Shutdown(ctx context.Context) error
}

// Descriptor is the static metadata for one backend: its name, whether it
// can terminate TLS, and a probe for runtime availability.
type Descriptor struct {
	Name        string
	SupportsTLS bool
	Probe       func(cfg Config) bool
	New         func(cfg Config) Backend
}

// Descriptors returns the known backends. Order is precedence: earlier
// entries win selection over later ones.
func Descriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        "standard",
			SupportsTLS: true,
			Probe:       func(Config) bool { return true },
			New:         newStandard,
		},
		{
			Name:        "h2c",
			SupportsTLS: false,
			Probe:       func(Config) bool { return true },
			New:         newH2C,
		},
		{
			Name:        "fcgi",
			SupportsTLS: false,
			Probe:       func(cfg Config) bool { return cfg.FCGISocket != "" },
			New:         newFCGI,
		},
	}
}

package transport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loadrelay/go-download-gateway/pkg/config"
)

// Supervisor runs the selected backend on its own goroutine and bridges
// its terminal error to a monitoring caller. Exactly one backend is
// active per process.
type Supervisor struct {
	cfg     config.ServerConfig
	handler http.Handler
	logger  *zap.Logger

	mu      sync.Mutex
	backend Backend
	err     error

	// errCh carries the backend's terminal error, once.
	errCh chan error
}

// NewSupervisor creates a supervisor for the given handler.
func NewSupervisor(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		handler: handler,
		logger:  logger.Named("supervisor"),
		errCh:   make(chan error, 1),
	}
}

// Start selects a backend and launches it in the background. Selection
// failure is returned synchronously and is fatal: the gateway cannot run
// without a transport.
func (s *Supervisor) Start() error {
	bcfg := s.backendConfig()

	sel, err := Select(Descriptors(), bcfg, s.cfg.ForceBackend, s.cfg.Backend, s.cfg.TLS.Enabled, s.logger)
	if err != nil {
		return err
	}

	go s.run(sel, bcfg)
	return nil
}

func (s *Supervisor) backendConfig() Config {
	bcfg := Config{
		Addr:       s.cfg.Address(),
		FCGISocket: s.cfg.FCGISocket,
		Debug:      s.cfg.Debug,
	}

	if !s.cfg.TLS.Enabled {
		return bcfg
	}

	if !fileExists(s.cfg.TLS.CertFile) || !fileExists(s.cfg.TLS.KeyFile) {
		// Degrade, do not abort.
		s.logger.Warn("TLS certificates not found, continuing without TLS",
			zap.String("cert", s.cfg.TLS.CertFile),
			zap.String("key", s.cfg.TLS.KeyFile))
		return bcfg
	}

	bcfg.CertFile = s.cfg.TLS.CertFile
	bcfg.KeyFile = s.cfg.TLS.KeyFile
	return bcfg
}

func (s *Supervisor) run(sel Selection, bcfg Config) {
	if sel.Descriptor == nil {
		s.report(fmt.Errorf("unknown server backend %q", sel.BareName))
		return
	}

	if bcfg.CertFile != "" && !sel.Descriptor.SupportsTLS {
		s.logger.Warn("Selected backend offers no TLS, consider the standard backend",
			zap.String("backend", sel.Descriptor.Name))
		bcfg.CertFile = ""
		bcfg.KeyFile = ""
	}

	b := sel.Descriptor.New(bcfg)
	s.mu.Lock()
	s.backend = b
	s.mu.Unlock()

	s.logger.Info("Starting server backend",
		zap.String("backend", b.Name()),
		zap.String("address", bcfg.Addr))

	if err := b.Serve(s.handler); err != nil {
		s.logger.Error("Server backend failed", zap.Error(err))
		s.report(err)
		return
	}
	s.report(nil)
}

func (s *Supervisor) report(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	select {
	case s.errCh <- err:
	default:
	}
}

// StartupError waits up to timeout for a startup failure. A nil return
// means the backend came up (or has not failed yet); startup failures
// manifest within a small bounded window.
func (s *Supervisor) StartupError(timeout time.Duration) error {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.mu.Unlock()

	select {
	case err := <-s.errCh:
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return err
	case <-time.After(timeout):
		return nil
	}
}

// Err returns the recorded terminal error, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Shutdown stops the active backend.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	b := s.backend
	s.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Shutdown(ctx)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

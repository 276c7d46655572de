// Package setup serves the first-run setup wizard. The wizard closes
// itself after a period of inactivity and permanently after completion.
package setup

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service is the daemon-side setup capability the wizard drives.
type Service interface {
	// CheckSystem reports host facts relevant to a fresh install.
	CheckSystem(ctx context.Context) map[string]any

	// CheckDeps reports optional dependency availability.
	CheckDeps(ctx context.Context) map[string]any

	// AddUser creates the initial administrator account.
	AddUser(ctx context.Context, username, password string) error

	// Save persists the finished configuration.
	Save(ctx context.Context) error
}

// Controller owns the wizard state: the inactivity deadline and the done
// flag, checked against an injected clock.
type Controller struct {
	svc     Service
	timeout time.Duration
	clock   func() time.Time
	logger  *zap.Logger

	mu           sync.Mutex
	lastActivity time.Time
	done         bool
}

// NewController creates a wizard controller. A nil service means no setup
// context is running and every request answers 404. A nil clock uses
// time.Now.
func NewController(svc Service, timeout time.Duration, clock func() time.Time, logger *zap.Logger) *Controller {
	if clock == nil {
		clock = time.Now
	}
	c := &Controller{
		svc:     svc,
		timeout: timeout,
		clock:   clock,
		logger:  logger.Named("setup"),
	}
	c.lastActivity = clock()
	return c
}

// RegisterRoutes adds the wizard routes.
func (s *Controller) RegisterRoutes(r *gin.Engine) {
	r.GET("/setup", s.guard(s.Status))
	r.GET("/setup_done", s.guard(s.Done))
	r.POST("/setup_done", s.guard(s.Done))
}

// guard enforces the wizard state machine: 404 without a setup context,
// 409 once finished, 410 after the inactivity timeout. A passing request
// refreshes the deadline.
func (s *Controller) guard(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.svc == nil {
			c.JSON(http.StatusNotFound, "Not Found")
			return
		}

		s.mu.Lock()
		now := s.clock()
		switch {
		case s.done:
			s.mu.Unlock()
			c.JSON(http.StatusConflict, "Done")
			return
		case s.lastActivity.Add(s.timeout).Before(now):
			s.mu.Unlock()
			c.JSON(http.StatusGone, "Timeout")
			return
		}
		s.lastActivity = now
		s.mu.Unlock()

		h(c)
	}
}

// Status reports system and dependency checks.
func (s *Controller) Status(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"system": s.svc.CheckSystem(ctx),
		"deps":   s.svc.CheckDeps(ctx),
	})
}

// Done creates the initial user, saves the configuration and closes the
// wizard for good.
func (s *Controller) Done(c *gin.Context) {
	ctx := c.Request.Context()

	username := c.Query("user")
	if username == "" {
		username = c.PostForm("user")
	}
	password := c.Query("password")
	if password == "" {
		password = c.PostForm("password")
	}

	if err := s.svc.AddUser(ctx, username, password); err != nil {
		s.logger.Error("Setup user creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.svc.Save(ctx); err != nil {
		s.logger.Error("Setup save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()

	c.JSON(http.StatusConflict, "Done")
}

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loadrelay/go-download-gateway/internal/core"
	"github.com/loadrelay/go-download-gateway/internal/session"
	"github.com/loadrelay/go-download-gateway/pkg/middleware"
)

// Dispatcher is the single HTTP entry point for programmatic calls. It is
// stateless per call; the session store is the only shared state and is
// safe under concurrent access.
type Dispatcher struct {
	core       core.Core
	registry   *core.Registry
	sessions   session.Store
	resolver   *Resolver
	limiter    *middleware.LoginRateLimiter
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewDispatcher wires the dispatcher from its collaborators. A nil limiter
// disables login throttling.
func NewDispatcher(c core.Core, registry *core.Registry, sessions session.Store, limiter *middleware.LoginRateLimiter, sessionTTL time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		core:       c,
		registry:   registry,
		sessions:   sessions,
		resolver:   NewResolver(c, sessions, logger),
		limiter:    limiter,
		sessionTTL: sessionTTL,
		logger:     logger.Named("dispatcher"),
	}
}

// RegisterRoutes adds the /api routes to the router. login and logout are
// dispatched by method name inside Call since gin cannot register static
// routes beside the catch-all.
func (d *Dispatcher) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/*call", d.Call)
	r.POST("/api/*call", d.Call)
}

// Call implements the dispatch ladder: 401 unauthenticated, 403
// unauthorized, 404 unknown or internal method, 415 undecodable input,
// 400 domain rejection, 500 anything else.
func (d *Dispatcher) Call(c *gin.Context) {
	method, rawArgs := splitCall(c.Request.URL.EscapedPath())

	switch method {
	case "login":
		d.login(c)
		return
	case "logout":
		d.logout(c)
		return
	}

	// Unknown and internal methods are 404 whatever the caller's
	// authentication state.
	handler, perm, ok := d.registry.Lookup(method)
	if !ok {
		d.logger.Info("Invalid API call", zap.String("method", method))
		writeJSON(c, http.StatusNotFound, "Not Found")
		return
	}

	principal, _, err := d.resolver.Resolve(c)
	if err != nil {
		writeJSON(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if !d.core.HasPermission(c.Request.Context(), principal, perm) {
		writeJSON(c, http.StatusForbidden, "Forbidden")
		return
	}

	args, err := decodePositional(rawArgs)
	if err != nil {
		d.logger.Warn("Undecodable positional argument",
			zap.String("method", method), zap.Error(err))
		writeJSON(c, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	kwargs, err := decodeKwargs(c)
	if err != nil {
		d.logger.Warn("Undecodable keyword argument",
			zap.String("method", method), zap.Error(err))
		writeJSON(c, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	call := &core.Call{Method: method, Args: args, Kwargs: kwargs}
	result, err := handler(c.Request.Context(), call)
	if err != nil {
		var domain *core.DomainError
		if errors.As(err, &domain) {
			writeJSON(c, http.StatusBadRequest, domain.Message)
			return
		}
		// Trace is logged unconditionally, and only sent to the client
		// for this unexpected case.
		d.logger.Error("API call failed",
			zap.String("method", method), zap.Error(err), zap.Stack("traceback"))
		writeJSON(c, http.StatusInternalServerError, gin.H{
			"error":     err.Error(),
			"traceback": takeStack(),
		})
		return
	}

	// null is not a valid response value
	if result == nil {
		result = true
	}
	writeJSON(c, http.StatusOK, result)
}

// login verifies credentials and creates a session. Responds with the
// session id, the full principal when the "user" flag is set, or JSON
// false on bad credentials.
func (d *Dispatcher) login(c *gin.Context) {
	source := c.ClientIP()
	if d.limiter != nil && !d.limiter.Allow(source) {
		writeJSON(c, http.StatusTooManyRequests, "Too Many Requests")
		return
	}

	username := param(c, "username")
	password := param(c, "password")

	principal, err := d.core.CheckAuth(c.Request.Context(), username, password, source)
	if err != nil {
		d.logger.Error("Credential check failed", zap.Error(err), zap.Stack("traceback"))
		writeJSON(c, http.StatusInternalServerError, gin.H{
			"error":     err.Error(),
			"traceback": takeStack(),
		})
		return
	}
	if principal == nil {
		if d.limiter != nil {
			d.limiter.RecordFailure(source)
		}
		writeJSON(c, http.StatusOK, false)
		return
	}

	s := session.New(principal, d.sessionTTL)
	if err := d.sessions.Put(c.Request.Context(), s); err != nil {
		d.logger.Error("Session create failed", zap.Error(err), zap.Stack("traceback"))
		writeJSON(c, http.StatusInternalServerError, gin.H{
			"error":     err.Error(),
			"traceback": takeStack(),
		})
		return
	}

	c.SetCookie(sessionParam, s.ID, int(d.sessionTTL.Seconds()), "/", "", false, true)

	if param(c, "user") != "" {
		writeJSON(c, http.StatusOK, gin.H{
			"uid":     principal.UID,
			"name":    principal.Name,
			"perms":   principal.Perms,
			"session": s.ID,
		})
		return
	}

	writeJSON(c, http.StatusOK, s.ID)
}

// logout invalidates the caller's session. Always succeeds, whether or not
// a session existed.
func (d *Dispatcher) logout(c *gin.Context) {
	if id := sessionID(c); id != "" {
		if err := d.sessions.Delete(c.Request.Context(), id); err != nil {
			d.logger.Error("Session delete failed", zap.Error(err))
		}
	}
	c.SetCookie(sessionParam, "", -1, "/", "", false, true)
	writeJSON(c, http.StatusOK, true)
}

// splitCall separates the method name from the positional argument path in
// the escaped URL path after /api/.
func splitCall(escapedPath string) (method, rawArgs string) {
	rest := strings.TrimPrefix(escapedPath, "/api/")
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		method, rawArgs = rest[:i], rest[i:]
	} else {
		method = rest
	}
	if m, err := url.PathUnescape(method); err == nil {
		method = m
	}
	return method, rawArgs
}

// param reads a request parameter from query or form position.
func param(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.PostForm(name)
}

package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loadrelay/go-download-gateway/internal/core"
	"github.com/loadrelay/go-download-gateway/internal/session"
)

// sessionParam is the wire name carrying the session token in query,
// form field or cookie position.
const sessionParam = "session"

// Resolver turns a raw request into an authenticated principal. Cookie
// sessions serve the HTML front end, HTTP Basic serves machine clients;
// both land on the same endpoints without a login round trip.
type Resolver struct {
	core     core.Core
	sessions session.Store
	logger   *zap.Logger
}

// NewResolver creates a Resolver over the core auth check and the
// session store.
func NewResolver(c core.Core, sessions session.Store, logger *zap.Logger) *Resolver {
	return &Resolver{
		core:     c,
		sessions: sessions,
		logger:   logger.Named("resolver"),
	}
}

// sessionID extracts the session token from the request, if any. Quote
// characters are stripped so JSON-quoted tokens still resolve.
func sessionID(c *gin.Context) string {
	id := c.Query(sessionParam)
	if id == "" {
		id = c.PostForm(sessionParam)
	}
	if id == "" {
		if v, err := c.Cookie(sessionParam); err == nil {
			id = v
		}
	}
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\'' {
			return -1
		}
		return r
	}, id)
}

// Resolve attempts session lookup first, HTTP Basic second. The returned
// session is nil for Basic-authenticated principals, which are minimal
// (uid only) and not backed by a store entry.
func (r *Resolver) Resolve(c *gin.Context) (*core.Principal, *session.Session, error) {
	if id := sessionID(c); id != "" {
		s, err := r.sessions.Get(c.Request.Context(), id)
		if err == nil {
			p := s.Principal
			return &p, s, nil
		}
		if err != session.ErrNotFound {
			r.logger.Error("Session lookup failed", zap.Error(err))
		}
	}

	if username, password, ok := c.Request.BasicAuth(); ok {
		p, err := r.core.CheckAuth(c.Request.Context(), username, password, c.ClientIP())
		if err != nil {
			r.logger.Error("Credential check failed", zap.Error(err))
			return nil, nil, ErrUnauthorized
		}
		if p != nil {
			return &core.Principal{UID: p.UID}, nil, nil
		}
	}

	return nil, nil, ErrUnauthorized
}

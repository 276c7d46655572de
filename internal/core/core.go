// Package core defines the boundary to the daemon's internal API object:
// the authenticated principal model, the capability surface the gateway
// dispatches into, and the error taxonomy shared by its callers.
package core

import (
	"context"
	"errors"
	"fmt"
)

// Permission is a capability bit held by a principal.
type Permission uint32

const (
	// PermAdd allows adding packages and links
	PermAdd Permission = 1 << iota
	// PermDelete allows removing packages and links
	PermDelete
	// PermStatus allows querying queue and server state
	PermStatus
	// PermModify allows changing package properties
	PermModify
	// PermDownload allows direct file access
	PermDownload
	// PermAll marks an administrator
	PermAll Permission = 1<<31 - 1
)

// Principal is an authenticated caller identity. Principals resolved from
// HTTP Basic credentials carry only the UID; full attributes live with the
// daemon, never in this gateway.
type Principal struct {
	UID      int64      `json:"uid"`
	Name     string     `json:"name,omitempty"`
	Perms    Permission `json:"perms"`
	IsAdmin  bool       `json:"is_admin,omitempty"`
	Template string     `json:"template,omitempty"`
}

// Can reports whether the principal holds the given permission.
func (p *Principal) Can(perm Permission) bool {
	if p == nil {
		return false
	}
	return p.IsAdmin || p.Perms&perm == perm
}

// URLStatus is the per-URL result of a plugin availability check.
type URLStatus struct {
	URL    string `json:"url"`
	Plugin string `json:"plugin,omitempty"`
}

// Core is the daemon's internal API object as seen by the gateway. The
// gateway routes, authorizes and marshals calls into it; the semantics of
// the individual operations belong to the daemon.
type Core interface {
	// CheckAuth verifies username/password credentials. The source
	// address is passed through for rate limiting and audit. A nil
	// principal with nil error means the credentials were rejected.
	CheckAuth(ctx context.Context, username, password, sourceAddr string) (*Principal, error)

	// HasPermission reports whether the principal holds the permission.
	// Principals resolved from Basic credentials carry only a uid; the
	// daemon re-derives their permission set from it.
	HasPermission(ctx context.Context, p *Principal, perm Permission) bool

	// AddPackage creates a download package from a URL list and returns
	// its package id.
	AddPackage(ctx context.Context, name string, urls []string, paused bool) (int64, error)

	// GeneratePackages groups bare URLs into named packages using the
	// daemon's name-inference logic.
	GeneratePackages(ctx context.Context, urls []string) (map[string][]string, error)

	// CheckURLs matches URLs against the loaded plugins.
	CheckURLs(ctx context.Context, urls []string) ([]URLStatus, error)

	// Version returns the daemon version string.
	Version(ctx context.Context) string
}

// DomainError is an expected, business-rule rejection raised by the core.
// The dispatcher maps it to 400 with the message only, no trace.
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string { return e.Message }

// Domainf builds a DomainError from a format string.
func Domainf(format string, args ...any) *DomainError {
	return &DomainError{Message: fmt.Sprintf(format, args...)}
}

// Common errors
var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrNoURLs         = errors.New("no urls given")
)

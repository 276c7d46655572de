// Package memory implements an in-memory core for standalone runs and
// tests. Real deployments embed the gateway inside the daemon, which
// provides its own core.
package memory

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/loadrelay/go-download-gateway/internal/core"
)

type user struct {
	principal    core.Principal
	passwordHash []byte
}

// Package is a stored download package.
type Package struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	URLs   []string `json:"urls"`
	Paused bool     `json:"paused"`
}

// Core is a mutex-guarded in-memory implementation of core.Core.
type Core struct {
	mu       sync.RWMutex
	users    map[string]*user
	packages map[int64]*Package
	nextUID  int64
	nextPID  int64
	version  string
}

// New creates an empty in-memory core.
func New() *Core {
	return &Core{
		users:    make(map[string]*user),
		packages: make(map[int64]*Package),
		nextUID:  1,
		nextPID:  1,
		version:  "0.5.0",
	}
}

// AddUser creates a user with a bcrypt-hashed password.
func (c *Core) AddUser(name, password string, perms core.Permission, admin bool) (*core.Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	u := &user{
		principal: core.Principal{
			UID:     c.nextUID,
			Name:    name,
			Perms:   perms,
			IsAdmin: admin,
		},
		passwordHash: hash,
	}
	c.nextUID++
	c.users[name] = u

	p := u.principal
	return &p, nil
}

func (c *Core) CheckAuth(ctx context.Context, username, password, sourceAddr string) (*core.Principal, error) {
	c.mu.RLock()
	u, ok := c.users[username]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, nil
	}

	p := u.principal
	return &p, nil
}

func (c *Core) HasPermission(ctx context.Context, p *core.Principal, perm core.Permission) bool {
	if p.Can(perm) {
		return true
	}

	// Minimal principals carry only the uid.
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range c.users {
		if u.principal.UID == p.UID {
			return u.principal.Can(perm)
		}
	}
	return false
}

func (c *Core) AddPackage(ctx context.Context, name string, urls []string, paused bool) (int64, error) {
	if len(urls) == 0 {
		return 0, &core.DomainError{Message: core.ErrNoURLs.Error()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := &Package{
		ID:     c.nextPID,
		Name:   name,
		URLs:   append([]string(nil), urls...),
		Paused: paused,
	}
	c.nextPID++
	c.packages[p.ID] = p
	return p.ID, nil
}

// GeneratePackages groups URLs by hostname, second-level domain when
// possible. URLs that do not parse fall into an "unknown" package.
func (c *Core) GeneratePackages(ctx context.Context, urls []string) (map[string][]string, error) {
	packs := make(map[string][]string)
	for _, raw := range urls {
		name := inferName(raw)
		packs[name] = append(packs[name], raw)
	}
	return packs, nil
}

func (c *Core) CheckURLs(ctx context.Context, urls []string) ([]core.URLStatus, error) {
	out := make([]core.URLStatus, 0, len(urls))
	for _, raw := range urls {
		st := core.URLStatus{URL: raw}
		if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			st.Plugin = "BasePlugin"
		}
		out = append(out, st)
	}
	return out, nil
}

func (c *Core) Version(ctx context.Context) string {
	return c.version
}

// Packages returns a snapshot of the stored packages, for tests.
func (c *Core) Packages() []*Package {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Package, 0, len(c.packages))
	for _, p := range c.packages {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

func inferName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := u.Hostname()
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}

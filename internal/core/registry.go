package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Call is one decoded wire request: positional arguments in order, keyword
// arguments by name. Uploaded file bodies appear as keyword arguments.
// Immutable once handed to a handler.
type Call struct {
	Method string
	Args   []any
	Kwargs map[string]any
}

// String returns the argument at position pos, or the keyword key when the
// positional slot is absent.
func (c *Call) String(pos int, key string) (string, error) {
	v, ok := c.arg(pos, key)
	if !ok {
		return "", fmt.Errorf("%s: missing argument %q", c.Method, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %q: expected string, got %T", c.Method, key, v)
	}
	return s, nil
}

// OptString is String with a fallback instead of an error for absence.
func (c *Call) OptString(pos int, key, fallback string) (string, error) {
	v, ok := c.arg(pos, key)
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %q: expected string, got %T", c.Method, key, v)
	}
	return s, nil
}

// StringSlice returns the argument at pos/key as a list of strings. JSON
// arrays decode as []any, so each element is checked individually.
func (c *Call) StringSlice(pos int, key string) ([]string, error) {
	v, ok := c.arg(pos, key)
	if !ok {
		return nil, fmt.Errorf("%s: missing argument %q", c.Method, key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: argument %q: expected list, got %T", c.Method, key, v)
	}
	out := make([]string, 0, len(raw))
	for i, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%s: argument %q[%d]: expected string, got %T", c.Method, key, i, e)
		}
		out = append(out, s)
	}
	return out, nil
}

// OptBool returns the argument at pos/key as a bool, or fallback when absent.
func (c *Call) OptBool(pos int, key string, fallback bool) (bool, error) {
	v, ok := c.arg(pos, key)
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: argument %q: expected bool, got %T", c.Method, key, v)
	}
	return b, nil
}

func (c *Call) arg(pos int, key string) (any, bool) {
	if pos >= 0 && pos < len(c.Args) {
		return c.Args[pos], true
	}
	v, ok := c.Kwargs[key]
	return v, ok
}

// Handler executes one registered method against the core.
type Handler func(ctx context.Context, call *Call) (any, error)

type method struct {
	handler Handler
	perm    Permission
}

// Registry maps exposed method names to typed handlers and their required
// permission. Built once at startup; dispatch is a table lookup, never a
// dynamic scan.
type Registry struct {
	methods map[string]method
}

// NewRegistry builds the registry of externally exposed methods over the
// given core.
func NewRegistry(c Core) *Registry {
	r := &Registry{methods: make(map[string]method)}

	r.register("add_package", PermAdd, func(ctx context.Context, call *Call) (any, error) {
		name, err := call.String(0, "name")
		if err != nil {
			return nil, err
		}
		urls, err := call.StringSlice(1, "links")
		if err != nil {
			return nil, err
		}
		paused, err := call.OptBool(2, "paused", false)
		if err != nil {
			return nil, err
		}
		return c.AddPackage(ctx, name, urls, paused)
	})

	r.register("generate_packages", PermAdd, func(ctx context.Context, call *Call) (any, error) {
		urls, err := call.StringSlice(0, "links")
		if err != nil {
			return nil, err
		}
		return c.GeneratePackages(ctx, urls)
	})

	r.register("check_urls", PermAdd, func(ctx context.Context, call *Call) (any, error) {
		urls, err := call.StringSlice(0, "urls")
		if err != nil {
			return nil, err
		}
		return c.CheckURLs(ctx, urls)
	})

	r.register("get_server_version", PermStatus, func(ctx context.Context, call *Call) (any, error) {
		return c.Version(ctx), nil
	})

	return r
}

func (r *Registry) register(name string, perm Permission, h Handler) {
	r.methods[name] = method{handler: h, perm: perm}
}

// Lookup returns the handler and required permission for an exposed method.
// Names with a leading underscore are internal by convention and never
// exposed, whatever the table contains.
func (r *Registry) Lookup(name string) (Handler, Permission, bool) {
	if strings.HasPrefix(name, "_") {
		return nil, 0, false
	}
	m, ok := r.methods[name]
	if !ok {
		return nil, 0, false
	}
	return m.handler, m.perm, true
}

// Names returns the exposed method names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

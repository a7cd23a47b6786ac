// Package oracle talks to the completion backends that propose document
// edits, and recovers structured results from their unreliable output.
package oracle

import (
	"context"
	"fmt"
	"sort"
)

// CompletionRequest is one prompt for a completion backend. ImagePath, if
// set, points to a PNG screenshot attached alongside the prompt.
type CompletionRequest struct {
	Prompt    string
	ImagePath string
}

// Client is a single completion backend. Implementations return the raw
// generated text; parsing is the caller's concern.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Registry holds the set of named backends resolved at process start.
// A session binds its backend name once at creation; there is no per-call
// backend branching.
type Registry struct {
	clients map[string]Client
	def     string
}

// NewRegistry builds a registry with the given default backend name.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		def:     defaultName,
	}
}

// Register adds a named backend.
func (r *Registry) Register(name string, c Client) {
	r.clients[name] = c
}

// Resolve returns the backend for name, falling back to the default when
// name is empty. Unknown names are an error, not a silent fallback.
func (r *Registry) Resolve(name string) (Client, error) {
	if name == "" {
		name = r.def
	}
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("unknown completion backend %q (have %v)", name, r.names())
	}
	return c, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
	"github.com/picklr-io/converge/providers/gcp"
	"github.com/picklr-io/converge/providers/memory"
)

// Registry manages the lifecycle of cloud clients.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]cloud.Client
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]cloud.Client),
	}
}

// LoadProvider initializes and registers a built-in provider.
func (r *Registry) LoadProvider(ctx context.Context, name string, settings *ir.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p cloud.Client
	switch name {
	case "memory":
		p = memory.New()
	case "gcp":
		if settings == nil {
			return fmt.Errorf("provider gcp requires settings")
		}
		c, err := gcp.New(ctx, gcp.Options{Project: settings.Project, Region: settings.Region})
		if err != nil {
			return fmt.Errorf("failed to initialize provider gcp: %w", err)
		}
		p = c
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = p
	return nil
}

// Register adds an already constructed client under name.
func (r *Registry) Register(name string, c cloud.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = c
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (cloud.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}

// Close releases every loaded provider that holds connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close provider %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

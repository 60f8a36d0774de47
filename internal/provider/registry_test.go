package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/picklr-io/converge/providers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadMemory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.LoadProvider(context.Background(), "memory", nil))

	c, err := r.Get("memory")
	require.NoError(t, err)
	assert.IsType(t, &memory.Provider{}, c)

	// Loading twice keeps the first instance.
	require.NoError(t, r.LoadProvider(context.Background(), "memory", nil))
	again, _ := r.Get("memory")
	assert.Same(t, c, again)
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	assert.ErrorContains(t, r.LoadProvider(context.Background(), "aws", nil), "unknown provider")
	assert.ErrorContains(t, r.LoadProvider(context.Background(), "gcp", nil), "requires settings")

	_, err := r.Get("memory")
	assert.ErrorContains(t, err, "not loaded")
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	m := memory.New()
	r.Register("fake", m)

	c, err := r.Get("fake")
	require.NoError(t, err)
	assert.Same(t, m, c)
}

type closingClient struct {
	*memory.Provider
	closed int
	err    error
}

func (c *closingClient) Close() error {
	c.closed++
	return c.err
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	ok := &closingClient{Provider: memory.New()}
	broken := &closingClient{Provider: memory.New(), err: errors.New("connection reset")}
	r.Register("ok", ok)
	r.Register("broken", broken)
	r.Register("plain", memory.New())

	err := r.Close()
	assert.ErrorContains(t, err, "close provider broken: connection reset")
	assert.Equal(t, 1, ok.closed)
	assert.Equal(t, 1, broken.closed)
}

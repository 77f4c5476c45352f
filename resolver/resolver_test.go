package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	name  string
	known map[string]bool
	calls *[]string
	err   error
}

func (s *stubResolver) Resolve(name string) (bool, error) {
	*s.calls = append(*s.calls, s.name+":"+name)
	if s.err != nil {
		return false, s.err
	}
	return s.known[name], nil
}

func TestChain_ResolvesInRegistrationOrder(t *testing.T) {
	var calls []string
	first := &stubResolver{name: "first", known: map[string]bool{"A": true}, calls: &calls}
	second := &stubResolver{name: "second", known: map[string]bool{"A": true, "B": true}, calls: &calls}

	chain := NewChain()
	require.NoError(t, chain.Register(first))
	require.NoError(t, chain.Register(second))
	require.Equal(t, 2, chain.Len())

	ok, err := chain.Resolve("A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"first:A"}, calls)

	calls = nil
	ok, err = chain.Resolve("B")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"first:B", "second:B"}, calls)

	calls = nil
	ok, err = chain.Resolve("C")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, calls, 2)
}

func TestChain_RegisterTwice(t *testing.T) {
	var calls []string
	r := &stubResolver{name: "r", calls: &calls}
	chain := NewChain()

	require.NoError(t, chain.Register(r))
	require.ErrorIs(t, chain.Register(r), ErrAlreadyRegistered)
	assert.Equal(t, 1, chain.Len())
}

func TestChain_Unregister(t *testing.T) {
	var calls []string
	r := &stubResolver{name: "r", known: map[string]bool{"A": true}, calls: &calls}
	chain := NewChain()

	require.ErrorIs(t, chain.Unregister(r), ErrNotRegistered)
	require.NoError(t, chain.Register(r))
	require.NoError(t, chain.Unregister(r))
	assert.Equal(t, 0, chain.Len())

	ok, err := chain.Resolve("A")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, calls)
}

func TestChain_PropagatesError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	chain := NewChain()
	require.NoError(t, chain.Register(&stubResolver{name: "bad", calls: &calls, err: boom}))
	require.NoError(t, chain.Register(&stubResolver{name: "next", known: map[string]bool{"A": true}, calls: &calls}))

	_, err := chain.Resolve("A")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"bad:A"}, calls)
}

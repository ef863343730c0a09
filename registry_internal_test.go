package xmlhub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xherrors "github.com/jacoelho/xmlhub/errors"
)

func TestRegistryBusyWhileLookupHoldsLock(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("a", func() Handler { return NullHandler{} }))

	// a Contains, Identifiers or Len in flight on another goroutine
	reg.mu.RLock()
	err := reg.Register("b", func() Handler { return NullHandler{} })
	_, unregisterErr := reg.Unregister("a")
	assert.True(t, reg.Contains("a"))
	reg.mu.RUnlock()

	assert.ErrorIs(t, err, xherrors.ErrRegistryBusy)
	assert.ErrorIs(t, unregisterErr, xherrors.ErrRegistryBusy)
	require.NoError(t, reg.Register("b", func() Handler { return NullHandler{} }))
}

func TestIsNilHandler(t *testing.T) {
	var typed *HandlerFuncs
	var funcs HandlerFuncs
	assert.True(t, isNilHandler(nil))
	assert.True(t, isNilHandler(typed))
	assert.False(t, isNilHandler(funcs))
	assert.False(t, isNilHandler(&funcs))
	assert.False(t, isNilHandler(NullHandler{}))
}

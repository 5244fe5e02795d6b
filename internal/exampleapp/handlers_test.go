package exampleapp

import (
	"testing"

	"github.com/nithinkrishnamurthi/neutrino/pkg/appregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddHandlerRegisteredAndSumsArgs(t *testing.T) {
	h, err := appregistry.Lookup("add")
	require.NoError(t, err)

	result, err := h(map[string]any{"x": 2.0, "y": 3.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": 5.0}, result)
}

func TestAddHandlerRejectsNonNumeric(t *testing.T) {
	h, err := appregistry.Lookup("add")
	require.NoError(t, err)

	_, err = h(map[string]any{"x": "not-a-number", "y": 1.0})
	assert.Error(t, err)
}

func TestBoomHandlerAlwaysFails(t *testing.T) {
	h, err := appregistry.Lookup("boom")
	require.NoError(t, err)

	_, err = h(nil)
	assert.Error(t, err)
}

func TestEchoHandlerReturnsArgsUnchanged(t *testing.T) {
	h, err := appregistry.Lookup("echo")
	require.NoError(t, err)

	args := map[string]any{"id": "42"}
	result, err := h(args)
	require.NoError(t, err)
	assert.Equal(t, args, result)
}

package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	built := 0
	factory := func(p Params) (Strategy, error) {
		built++
		return nil, nil
	}

	require.NoError(t, reg.Register("b", factory))
	require.NoError(t, reg.Register("a", factory))
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	_, err := reg.New("a", Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, built)
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("grid", func(Params) (Strategy, error) { return nil, nil }))

	err := reg.Register("grid", func(Params) (Strategy, error) { return nil, nil })
	assert.True(t, errors.Is(err, ErrDuplicateStrategy))

	_, err = reg.New("unknown", Params{})
	assert.True(t, errors.Is(err, ErrUnknownStrategy))
	assert.Contains(t, err.Error(), "unknown")
}

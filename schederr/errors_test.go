package schederr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewConfigError("init", cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "init")
	assert.Contains(t, err.Error(), "boom")
}

func TestConfigErrorSentinels(t *testing.T) {
	err := NewConfigError("init", ErrUnknownBackend)
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.NotErrorIs(t, err, ErrScheduleMissing)
}

func TestAbortPanicsWithInvariantViolation(t *testing.T) {
	cause := errors.New("bad state")
	defer func() {
		r := recover()
		require.NotNil(t, r)
		iv, ok := r.(*InvariantViolation)
		require.True(t, ok)
		assert.Equal(t, "some_point", iv.Point)
		assert.ErrorIs(t, iv, cause)
		assert.Contains(t, iv.Error(), "some_point")
	}()
	Abort("some_point", cause)
}

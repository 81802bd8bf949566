package schedcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct{ name string }

func (s *stubBackend) Name() string                       { return s.name }
func (s *stubBackend) RegisterLCBN(LCBN)                   {}
func (s *stubBackend) NextLCBNType() Kind                  { return KindAny }
func (s *stubBackend) ThreadYield(uint64, Role, *SPP)      {}
func (s *stubBackend) LCBNsRemaining() int                 { return 1 }
func (s *stubBackend) ScheduleHasDiverged() bool           { return false }

func TestRegisterAndLookupBackend(t *testing.T) {
	name := "test-backend-register-lookup"
	RegisterBackend(name, func(cfg BackendConfig) (Backend, error) {
		return &stubBackend{name: name}, nil
	})

	ctor, ok := lookupBackend(name)
	require.True(t, ok)
	b, err := ctor(BackendConfig{})
	require.NoError(t, err)
	assert.Equal(t, name, b.Name())

	assert.Contains(t, RegisteredBackends(), name)
}

func TestRegisterBackendPanicsOnNilConstructor(t *testing.T) {
	assert.Panics(t, func() {
		RegisterBackend("test-backend-nil-ctor", nil)
	})
}

func TestRegisterBackendPanicsOnDuplicateName(t *testing.T) {
	name := "test-backend-duplicate"
	RegisterBackend(name, func(cfg BackendConfig) (Backend, error) { return &stubBackend{name: name}, nil })
	assert.Panics(t, func() {
		RegisterBackend(name, func(cfg BackendConfig) (Backend, error) { return &stubBackend{name: name}, nil })
	})
}

func TestLookupBackendUnknownName(t *testing.T) {
	_, ok := lookupBackend("definitely-not-registered")
	assert.False(t, ok)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "RECORD", ModeRecord.String())
	assert.Equal(t, "REPLAY", ModeReplay.String())
}

func TestBackendNotFoundError(t *testing.T) {
	err := backendNotFoundError("ghost")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

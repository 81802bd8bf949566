package schedcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSPPLooksValid(t *testing.T) {
	spp := NewSPP(TagTimerReady)
	assert.True(t, spp.LooksValid())
	assert.Equal(t, TagTimerReady, spp.Tag)
}

func TestZeroValueSPPIsNotValid(t *testing.T) {
	var spp SPP
	assert.False(t, spp.LooksValid())
}

func TestNilSPPIsNotValid(t *testing.T) {
	var spp *SPP
	assert.False(t, spp.LooksValid())
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(250, 0, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 0, 100))
}

func TestClampMin(t *testing.T) {
	assert.Equal(t, 0.0, ClampMin(-0.5, 0))
	assert.Equal(t, 3.0, ClampMin(3, 0))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 53.392862, RoundTo(53.3928621234, 6))
	assert.Equal(t, -6.44, RoundTo(-6.4412, 2))
}

func TestHaversine(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(53.39, -6.44, 53.39, -6.44))

	// One degree of latitude is roughly 111km.
	d := Haversine(53, -6.44, 54, -6.44)
	assert.InDelta(t, 111.2, d, 0.5)
}

func TestLerp(t *testing.T) {
	assert.Equal(t, 40.0, Lerp(40, 60, 0))
	assert.Equal(t, 50.0, Lerp(40, 60, 0.5))
	assert.Equal(t, 60.0, Lerp(40, 60, 1))
}

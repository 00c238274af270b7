package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMetersIdentity(t *testing.T) {
	assert.Zero(t, DistanceMeters(12.0, 77.0, 12.0, 77.0))
	assert.Zero(t, DistanceMeters(-45.5, 170.25, -45.5, 170.25))
}

func TestDistanceMetersSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{12.0, 77.0, 12.0003, 77.0},
		{0, 0, 0.5, 0.5},
		{-33.8688, 151.2093, 51.5074, -0.1278},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1], p[2], p[3])
		ba := DistanceMeters(p[2], p[3], p[0], p[1])
		assert.InDelta(t, ab, ba, 1e-9)
	}
}

func TestDistanceMetersKnownValues(t *testing.T) {
	// 0.0003 degrees of latitude is roughly 33.4m.
	d := DistanceMeters(12.0000, 77.0000, 12.00030, 77.0000)
	assert.InDelta(t, 33.36, d, 0.2)

	// One degree of latitude at the equator is about 111.2km.
	d = DistanceMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 50)
}

func TestDistanceMetersPropagatesNaN(t *testing.T) {
	require.True(t, math.IsNaN(DistanceMeters(math.NaN(), 77.0, 12.0, 77.0)))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(12.0, 77.0))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.0001, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.Inf(1)))
}

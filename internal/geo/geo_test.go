package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"vslope/internal/geo"
)

func TestDistanceMetersZero(t *testing.T) {
	d := geo.DistanceMeters(10, 20, 10, 20)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestDistanceMetersSymmetric(t *testing.T) {
	a := geo.DistanceMeters(10, 20, 10.01, 20.02)
	b := geo.DistanceMeters(10.01, 20.02, 10, 20)
	assert.InDelta(t, a, b, 1e-6)
}

func TestDistanceMetersKnownValue(t *testing.T) {
	// One degree of latitude is approximately 111.2km.
	d := geo.DistanceMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 500)
}

func TestInitialBearingDegNormalized(t *testing.T) {
	b := geo.InitialBearingDeg(0, 0, 1, 1)
	assert.GreaterOrEqual(t, b, 0.0)
	assert.Less(t, b, 360.0)
}

func TestInitialBearingDegDueNorth(t *testing.T) {
	b := geo.InitialBearingDeg(0, 0, 1, 0)
	assert.InDelta(t, 0, b, 1e-6)
}

func TestInitialBearingDegDueEast(t *testing.T) {
	b := geo.InitialBearingDeg(0, 0, 0, 1)
	assert.InDelta(t, 90, b, 1e-6)
}

func TestHeadingDiffDegRange(t *testing.T) {
	cases := [][2]float64{{0, 0}, {0, 180}, {10, 350}, {359, 1}, {90, 270}}
	for _, c := range cases {
		diff := geo.HeadingDiffDeg(c[0], c[1])
		assert.GreaterOrEqual(t, diff, 0.0)
		assert.LessOrEqual(t, diff, 180.0)
	}
}

func TestHeadingDiffDegWraparound(t *testing.T) {
	diff := geo.HeadingDiffDeg(359, 1)
	assert.InDelta(t, 2, diff, 1e-6)
}

func TestHeadingDiffDegOpposite(t *testing.T) {
	diff := geo.HeadingDiffDeg(0, 180)
	assert.True(t, math.Abs(diff-180) < 1e-9)
}

package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aungmyo/thazin/internal/geo"
)

func TestDistanceKM(t *testing.T) {
	// one degree of latitude is ~111 km
	d := geo.DistanceKM(0, 0, 1, 0)
	assert.InDelta(t, 111.19, d, 0.5)

	// Yangon -> Mandalay is roughly 580 km
	d = geo.DistanceKM(16.8409, 96.1735, 21.9588, 96.0891)
	assert.InDelta(t, 570, d, 20)
}

func TestDistanceKM_IdenticalPoints(t *testing.T) {
	assert.Equal(t, 0.0, geo.DistanceKM(16.8409, 96.1735, 16.8409, 96.1735))
}

func TestDistanceKM_Antipodal(t *testing.T) {
	// half the Earth's circumference, must not NaN from rounding
	d := geo.DistanceKM(0, 0, 0, 180)
	assert.False(t, d != d, "distance must not be NaN")
	assert.InDelta(t, 20015, d, 10)
}

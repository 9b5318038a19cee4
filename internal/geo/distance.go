package geo

import "math"

const earthRadiusKM = 6371.0

// DistanceKM returns the great-circle distance between two points using the
// haversine formula on a sphere of radius 6371 km. The cosine argument is
// clamped to [-1, 1] to guard against floating-point overshoot at identical
// or antipodal coordinates.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(v float64) float64 { return v * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	c := math.Sqrt(a)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return 2 * earthRadiusKM * math.Asin(c)
}

package station

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84SemiMajorAxis = 6378137.0
	wgs84Flattening    = 1.0 / 298.257223563
)

// eccentricitySquared = f * (2 - f)
var eccentricitySquared = wgs84Flattening * (2.0 - wgs84Flattening)

// GeodeticToECEF converts a geodetic position (degrees, meters) to
// Earth-Centered, Earth-Fixed Cartesian coordinates in meters.
func GeodeticToECEF(latDeg, lonDeg, altM float64) (x, y, z float64) {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Prime vertical radius of curvature.
	n := wgs84SemiMajorAxis / math.Sqrt(1.0-eccentricitySquared*sinLat*sinLat)

	x = (n + altM) * cosLat * math.Cos(lon)
	y = (n + altM) * cosLat * math.Sin(lon)
	z = (n*(1.0-eccentricitySquared) + altM) * sinLat
	return x, y, z
}

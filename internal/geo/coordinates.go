// Package geo converts between geodetic coordinates and the local Cartesian
// frame anchored at the vehicle's GPS origin.
//
// The local frame is east-north-up: x points east, y points north, z up.
package geo

import "math"

const earthRadiusMetres float64 = 6371000

// LocalWaypoint is a position in metres in the local frame with a heading in radians.
type LocalWaypoint struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

// GeodeticWaypoint is a GPS referenced position.
type GeodeticWaypoint struct {
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeM    float64 `json:"altitude_m"`
	YawRad       float64 `json:"yaw_rad"`
}

// Origin is the geodetic reference point of the local frame.
type Origin struct {
	LatitudeDeg  float64
	LongitudeDeg float64
}

// Transform is an azimuthal equidistant projection around an origin. It is
// immutable; a new origin means a new Transform.
type Transform struct {
	origin Origin
	refLat float64
	refLon float64
}

func NewTransform(origin Origin) *Transform {
	return &Transform{
		origin: origin,
		refLat: toRadians(origin.LatitudeDeg),
		refLon: toRadians(origin.LongitudeDeg),
	}
}

func (t *Transform) Origin() Origin {
	return t.origin
}

// ToLocal projects a geodetic waypoint into the local frame. Altitude and yaw
// are carried over unchanged.
func (t *Transform) ToLocal(g GeodeticWaypoint) LocalWaypoint {
	lat := toRadians(g.LatitudeDeg)
	lon := toRadians(g.LongitudeDeg)

	cosDLon := math.Cos(lon - t.refLon)
	arg := math.Sin(t.refLat)*math.Sin(lat) + math.Cos(t.refLat)*math.Cos(lat)*cosDLon
	arg = math.Max(-1, math.Min(1, arg))
	c := math.Acos(arg)

	k := 1.0
	if math.Abs(c) > 0 {
		k = c / math.Sin(c)
	}

	north := k * (math.Cos(t.refLat)*math.Sin(lat) - math.Sin(t.refLat)*math.Cos(lat)*cosDLon) * earthRadiusMetres
	east := k * math.Cos(lat) * math.Sin(lon-t.refLon) * earthRadiusMetres

	return LocalWaypoint{X: east, Y: north, Z: g.AltitudeM, Yaw: g.YawRad}
}

// ToGlobal is the inverse of ToLocal.
func (t *Transform) ToGlobal(l LocalWaypoint) GeodeticWaypoint {
	xRad := l.Y / earthRadiusMetres
	yRad := l.X / earthRadiusMetres
	c := math.Sqrt(xRad*xRad + yRad*yRad)
	sinC := math.Sin(c)
	cosC := math.Cos(c)

	lat := t.refLat
	lon := t.refLon
	if c != 0 {
		lat = math.Asin(cosC*math.Sin(t.refLat) + (xRad*sinC*math.Cos(t.refLat))/c)
		lon = t.refLon + math.Atan2(yRad*sinC, c*math.Cos(t.refLat)*cosC-xRad*math.Sin(t.refLat)*sinC)
	}

	return GeodeticWaypoint{
		LatitudeDeg:  toDegrees(lat),
		LongitudeDeg: toDegrees(lon),
		AltitudeM:    l.Z,
		YawRad:       l.Yaw,
	}
}

// YawFromQuaternion returns the heading of an orientation quaternion.
func YawFromQuaternion(x, y, z, w float64) float64 {
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}

// YawToQuaternion returns the z and w components of a pure heading rotation.
func YawToQuaternion(yaw float64) (z, w float64) {
	return math.Sin(yaw / 2), math.Cos(yaw / 2)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

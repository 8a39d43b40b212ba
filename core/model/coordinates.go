package model

import "math"

const earthRadiusMeters = 6371000.0

// Coordinates are geographic coordinates in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceTo returns the great-circle distance in meters.
func (c Coordinates) DistanceTo(o Coordinates) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := o.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (o.Lng - c.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Offset moves the point by north/east meters.
func (c Coordinates) Offset(northMeters, eastMeters float64) Coordinates {
	dLat := northMeters / earthRadiusMeters * 180 / math.Pi
	dLng := eastMeters / (earthRadiusMeters * math.Cos(c.Lat*math.Pi/180)) * 180 / math.Pi
	return Coordinates{Lat: c.Lat + dLat, Lng: c.Lng + dLng}
}

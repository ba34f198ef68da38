package transformer

import (
	"encoding/json"
	"fmt"
	"math"
)

// Document is a normalized, index-ready record. Values are string, float64,
// int64 or GeoPoint. Absent optional fields are missing keys, never nil.
type Document map[string]any

// GeoPoint is a coordinate pair ordered [longitude, latitude], the array form
// Elasticsearch accepts for geo_point fields.
type GeoPoint [2]float64

func NewGeoPoint(lon, lat float64) GeoPoint { return GeoPoint{lon, lat} }

func (g GeoPoint) Lon() float64 { return g[0] }
func (g GeoPoint) Lat() float64 { return g[1] }

// Valid reports whether both components are finite and within WGS84 bounds.
func (g GeoPoint) Valid() bool {
	for _, v := range g {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return g.Lon() >= -180 && g.Lon() <= 180 && g.Lat() >= -90 && g.Lat() <= 90
}

// UnmarshalJSON accepts the [lon, lat] array form only.
func (g *GeoPoint) UnmarshalJSON(b []byte) error {
	var arr []float64
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("geo point: %w", err)
	}
	if len(arr) != 2 {
		return fmt.Errorf("geo point: want 2 components, got %d", len(arr))
	}
	*g = GeoPoint{arr[0], arr[1]}
	return nil
}

package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
)

// GeoQueryVersion is the wire version of the sensor geo-query blob.
// The evaluating service rejects versions it does not know.
const GeoQueryVersion = 1

// GeoGeometry is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// GeoQuery is the tagged structure sent to the sensor evaluation service to
// select readings for one topic within a radius of a point.
type GeoQuery struct {
	Version  int         `json:"version"`
	Topic    string      `json:"topic"`
	Geometry GeoGeometry `json:"geometry"`
	Radius   float64     `json:"radius"`
}

// NewGeoQuery builds a version-1 point query for topic centred on the geofence.
func NewGeoQuery(topic string, fence Geofence) GeoQuery {
	return GeoQuery{
		Version: GeoQueryVersion,
		Topic:   topic,
		Geometry: GeoGeometry{
			Type:        "Point",
			Coordinates: [2]float64{fence.Longitude, fence.Latitude},
		},
		Radius: fence.RadiusMeters,
	}
}

// Encode serializes the query to the JSON string stored in the policy contract.
func (q GeoQuery) Encode() (string, error) {
	if q.Version != GeoQueryVersion {
		return "", fmt.Errorf("unsupported geo query version %d", q.Version)
	}
	data, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeGeoQuery parses a geo-query blob read back from a policy contract.
func DecodeGeoQuery(raw string) (GeoQuery, error) {
	var q GeoQuery
	if raw == "" {
		return q, errors.New("empty geo query")
	}
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return q, fmt.Errorf("invalid geo query: %w", err)
	}
	if q.Version != GeoQueryVersion {
		return q, fmt.Errorf("unsupported geo query version %d", q.Version)
	}
	if q.Geometry.Type != "Point" {
		return q, fmt.Errorf("unsupported geo query geometry %q", q.Geometry.Type)
	}
	return q, nil
}

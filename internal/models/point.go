package models

import "errors"

// Point is a GeoJSON point. The coordinate pair is carried through the whole
// pipeline untouched; the server never reorders or interprets the axes.
type Point struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// ErrInvalidPoint is returned when a coordinate pair fails shape validation.
var ErrInvalidPoint = errors.New("invalid point: want GeoJSON Point with a coordinate pair")

// Validate checks the GeoJSON shape: type "Point" and exactly two coordinates.
// Ranges are deliberately not checked.
func (p Point) Validate() error {
	if p.Type != "Point" || len(p.Coordinates) != 2 {
		return ErrInvalidPoint
	}
	return nil
}

// DefaultPoint is the placeholder position used before a surveyor has ever
// reported coordinates.
func DefaultPoint() Point {
	return Point{Type: "Point", Coordinates: []float64{0, 0}}
}

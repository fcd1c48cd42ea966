package domain

import "fmt"

// Coordinates is a WGS84 position in floating-point degrees
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects positions outside the WGS84 range
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("domain: coordinates out of range: %v,%v", c.Latitude, c.Longitude)
	}
	return nil
}

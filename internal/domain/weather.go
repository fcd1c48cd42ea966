package domain

import (
	"fmt"
	"time"
)

// UnitSystem selects the measurement units requested from the weather provider
type UnitSystem string

const (
	UnitMetric   UnitSystem = "metric"
	UnitImperial UnitSystem = "imperial"
)

// ParseUnitSystem validates a unit value coming from the view
func ParseUnitSystem(v string) (UnitSystem, error) {
	switch UnitSystem(v) {
	case UnitMetric, UnitImperial:
		return UnitSystem(v), nil
	}
	return "", fmt.Errorf("domain: unknown unit system %q", v)
}

// TemperatureSymbol returns the display suffix for temperatures
func (u UnitSystem) TemperatureSymbol() string {
	if u == UnitImperial {
		return "°F"
	}
	return "°C"
}

// WindSpeedUnit returns the display suffix for wind speed
func (u UnitSystem) WindSpeedUnit() string {
	if u == UnitImperial {
		return "mph"
	}
	return "m/s"
}

// Weather is a snapshot of current conditions for a location.
// Temperatures and wind speed are expressed in the unit system they were fetched with.
type Weather struct {
	Name        string     `json:"name"`
	Country     string     `json:"country,omitempty"`
	Temperature float64    `json:"temperature"`
	FeelsLike   float64    `json:"feels_like"`
	TempMax     float64    `json:"temp_max"`
	TempMin     float64    `json:"temp_min"`
	Humidity    int        `json:"humidity"`
	Pressure    int        `json:"pressure"`
	WindSpeed   float64    `json:"wind_speed"`
	Condition   string     `json:"condition"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Unit        UnitSystem `json:"unit"`
	Timestamp   time.Time  `json:"timestamp"`
	IsMock      bool       `json:"is_mock"`
}

package domain

import (
	"context"
	"time"
)

// Lookup records one successful weather search
type Lookup struct {
	Query     string     `json:"query"`
	Unit      UnitSystem `json:"unit"`
	Weather   Weather    `json:"weather"`
	SessionID string     `json:"session_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// LookupRepository defines the interface for the lookup log.
// It stores server-side search history only; view state is never persisted.
type LookupRepository interface {
	// SaveLookup persists a successful lookup
	SaveLookup(ctx context.Context, lookup Lookup) error

	// RecentLookups returns the newest lookups first
	RecentLookups(ctx context.Context, limit int) ([]Lookup, error)

	// Health checks storage connectivity
	Health(ctx context.Context) error
}

// WeatherClient fetches current conditions for a free-form location
type WeatherClient interface {
	Fetch(ctx context.Context, location string, unit UnitSystem) (Weather, error)
}

// GeolocationProvider resolves the user's position.
// Locate blocks until a position or failure is known, or ctx is done.
type GeolocationProvider interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// Package viewstate owns the view state of one weather lookup screen.
//
// State changes only through Reduce, a pure function from (State, Event) to the next
// State plus the side effects it asks for. Controller runs Reduce on a single goroutine
// and executes the effects: weather fetches, geolocation requests and the error
// expiry timer. Settlements of those effects come back as events, so every mutation
// is serialized through the same reducer.
package viewstate

import (
	"time"

	"github.com/weatherapp/backend/internal/domain"
)

const (
	// DefaultErrorMessage is shown when a fetch fails without a provider message
	DefaultErrorMessage = "An error occurred"

	// GeolocationUnsupportedMessage is shown when no geolocation capability exists
	GeolocationUnsupportedMessage = "Geolocation is not supported by this browser."

	// GeolocationFailedMessage is shown when a geolocation failure carries no message
	GeolocationFailedMessage = "Unable to retrieve your location."

	// DefaultErrorExpiry is how long a search error stays visible
	DefaultErrorExpiry = 3000 * time.Millisecond
)

// State is the complete view state of one screen
type State struct {
	LocationQuery      string              `json:"location_query"`
	Unit               domain.UnitSystem   `json:"unit"`
	Weather            *domain.Weather     `json:"weather,omitempty"`
	ErrorMessage       string              `json:"error_message,omitempty"`
	Loading            bool                `json:"loading"`
	Coordinates        *domain.Coordinates `json:"coordinates,omitempty"`
	GeolocationPending bool                `json:"geolocation_pending"`

	geolocationSupported bool
	errorExpiry          time.Duration

	fetchSeq uint64 // last issued fetch
	fetchIn  bool   // last issued fetch has not settled
	errorGen uint64 // bumped on every write of ErrorMessage
	geoSeq   uint64 // last issued geolocation request
}

// NewState returns the initial state: metric units, nothing loaded, map closed
func NewState(geolocationSupported bool) State {
	return State{
		Unit:                 domain.UnitMetric,
		geolocationSupported: geolocationSupported,
		errorExpiry:          DefaultErrorExpiry,
	}
}

// WithErrorExpiry overrides how long search errors stay visible
func (s State) WithErrorExpiry(d time.Duration) State {
	if d > 0 {
		s.errorExpiry = d
	}
	return s
}

// MapOpen reports whether the map is shown
func (s State) MapOpen() bool {
	return s.Coordinates != nil
}

// GeolocationRequest returns the id of the pending geolocation request, or 0 when none is pending
func (s State) GeolocationRequest() uint64 {
	if !s.GeolocationPending {
		return 0
	}
	return s.geoSeq
}

// HasError reports whether an error message is displayed
func (s State) HasError() bool {
	return s.ErrorMessage != ""
}

// GeolocationSupported reports whether a geolocation provider is available
func (s State) GeolocationSupported() bool {
	return s.geolocationSupported
}

func (s *State) setError(msg string) {
	s.ErrorMessage = msg
	s.errorGen++
}

func (s *State) clearError() {
	if s.ErrorMessage == "" {
		return
	}
	s.ErrorMessage = ""
	s.errorGen++
}

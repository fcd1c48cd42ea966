package viewstate

import (
	"time"

	"github.com/weatherapp/backend/internal/domain"
)

// Event is anything that can change the state: view actions and effect settlements
type Event interface {
	eventName() string
}

// QueryChanged is sent when the location input changes
type QueryChanged struct {
	Query string
}

// SearchRequested is sent when the search button is pressed
type SearchRequested struct{}

// KeyPressed is sent for key presses on the location input; only Enter searches
type KeyPressed struct {
	Key string
}

// SearchSettled is sent when a weather fetch completes.
// Query and Unit are the ones the fetch was issued with.
type SearchSettled struct {
	Seq     uint64
	Query   string
	Unit    domain.UnitSystem
	Weather *domain.Weather
	Failure *Failure
}

// ErrorDismissed is sent when the user closes the error alert
type ErrorDismissed struct{}

// ErrorExpired is sent by the expiry timer scheduled for error generation Gen
type ErrorExpired struct {
	Gen uint64
}

// UnitSelected is sent when a unit is picked from the dropdown
type UnitSelected struct {
	Unit domain.UnitSystem
}

// MapToggled is sent when the open/close map button is pressed
type MapToggled struct{}

// GeolocationSettled is sent when a geolocation request completes
type GeolocationSettled struct {
	Seq         uint64
	Coordinates *domain.Coordinates
	Failure     *Failure
}

// Failure carries a user-facing message; an empty Message means none was given
type Failure struct {
	Message string
}

func (QueryChanged) eventName() string       { return "query_changed" }
func (SearchRequested) eventName() string    { return "search_requested" }
func (KeyPressed) eventName() string         { return "key_pressed" }
func (SearchSettled) eventName() string      { return "search_settled" }
func (ErrorDismissed) eventName() string     { return "error_dismissed" }
func (ErrorExpired) eventName() string       { return "error_expired" }
func (UnitSelected) eventName() string       { return "unit_selected" }
func (MapToggled) eventName() string         { return "map_toggled" }
func (GeolocationSettled) eventName() string { return "geolocation_settled" }

// EventName returns a stable label for logs and metrics
func EventName(ev Event) string {
	return ev.eventName()
}

// Effect is a side effect requested by Reduce
type Effect interface {
	effect()
}

// FetchWeather asks for one weather fetch tagged with Seq
type FetchWeather struct {
	Seq   uint64
	Query string
	Unit  domain.UnitSystem
}

// ScheduleErrorExpiry asks for ErrorExpired{Gen} to be delivered after After
type ScheduleErrorExpiry struct {
	Gen   uint64
	After time.Duration
}

// RequestGeolocation asks the provider for a position tagged with Seq
type RequestGeolocation struct {
	Seq uint64
}

// CancelGeolocation abandons the request tagged with Seq
type CancelGeolocation struct {
	Seq uint64
}

// RecordLookup reports a search whose snapshot is now shown
type RecordLookup struct {
	Query   string
	Weather domain.Weather
}

func (FetchWeather) effect()        {}
func (ScheduleErrorExpiry) effect() {}
func (RequestGeolocation) effect()  {}
func (CancelGeolocation) effect()   {}
func (RecordLookup) effect()        {}

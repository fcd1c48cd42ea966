package presenter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/weatherapp/backend/internal/domain"
	"github.com/weatherapp/backend/internal/viewstate"
	"github.com/weatherapp/backend/pkg/utils"
)

const (
	// IconURLTemplate takes an OpenWeatherMap icon code
	IconURLTemplate = "https://openweathermap.org/img/wn/%s.png"

	// OpenStreetMap tiles for the embedded map
	TileURLTemplate = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	TileAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`

	// Map geometry and the marker popup
	MapZoom      = 13
	MapSizePx    = 300
	MapPopupText = "You are here."

	// Control labels
	OpenMapLabel      = "Open Map"
	CloseMapLabel     = "Close Map"
	SearchPlaceholder = "Search Location"
)

// UnitOption is one entry of the unit dropdown
type UnitOption struct {
	Value    domain.UnitSystem `json:"value"`
	Label    string            `json:"label"`
	Selected bool              `json:"selected"`
}

// Alert is the dismissible error banner
type Alert struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// InfoItem is one labelled value below the main temperature
type InfoItem struct {
	ClassName string `json:"class_name"`
	Value     string `json:"value"`
	Label     string `json:"label"`
}

// WeatherView is the formatted weather snapshot
type WeatherView struct {
	Name        string     `json:"name"`
	Temperature string     `json:"temperature"`
	IconURL     string     `json:"icon_url"`
	Condition   string     `json:"condition"`
	Items       []InfoItem `json:"items"`
}

// MapView describes the embedded map around the user's position
type MapView struct {
	Center      [2]float64 `json:"center"`
	Zoom        int        `json:"zoom"`
	WidthPx     int        `json:"width_px"`
	HeightPx    int        `json:"height_px"`
	TileURL     string     `json:"tile_url"`
	Attribution string     `json:"attribution"`
	Popup       string     `json:"popup"`
}

// View is everything the page renders for one state
type View struct {
	Query              string       `json:"query"`
	Placeholder        string       `json:"placeholder"`
	Loading            bool         `json:"loading"`
	Alert              *Alert       `json:"alert,omitempty"`
	Date               string       `json:"date"`
	Weather            *WeatherView `json:"weather,omitempty"`
	Units              []UnitOption `json:"units"`
	MapButton          string       `json:"map_button"`
	Map                *MapView     `json:"map,omitempty"`
	GeolocationPending bool         `json:"geolocation_pending"`
	GeolocationRequest uint64       `json:"geolocation_request,omitempty"`
	Footer             string       `json:"footer"`
}

// Presenter turns view state into display strings
type Presenter struct {
	Location *time.Location
}

// Build renders s as seen at now
func (p *Presenter) Build(s viewstate.State, now time.Time) View {
	if p.Location != nil {
		now = now.In(p.Location)
	}

	v := View{
		Query:              s.LocationQuery,
		Placeholder:        SearchPlaceholder,
		Loading:            s.Loading,
		Date:               FormatDate(now),
		Units:              UnitOptions(s.Unit),
		MapButton:          OpenMapLabel,
		GeolocationPending: s.GeolocationPending,
		GeolocationRequest: s.GeolocationRequest(),
		Footer:             fmt.Sprintf("© %d Weather app. All rights reserved.", now.Year()),
	}
	if s.HasError() {
		v.Alert = &Alert{Message: s.ErrorMessage, Type: "error"}
	}
	if s.Weather != nil {
		wv := p.weatherView(*s.Weather, s.Unit)
		v.Weather = &wv
	}
	if s.Coordinates != nil {
		v.MapButton = CloseMapLabel
		v.Map = mapView(*s.Coordinates)
	}
	return v
}

func (p *Presenter) weatherView(w domain.Weather, unit domain.UnitSystem) WeatherView {
	symbol := unit.TemperatureSymbol()
	return WeatherView{
		Name:        w.Name,
		Temperature: utils.FormatWhole(w.Temperature) + symbol,
		IconURL:     IconURL(w.Icon),
		Condition:   w.Condition,
		Items: []InfoItem{
			{ClassName: "feels", Value: utils.FormatWhole(w.FeelsLike) + symbol, Label: "Feels Like"},
			{ClassName: "humidity", Value: strconv.Itoa(w.Humidity) + "%", Label: "Humidity"},
			{ClassName: "temp_max", Value: utils.FormatWhole(w.TempMax) + symbol, Label: "Max Temp"},
			{ClassName: "wind", Value: utils.FormatWhole(w.WindSpeed) + unit.WindSpeedUnit(), Label: "Wind Speed"},
		},
	}
}

func mapView(c domain.Coordinates) *MapView {
	return &MapView{
		Center:      [2]float64{c.Latitude, c.Longitude},
		Zoom:        MapZoom,
		WidthPx:     MapSizePx,
		HeightPx:    MapSizePx,
		TileURL:     TileURLTemplate,
		Attribution: TileAttribution,
		Popup:       MapPopupText,
	}
}

// IconURL builds the provider image URL for an icon code
func IconURL(icon string) string {
	return fmt.Sprintf(IconURLTemplate, icon)
}

// UnitOptions lists the dropdown entries with the current unit selected
func UnitOptions(selected domain.UnitSystem) []UnitOption {
	return []UnitOption{
		{Value: domain.UnitMetric, Label: "Celsius (°C)", Selected: selected == domain.UnitMetric},
		{Value: domain.UnitImperial, Label: "Fahrenheit (°F)", Selected: selected == domain.UnitImperial},
	}
}

// FormatDate renders the header date, e.g. "Saturday, October 18, 2025"
func FormatDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}

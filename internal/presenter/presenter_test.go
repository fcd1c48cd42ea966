package presenter

import (
	"strings"
	"testing"
	"time"

	"github.com/weatherapp/backend/internal/domain"
	"github.com/weatherapp/backend/internal/viewstate"
)

var fixedNow = time.Date(2025, 10, 18, 9, 30, 0, 0, time.UTC)

func settledState(t *testing.T, unit domain.UnitSystem, w domain.Weather) viewstate.State {
	t.Helper()
	s := viewstate.NewState(true)
	s, _ = viewstate.Reduce(s, viewstate.UnitSelected{Unit: unit})
	s, effects := viewstate.Reduce(s, viewstate.SearchRequested{})
	fetch := effects[0].(viewstate.FetchWeather)
	s, _ = viewstate.Reduce(s, viewstate.SearchSettled{Seq: fetch.Seq, Unit: fetch.Unit, Weather: &w})
	return s
}

func TestBuildLondonMetric(t *testing.T) {
	s := settledState(t, domain.UnitMetric, domain.Weather{
		Name:        "London",
		Temperature: 15.5,
		FeelsLike:   14.2,
		Humidity:    72,
		TempMax:     17.0,
		WindSpeed:   5.5,
		Condition:   "Clouds",
		Icon:        "04d",
	})

	p := &Presenter{}
	v := p.Build(s, fixedNow)
	if v.Weather == nil {
		t.Fatal("expected weather view")
	}
	w := v.Weather
	if w.Name != "London" {
		t.Fatalf("expected London, got %q", w.Name)
	}
	if w.Temperature != "16°C" {
		t.Fatalf("expected 16°C, got %q", w.Temperature)
	}
	if w.Condition != "Clouds" {
		t.Fatalf("expected Clouds, got %q", w.Condition)
	}
	if !strings.HasSuffix(w.IconURL, "04d.png") {
		t.Fatalf("unexpected icon url %q", w.IconURL)
	}

	want := map[string]string{
		"Feels Like": "14°C",
		"Humidity":   "72%",
		"Max Temp":   "17°C",
		"Wind Speed": "6m/s",
	}
	for _, item := range w.Items {
		if want[item.Label] != item.Value {
			t.Errorf("%s: expected %q, got %q", item.Label, want[item.Label], item.Value)
		}
		delete(want, item.Label)
	}
	if len(want) != 0 {
		t.Fatalf("missing items: %v", want)
	}
}

func TestBuildImperialSymbols(t *testing.T) {
	s := settledState(t, domain.UnitImperial, domain.Weather{Name: "Austin", Temperature: 88.5, FeelsLike: 91.4, TempMax: 92, WindSpeed: 7.5})

	v := (&Presenter{}).Build(s, fixedNow)
	if v.Weather.Temperature != "89°F" {
		t.Fatalf("expected 89°F, got %q", v.Weather.Temperature)
	}
	if got := v.Weather.Items[3].Value; got != "8mph" {
		t.Fatalf("expected 8mph, got %q", got)
	}
	if !v.Units[1].Selected || v.Units[0].Selected {
		t.Fatalf("expected imperial selected, got %+v", v.Units)
	}
}

func TestBuildEmptyState(t *testing.T) {
	v := (&Presenter{}).Build(viewstate.NewState(true), fixedNow)
	if v.Weather != nil || v.Alert != nil || v.Map != nil || v.Loading {
		t.Fatalf("expected empty view, got %+v", v)
	}
	if v.MapButton != OpenMapLabel {
		t.Fatalf("expected %q, got %q", OpenMapLabel, v.MapButton)
	}
	if v.Date != "Saturday, October 18, 2025" {
		t.Fatalf("unexpected date %q", v.Date)
	}
	if v.Footer != "© 2025 Weather app. All rights reserved." {
		t.Fatalf("unexpected footer %q", v.Footer)
	}
	if v.Units[0].Label != "Celsius (°C)" || v.Units[1].Label != "Fahrenheit (°F)" {
		t.Fatalf("unexpected unit labels %+v", v.Units)
	}
}

func TestBuildAlertAndMap(t *testing.T) {
	s := viewstate.NewState(true)
	s, effects := viewstate.Reduce(s, viewstate.MapToggled{})
	req := effects[0].(viewstate.RequestGeolocation)
	if pending := (&Presenter{}).Build(s, fixedNow); !pending.GeolocationPending || pending.GeolocationRequest != req.Seq {
		t.Fatalf("expected pending request %d, got %+v", req.Seq, pending)
	}
	s, _ = viewstate.Reduce(s, viewstate.GeolocationSettled{
		Seq:         req.Seq,
		Coordinates: &domain.Coordinates{Latitude: 51.5074, Longitude: -0.1278},
	})

	v := (&Presenter{}).Build(s, fixedNow)
	if v.Map == nil {
		t.Fatal("expected map view")
	}
	if v.Map.Center != [2]float64{51.5074, -0.1278} || v.Map.Zoom != 13 || v.Map.Popup != "You are here." {
		t.Fatalf("unexpected map %+v", v.Map)
	}
	if v.MapButton != CloseMapLabel {
		t.Fatalf("expected %q, got %q", CloseMapLabel, v.MapButton)
	}

	unsupported, _ := viewstate.Reduce(viewstate.NewState(false), viewstate.MapToggled{})
	v = (&Presenter{}).Build(unsupported, fixedNow)
	if v.Alert == nil || v.Alert.Message != viewstate.GeolocationUnsupportedMessage || v.Alert.Type != "error" {
		t.Fatalf("unexpected alert %+v", v.Alert)
	}
}

func TestBuildUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*60*60)
	late := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)
	v := (&Presenter{Location: loc}).Build(viewstate.NewState(true), late)
	if v.Date != "Thursday, January 1, 2026" {
		t.Fatalf("unexpected date %q", v.Date)
	}
}

package viewstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weatherapp/backend/internal/domain"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers on the caller's goroutine
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type weatherFunc func(ctx context.Context, location string, unit domain.UnitSystem) (domain.Weather, error)

func (f weatherFunc) Fetch(ctx context.Context, location string, unit domain.UnitSystem) (domain.Weather, error) {
	return f(ctx, location, unit)
}

type geoFunc func(ctx context.Context) (domain.Coordinates, error)

func (f geoFunc) Locate(ctx context.Context) (domain.Coordinates, error) {
	return f(ctx)
}

// pendingFetch lets a test decide when and how a fetch completes
type pendingFetch struct {
	query string
	unit  domain.UnitSystem
	reply chan fetchResult
}

type fetchResult struct {
	weather domain.Weather
	err     error
}

func scriptedWeather(requests chan<- pendingFetch) weatherFunc {
	return func(ctx context.Context, location string, unit domain.UnitSystem) (domain.Weather, error) {
		p := pendingFetch{query: location, unit: unit, reply: make(chan fetchResult, 1)}
		select {
		case requests <- p:
		case <-ctx.Done():
			return domain.Weather{}, ctx.Err()
		}
		select {
		case r := <-p.reply:
			return r.weather, r.err
		case <-ctx.Done():
			return domain.Weather{}, ctx.Err()
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, w domain.WeatherClient, geo domain.GeolocationProvider, clock Clock) *Controller {
	t.Helper()
	c := NewController(w, geo, Options{Clock: clock, Logger: quietLogger()})
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, c *Controller, pred func(State) bool) State {
	t.Helper()
	ch, cancel := c.Subscribe()
	defer cancel()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-timeout:
			s, _ := c.Snapshot(context.Background())
			t.Fatalf("timed out waiting for state, last %+v", s)
		}
	}
}

func dispatch(t *testing.T, c *Controller, ev Event) State {
	t.Helper()
	s, err := c.Dispatch(context.Background(), ev)
	if err != nil {
		t.Fatalf("dispatch %T: %v", ev, err)
	}
	return s
}

func TestControllerSearchSuccess(t *testing.T) {
	var gotQuery string
	var gotUnit domain.UnitSystem
	w := weatherFunc(func(_ context.Context, location string, unit domain.UnitSystem) (domain.Weather, error) {
		gotQuery, gotUnit = location, unit
		return *london(), nil
	})
	c := newTestController(t, w, nil, newFakeClock())

	dispatch(t, c, QueryChanged{Query: "London"})
	s := dispatch(t, c, SearchRequested{})
	if !s.Loading {
		t.Fatal("expected loading right after the search request")
	}

	s = waitFor(t, c, func(s State) bool { return !s.Loading })
	if s.Weather == nil || s.Weather.Name != "London" {
		t.Fatalf("expected London, got %+v", s.Weather)
	}
	if s.LocationQuery != "" {
		t.Fatalf("expected query cleared, got %q", s.LocationQuery)
	}
	if gotQuery != "London" || gotUnit != domain.UnitMetric {
		t.Fatalf("unexpected fetch args %q %q", gotQuery, gotUnit)
	}
}

func TestControllerErrorExpiresAfterThreeSeconds(t *testing.T) {
	clock := newFakeClock()
	w := weatherFunc(func(context.Context, string, domain.UnitSystem) (domain.Weather, error) {
		return domain.Weather{}, &domain.ProviderError{Status: 404, Message: "city not found"}
	})
	c := newTestController(t, w, nil, clock)

	dispatch(t, c, KeyPressed{Key: EnterKey})
	waitFor(t, c, func(s State) bool { return s.ErrorMessage == "city not found" })

	clock.Advance(2999 * time.Millisecond)
	s, _ := c.Snapshot(context.Background())
	if s.ErrorMessage != "city not found" {
		t.Fatalf("error expired early, got %q", s.ErrorMessage)
	}

	clock.Advance(time.Millisecond)
	s, _ = c.Snapshot(context.Background())
	if s.HasError() {
		t.Fatalf("expected error expired at 3000ms, got %q", s.ErrorMessage)
	}
}

func TestControllerFailureWithoutMessage(t *testing.T) {
	w := weatherFunc(func(context.Context, string, domain.UnitSystem) (domain.Weather, error) {
		return domain.Weather{}, errors.New("dial tcp: connection refused")
	})
	c := newTestController(t, w, nil, newFakeClock())

	dispatch(t, c, SearchRequested{})
	s := waitFor(t, c, func(s State) bool { return !s.Loading })
	if s.ErrorMessage != DefaultErrorMessage {
		t.Fatalf("expected %q, got %q", DefaultErrorMessage, s.ErrorMessage)
	}
}

func TestControllerOverlappingFetches(t *testing.T) {
	requests := make(chan pendingFetch)
	settled := make(chan struct{}, 4)
	c := NewController(scriptedWeather(requests), nil, Options{
		Clock:  newFakeClock(),
		Logger: quietLogger(),
		OnEvent: func(name string) {
			if name == "search_settled" {
				settled <- struct{}{}
			}
		},
	})
	t.Cleanup(c.Close)

	dispatch(t, c, QueryChanged{Query: "Paris"})
	dispatch(t, c, SearchRequested{})
	first := <-requests

	dispatch(t, c, QueryChanged{Query: "London"})
	dispatch(t, c, SearchRequested{})
	second := <-requests
	if first.query != "Paris" || second.query != "London" {
		t.Fatalf("unexpected fetch order %q, %q", first.query, second.query)
	}

	second.reply <- fetchResult{weather: *london()}
	<-settled
	first.reply <- fetchResult{weather: domain.Weather{Name: "Paris", Unit: domain.UnitMetric}}
	<-settled

	s, _ := c.Snapshot(context.Background())
	if s.Weather == nil || s.Weather.Name != "London" {
		t.Fatalf("expected London to win, got %+v", s.Weather)
	}
	if s.Loading {
		t.Fatal("expected loading cleared")
	}
}

func TestControllerGeolocationToggle(t *testing.T) {
	var calls atomic.Int32
	geo := geoFunc(func(context.Context) (domain.Coordinates, error) {
		calls.Add(1)
		return domain.Coordinates{Latitude: 51.5074, Longitude: -0.1278}, nil
	})
	c := newTestController(t, weatherFunc(nil), geo, newFakeClock())

	dispatch(t, c, MapToggled{})
	s := waitFor(t, c, func(s State) bool { return s.MapOpen() })
	if s.Coordinates.Latitude != 51.5074 || s.Coordinates.Longitude != -0.1278 {
		t.Fatalf("unexpected coordinates %+v", s.Coordinates)
	}

	s = dispatch(t, c, MapToggled{})
	if s.MapOpen() || s.Coordinates != nil {
		t.Fatal("expected map closed")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("closing must not call the provider, got %d calls", n)
	}
}

func TestControllerGeolocationFailure(t *testing.T) {
	geo := geoFunc(func(context.Context) (domain.Coordinates, error) {
		return domain.Coordinates{}, &domain.GeolocationError{Message: "User denied Geolocation"}
	})
	clock := newFakeClock()
	c := newTestController(t, weatherFunc(nil), geo, clock)

	dispatch(t, c, MapToggled{})
	waitFor(t, c, func(s State) bool { return s.ErrorMessage == "User denied Geolocation" })

	clock.Advance(time.Minute)
	s, _ := c.Snapshot(context.Background())
	if s.ErrorMessage != "User denied Geolocation" || s.MapOpen() {
		t.Fatalf("geolocation error must persist with the map closed, got %+v", s)
	}
}

func TestControllerGeolocationUnsupported(t *testing.T) {
	c := newTestController(t, weatherFunc(nil), nil, newFakeClock())
	s := dispatch(t, c, MapToggled{})
	if s.ErrorMessage != GeolocationUnsupportedMessage || s.MapOpen() {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestControllerRetoggleCancelsPendingGeolocation(t *testing.T) {
	cancelled := make(chan struct{}, 1)
	var calls atomic.Int32
	geo := geoFunc(func(ctx context.Context) (domain.Coordinates, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			cancelled <- struct{}{}
			return domain.Coordinates{}, ctx.Err()
		}
		return domain.Coordinates{Latitude: 3, Longitude: 4}, nil
	})
	c := newTestController(t, weatherFunc(nil), geo, newFakeClock())

	dispatch(t, c, MapToggled{})
	dispatch(t, c, MapToggled{})

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("first request was not cancelled")
	}
	s := waitFor(t, c, func(s State) bool { return s.MapOpen() })
	if s.Coordinates.Latitude != 3 {
		t.Fatalf("unexpected coordinates %+v", s.Coordinates)
	}
}

func TestControllerCloseCancelsInFlightFetch(t *testing.T) {
	requests := make(chan pendingFetch)
	c := NewController(scriptedWeather(requests), nil, Options{Clock: newFakeClock(), Logger: quietLogger()})

	dispatch(t, c, SearchRequested{})
	<-requests

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an in-flight fetch")
	}

	if _, err := c.Dispatch(context.Background(), SearchRequested{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	c.Close()
}

func TestControllerOnLookup(t *testing.T) {
	got := make(chan string, 1)
	w := weatherFunc(func(context.Context, string, domain.UnitSystem) (domain.Weather, error) {
		return *london(), nil
	})
	c := NewController(w, nil, Options{
		Clock:  newFakeClock(),
		Logger: quietLogger(),
		OnLookup: func(_ context.Context, query string, w domain.Weather) {
			got <- query + "=" + w.Name
		},
	})
	t.Cleanup(c.Close)

	dispatch(t, c, QueryChanged{Query: "london"})
	dispatch(t, c, SearchRequested{})
	select {
	case v := <-got:
		if v != "london=London" {
			t.Fatalf("unexpected lookup %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lookup hook not called")
	}
}

// pageGeolocator stands in for a browser: Locate only holds the request open until
// the page reports through ReportGeolocation, which cancels it.
func pageGeolocator(released chan<- struct{}) geoFunc {
	return func(ctx context.Context) (domain.Coordinates, error) {
		<-ctx.Done()
		if released != nil {
			released <- struct{}{}
		}
		return domain.Coordinates{}, ctx.Err()
	}
}

func TestControllerReportRightAfterToggle(t *testing.T) {
	released := make(chan struct{}, 1)
	c := newTestController(t, weatherFunc(nil), pageGeolocator(released), newFakeClock())

	for i := 0; i < 200; i++ {
		s := dispatch(t, c, MapToggled{})
		if !s.GeolocationPending || s.GeolocationRequest() == 0 {
			t.Fatalf("round %d: expected pending request, got %+v", i, s)
		}
		s, err := c.ReportGeolocation(context.Background(), GeolocationReport{
			Request:     s.GeolocationRequest(),
			Coordinates: &domain.Coordinates{Latitude: 51.5074, Longitude: -0.1278},
		})
		if err != nil {
			t.Fatalf("round %d: report rejected: %v", i, err)
		}
		if !s.MapOpen() || s.GeolocationPending || s.Coordinates.Latitude != 51.5074 {
			t.Fatalf("round %d: expected map open, got %+v", i, s)
		}
		select {
		case <-released:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: provider request not released", i)
		}
		dispatch(t, c, MapToggled{}) // close for the next round
	}
}

func TestControllerReportAfterRetoggle(t *testing.T) {
	c := newTestController(t, weatherFunc(nil), pageGeolocator(nil), newFakeClock())

	first := dispatch(t, c, MapToggled{})
	second := dispatch(t, c, MapToggled{})
	if first.GeolocationRequest() == second.GeolocationRequest() {
		t.Fatal("re-toggle must issue a new request")
	}

	_, err := c.ReportGeolocation(context.Background(), GeolocationReport{
		Request:     first.GeolocationRequest(),
		Coordinates: &domain.Coordinates{Latitude: 1, Longitude: 1},
	})
	if !errors.Is(err, ErrGeolocationSuperseded) {
		t.Fatalf("expected ErrGeolocationSuperseded, got %v", err)
	}

	s, err := c.ReportGeolocation(context.Background(), GeolocationReport{
		Coordinates: &domain.Coordinates{Latitude: 40.7128, Longitude: -74.006},
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !s.MapOpen() || s.Coordinates.Latitude != 40.7128 {
		t.Fatalf("expected latest request to open the map, got %+v", s)
	}
}

func TestControllerReportWithoutPendingRequest(t *testing.T) {
	c := newTestController(t, weatherFunc(nil), pageGeolocator(nil), newFakeClock())

	_, err := c.ReportGeolocation(context.Background(), GeolocationReport{Coordinates: &domain.Coordinates{}})
	if !errors.Is(err, ErrNoGeolocationPending) {
		t.Fatalf("expected ErrNoGeolocationPending, got %v", err)
	}
}

func TestControllerReportFailure(t *testing.T) {
	c := newTestController(t, weatherFunc(nil), pageGeolocator(nil), newFakeClock())

	dispatch(t, c, MapToggled{})
	s, err := c.ReportGeolocation(context.Background(), GeolocationReport{Message: "User denied Geolocation"})
	if err != nil {
		t.Fatal(err)
	}
	if s.ErrorMessage != "User denied Geolocation" || s.MapOpen() || s.GeolocationPending {
		t.Fatalf("unexpected state %+v", s)
	}

	dispatch(t, c, MapToggled{})
	s, _ = c.ReportGeolocation(context.Background(), GeolocationReport{})
	if s.ErrorMessage != GeolocationFailedMessage {
		t.Fatalf("expected %q, got %q", GeolocationFailedMessage, s.ErrorMessage)
	}
}

func TestControllerSkipsLookupForOldUnit(t *testing.T) {
	requests := make(chan pendingFetch)
	settled := make(chan struct{}, 1)
	var lookups atomic.Int32
	c := NewController(scriptedWeather(requests), nil, Options{
		Clock:  newFakeClock(),
		Logger: quietLogger(),
		OnEvent: func(name string) {
			if name == "search_settled" {
				settled <- struct{}{}
			}
		},
		OnLookup: func(context.Context, string, domain.Weather) { lookups.Add(1) },
	})
	t.Cleanup(c.Close)

	dispatch(t, c, QueryChanged{Query: "London"})
	dispatch(t, c, SearchRequested{})
	p := <-requests
	dispatch(t, c, UnitSelected{Unit: domain.UnitImperial})
	p.reply <- fetchResult{weather: *london()}
	<-settled

	if n := lookups.Load(); n != 0 {
		t.Fatalf("snapshot never shown must not be recorded, got %d", n)
	}
}

package viewstate

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/weatherapp/backend/internal/domain"
)

var (
	// ErrClosed is returned by Dispatch after Close
	ErrClosed = errors.New("viewstate: controller closed")

	// ErrNoGeolocationPending is returned for a position report nobody asked for
	ErrNoGeolocationPending = errors.New("viewstate: no geolocation request pending")

	// ErrGeolocationSuperseded is returned for a report answering a replaced request
	ErrGeolocationSuperseded = errors.New("viewstate: geolocation request superseded")
)

// Options tunes a Controller. The zero value is usable.
type Options struct {
	Clock       Clock
	Logger      *slog.Logger
	ErrorExpiry time.Duration

	// OnEvent is called on the loop goroutine for every applied event
	OnEvent func(name string)

	// OnLookup is called on the loop goroutine for every snapshot the view shows.
	// It must not block.
	OnLookup func(ctx context.Context, query string, w domain.Weather)
}

// GeolocationReport is the page's answer to the pending geolocation request.
// Without Coordinates it is a failure carrying Message.
type GeolocationReport struct {
	// Request is the id from State.GeolocationRequest; 0 answers whichever request is pending
	Request     uint64
	Coordinates *domain.Coordinates
	Message     string
}

type result struct {
	state State
	err   error
}

type envelope struct {
	ev Event
	// resolve builds the event from the current state when ev is nil
	resolve func(State) (Event, error)
	reply   chan result
}

// peek reads the state through the loop without changing it
type peek struct{}

func (peek) eventName() string { return "peek" }

// Controller owns one State and serializes every transition on a single goroutine
type Controller struct {
	weather domain.WeatherClient
	geo     domain.GeolocationProvider
	clock   Clock
	logger  *slog.Logger
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	events chan envelope
	done   chan struct{}
	wg     sync.WaitGroup // effect goroutines

	// loop-owned
	state     State
	expiry    Timer
	geoCancel map[uint64]context.CancelFunc

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
	latest  State

	closeOnce sync.Once
}

// NewController starts a controller. A nil geo means the platform has no geolocation.
func NewController(weather domain.WeatherClient, geo domain.GeolocationProvider, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := NewState(geo != nil).WithErrorExpiry(opts.ErrorExpiry)

	c := &Controller{
		weather:   weather,
		geo:       geo,
		clock:     opts.Clock,
		logger:    opts.Logger,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan envelope),
		done:      make(chan struct{}),
		state:     state,
		geoCancel: make(map[uint64]context.CancelFunc),
		subs:      make(map[int]chan State),
		latest:    state,
	}
	go c.loop()
	return c
}

// Dispatch applies a view event and returns the resulting state.
// Effects started by the event settle later and are published to subscribers.
func (c *Controller) Dispatch(ctx context.Context, ev Event) (State, error) {
	return c.send(ctx, envelope{ev: ev})
}

// ReportGeolocation settles the pending geolocation request with the page's answer.
// The request is matched on the loop, so a report sent right after the MapToggled
// reply always finds it.
func (c *Controller) ReportGeolocation(ctx context.Context, r GeolocationReport) (State, error) {
	return c.send(ctx, envelope{resolve: func(s State) (Event, error) {
		if !s.GeolocationPending {
			return nil, ErrNoGeolocationPending
		}
		if r.Request != 0 && r.Request != s.geoSeq {
			return nil, ErrGeolocationSuperseded
		}
		ev := GeolocationSettled{Seq: s.geoSeq}
		if r.Coordinates != nil {
			coords := *r.Coordinates
			ev.Coordinates = &coords
		} else {
			ev.Failure = &Failure{Message: r.Message}
		}
		return ev, nil
	}})
}

func (c *Controller) send(ctx context.Context, env envelope) (State, error) {
	env.reply = make(chan result, 1)
	select {
	case c.events <- env:
	case <-c.done:
		return State{}, ErrClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	// The loop always answers an accepted envelope before it can exit.
	r := <-env.reply
	return r.state, r.err
}

// Snapshot returns the current state
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	return c.Dispatch(ctx, peek{})
}

// Subscribe returns a channel that always holds the most recent state.
// Intermediate states may be skipped by slow readers. Call cancel to unsubscribe.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.latest
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Done is closed once the controller has shut down
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close cancels in-flight fetches and geolocation requests, stops the expiry timer
// and waits for background goroutines. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		c.wg.Wait()
	})
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case env := <-c.events:
			c.apply(env)
		case <-c.ctx.Done():
			c.shutdown()
			return
		}
	}
}

func (c *Controller) apply(env envelope) {
	ev := env.ev
	if env.resolve != nil {
		var err error
		if ev, err = env.resolve(c.state); err != nil {
			env.reply <- result{state: c.state, err: err}
			return
		}
	}

	prev := c.state
	next, effects := Reduce(c.state, ev)
	c.state = next

	if _, ok := ev.(peek); !ok {
		name := EventName(ev)
		c.logger.Debug("view event applied", "event", name, "effects", len(effects))
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(name)
		}
	}
	if settled, ok := ev.(GeolocationSettled); ok {
		c.releaseGeolocation(settled.Seq)
	}

	for _, eff := range effects {
		c.run(eff)
	}

	if env.reply != nil {
		env.reply <- result{state: next}
	}
	if !reflect.DeepEqual(prev, next) {
		c.publish(next)
	}
}

func (c *Controller) run(eff Effect) {
	switch eff := eff.(type) {
	case FetchWeather:
		c.fetch(eff)
	case ScheduleErrorExpiry:
		// Earlier timers refer to an older generation or to an absent error.
		if c.expiry != nil {
			c.expiry.Stop()
		}
		gen := eff.Gen
		c.expiry = c.clock.AfterFunc(eff.After, func() {
			c.post(ErrorExpired{Gen: gen})
		})
	case RequestGeolocation:
		c.locate(eff)
	case CancelGeolocation:
		c.releaseGeolocation(eff.Seq)
	case RecordLookup:
		if c.opts.OnLookup != nil {
			c.opts.OnLookup(c.ctx, eff.Query, eff.Weather)
		}
	}
}

func (c *Controller) fetch(eff FetchWeather) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ev := SearchSettled{Seq: eff.Seq, Query: eff.Query, Unit: eff.Unit}
		w, err := c.weather.Fetch(c.ctx, eff.Query, eff.Unit)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("weather fetch failed", "query", eff.Query, "unit", eff.Unit, "error", err)
			ev.Failure = &Failure{Message: domain.FailureMessage(err)}
		} else {
			ev.Weather = &w
		}
		c.post(ev)
	}()
}

func (c *Controller) locate(eff RequestGeolocation) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.geoCancel[eff.Seq] = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ev := GeolocationSettled{Seq: eff.Seq}
		coords, err := c.geo.Locate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("geolocation failed", "error", err)
			ev.Failure = &Failure{Message: domain.FailureMessage(err)}
		} else {
			ev.Coordinates = &coords
		}
		c.post(ev)
	}()
}

func (c *Controller) releaseGeolocation(seq uint64) {
	if cancel, ok := c.geoCancel[seq]; ok {
		cancel()
		delete(c.geoCancel, seq)
	}
}

// post delivers a settlement to the loop; it is dropped once the controller is closing
func (c *Controller) post(ev Event) {
	select {
	case c.events <- envelope{ev: ev}:
	case <-c.ctx.Done():
	}
}

func (c *Controller) publish(s State) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.latest = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (c *Controller) shutdown() {
	if c.expiry != nil {
		c.expiry.Stop()
	}
	for seq, cancel := range c.geoCancel {
		cancel()
		delete(c.geoCancel, seq)
	}
}

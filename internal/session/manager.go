// Package session keeps one view controller per connected client.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/weatherapp/backend/internal/config"
	"github.com/weatherapp/backend/internal/domain"
	"github.com/weatherapp/backend/internal/service"
	"github.com/weatherapp/backend/internal/viewstate"
)

// ErrSessionNotFound is returned for unknown or closed session ids
var ErrSessionNotFound = errors.New("session: not found")

// LookupSink receives successful lookups
type LookupSink interface {
	Record(sessionID, query string, w domain.Weather)
}

// Session is one mounted view
type Session struct {
	ID         string
	Controller *viewstate.Controller
	CreatedAt  time.Time

	// BrowserReports is set in browser geolocation mode. The page answers
	// geolocation requests through Controller.ReportGeolocation.
	BrowserReports bool

	lastSeen atomic.Int64 // unix nanos
	streams  atomic.Int32
}

// Touch marks the session as used now
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Streams returns the number of attached event streams
func (s *Session) Streams() int {
	return int(s.streams.Load())
}

// Attach registers a live event stream. Sessions with streams are never reaped.
func (s *Session) Attach() (detach func()) {
	s.streams.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.streams.Add(-1) })
	}
}

// Options configures a Manager
type Options struct {
	Weather         domain.WeatherClient
	GeolocationMode string
	IPAPIBaseURL    string
	ErrorExpiry     time.Duration
	IdleTTL         time.Duration

	Lookups LookupSink
	Metrics *service.Metrics
	Logger  *slog.Logger
	Clock   viewstate.Clock
}

// Manager owns every live session
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = viewstate.RealClock{}
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	return &Manager{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create mounts a new view. clientIP is used by the ip geolocation mode.
func (m *Manager) Create(ctx context.Context, clientIP string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: m.opts.Clock.Now(),
	}
	s.Touch(s.CreatedAt)

	var geo domain.GeolocationProvider
	switch m.opts.GeolocationMode {
	case config.GeolocationBrowser, "":
		s.BrowserReports = true
		geo = service.NewBrowserGeolocator()
	case config.GeolocationIP:
		geo = service.NewIPGeolocator(m.opts.IPAPIBaseURL, clientIP)
	}

	logger := m.logger.With("session_id", s.ID)
	s.Controller = viewstate.NewController(m.opts.Weather, geo, viewstate.Options{
		Clock:       m.opts.Clock,
		Logger:      logger,
		ErrorExpiry: m.opts.ErrorExpiry,
		OnEvent:     m.opts.Metrics.ObserveEvent,
		OnLookup: func(_ context.Context, query string, w domain.Weather) {
			if m.opts.Lookups != nil {
				m.opts.Lookups.Record(s.ID, query, w)
			}
		},
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Controller.Close()
		return nil, viewstate.ErrClosed
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.opts.Metrics.SessionOpened()
	logger.Info("session created", "geolocation", m.opts.GeolocationMode)
	return s, nil
}

// Get returns a live session and marks it as used
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Touch(m.opts.Clock.Now())
	return s, nil
}

// Close unmounts a session, cancelling its pending work
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.closeSession(s, "closed")
	return nil
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions idle since before now minus the idle TTL and returns how many it closed
func (m *Manager) Reap(now time.Time) int {
	cutoff := now.Add(-m.opts.IdleTTL)

	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.streams.Load() == 0 && s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.closeSession(s, "idle")
	}
	return len(stale)
}

// RunJanitor reaps idle sessions until ctx is done
func (m *Manager) RunJanitor(ctx context.Context) {
	interval := m.opts.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reap(m.opts.Clock.Now()); n > 0 {
				m.logger.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

// Shutdown closes every session. Later Create calls fail.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			m.closeSession(s, "shutdown")
		}(s)
	}
	wg.Wait()
}

func (m *Manager) closeSession(s *Session, reason string) {
	s.Controller.Close()
	m.opts.Metrics.SessionClosed()
	m.logger.Info("session closed", "session_id", s.ID, "reason", reason)
}

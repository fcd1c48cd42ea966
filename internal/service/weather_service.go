package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weatherapp/backend/internal/domain"
	"github.com/weatherapp/backend/pkg/utils"
)

// DefaultOpenWeatherBaseURL is the public OpenWeatherMap API root
const DefaultOpenWeatherBaseURL = "https://api.openweathermap.org"

// WeatherConfig configures a WeatherService
type WeatherConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Cache   Cache
	Metrics *Metrics
}

// WeatherService fetches current conditions from OpenWeatherMap
type WeatherService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      Cache
	metrics    *Metrics
	tracer     trace.Tracer
}

// NewWeatherService creates a new weather service
func NewWeatherService(cfg WeatherConfig) *WeatherService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenWeatherBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WeatherService{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("github.com/weatherapp/backend/internal/service"),
	}
}

// OpenWeatherResponse represents the OpenWeatherMap current weather response
type OpenWeatherResponse struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// openWeatherError is the body OpenWeatherMap sends with non-200 statuses.
// cod is a string on some endpoints and a number on others, so it is not decoded.
type openWeatherError struct {
	Message string `json:"message"`
}

// Fetch returns current conditions for location in the requested units.
// The location is forwarded as typed; validation is left to the provider.
func (s *WeatherService) Fetch(ctx context.Context, location string, unit domain.UnitSystem) (domain.Weather, error) {
	ctx, span := s.tracer.Start(ctx, "weather.fetch", trace.WithAttributes(
		attribute.String("weather.location", location),
		attribute.String("weather.unit", string(unit)),
	))
	defer span.End()

	key := CacheKey(location, unit)
	if s.cache != nil {
		if w, ok := s.cache.Get(ctx, key); ok {
			span.SetAttributes(attribute.Bool("weather.cache_hit", true))
			s.metrics.observeFetch(outcomeCacheHit, 0)
			return w, nil
		}
	}

	start := time.Now()
	w, err := s.fetch(ctx, location, unit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weather fetch failed")
		s.metrics.observeFetch(outcomeError, time.Since(start))
		return domain.Weather{}, err
	}
	s.metrics.observeFetch(outcomeSuccess, time.Since(start))

	if s.cache != nil {
		s.cache.Set(ctx, key, w)
	}
	return w, nil
}

func (s *WeatherService) fetch(ctx context.Context, location string, unit domain.UnitSystem) (domain.Weather, error) {
	// Return mock data if no API key
	if s.apiKey == "" {
		return s.getMockWeather(location, unit)
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", s.apiKey)
	q.Set("units", string(unit))
	endpoint := s.baseURL + "/data/2.5/weather?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Weather{}, fmt.Errorf("weather: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Weather{}, fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Weather{}, decodeProviderError(resp)
	}

	var owResp OpenWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&owResp); err != nil {
		return domain.Weather{}, fmt.Errorf("weather: failed to decode response: %w", err)
	}

	weather := domain.Weather{
		Name:        owResp.Name,
		Country:     owResp.Sys.Country,
		Temperature: owResp.Main.Temp,
		FeelsLike:   owResp.Main.FeelsLike,
		TempMax:     owResp.Main.TempMax,
		TempMin:     owResp.Main.TempMin,
		Humidity:    owResp.Main.Humidity,
		Pressure:    owResp.Main.Pressure,
		WindSpeed:   owResp.Wind.Speed,
		Unit:        unit,
		Timestamp:   time.Now(),
	}
	if len(owResp.Weather) > 0 {
		weather.Condition = owResp.Weather[0].Main
		weather.Description = owResp.Weather[0].Description
		weather.Icon = owResp.Weather[0].Icon
	}

	return weather, nil
}

func decodeProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var owErr openWeatherError
	_ = json.Unmarshal(body, &owErr)
	return &domain.ProviderError{Status: resp.StatusCode, Message: owErr.Message}
}

// getMockWeather returns a stable snapshot for local development without an API key
func (s *WeatherService) getMockWeather(location string, unit domain.UnitSystem) (domain.Weather, error) {
	name := strings.TrimSpace(location)
	if name == "" {
		return domain.Weather{}, &domain.ProviderError{Status: http.StatusBadRequest, Message: "Nothing to geocode"}
	}
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return domain.Weather{}, &domain.ProviderError{Status: http.StatusNotFound, Message: "city not found"}
	}
	r := []rune(name)
	name = strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))

	temp, feels, hi, lo, wind := 12.0, 10.0, 14.0, 9.0, 3.5
	if unit == domain.UnitImperial {
		temp, feels, hi, lo = celsiusToFahrenheit(temp), celsiusToFahrenheit(feels), celsiusToFahrenheit(hi), celsiusToFahrenheit(lo)
		wind = utils.RoundTo(wind*2.23694, 2) // m/s to mph
	}

	return domain.Weather{
		Name:        name,
		Temperature: temp,
		FeelsLike:   feels,
		TempMax:     hi,
		TempMin:     lo,
		Humidity:    65,
		Pressure:    1015,
		WindSpeed:   wind,
		Condition:   "Clouds",
		Description: "overcast clouds",
		Icon:        "04d",
		Unit:        unit,
		Timestamp:   time.Now(),
		IsMock:      true,
	}, nil
}

func celsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

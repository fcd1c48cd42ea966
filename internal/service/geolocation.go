package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/weatherapp/backend/internal/domain"
)

// DefaultIPAPIBaseURL is the public ip-api.com endpoint
const DefaultIPAPIBaseURL = "http://ip-api.com"

// BrowserGeolocator stands for the page's navigator.geolocation.
// Locate holds the request open until ctx ends. The page answers through
// viewstate.Controller.ReportGeolocation, which settles the request on the
// controller loop and cancels this wait.
type BrowserGeolocator struct{}

func NewBrowserGeolocator() *BrowserGeolocator {
	return &BrowserGeolocator{}
}

func (g *BrowserGeolocator) Locate(ctx context.Context) (domain.Coordinates, error) {
	<-ctx.Done()
	return domain.Coordinates{}, ctx.Err()
}

// IPGeolocator approximates the user's position from their IP address
type IPGeolocator struct {
	baseURL    string
	ip         string
	httpClient *http.Client
}

// NewIPGeolocator creates a locator for ip. An empty ip locates the server's own address.
func NewIPGeolocator(baseURL, ip string) *IPGeolocator {
	if baseURL == "" {
		baseURL = DefaultIPAPIBaseURL
	}
	return &IPGeolocator{
		baseURL: strings.TrimRight(baseURL, "/"),
		ip:      ip,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (g *IPGeolocator) Locate(ctx context.Context) (domain.Coordinates, error) {
	endpoint := g.baseURL + "/json/" + url.PathEscape(g.ip) + "?fields=status,message,lat,lon"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("geolocation: failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("geolocation: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Coordinates{}, fmt.Errorf("geolocation: lookup returned status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Coordinates{}, fmt.Errorf("geolocation: failed to decode response: %w", err)
	}
	if body.Status != "success" {
		return domain.Coordinates{}, &domain.GeolocationError{Message: body.Message}
	}
	return domain.Coordinates{Latitude: body.Lat, Longitude: body.Lon}, nil
}

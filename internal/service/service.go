package service

import (
	"github.com/weatherapp/backend/internal/domain"
)

var (
	_ domain.WeatherClient       = (*WeatherService)(nil)
	_ domain.GeolocationProvider = (*BrowserGeolocator)(nil)
	_ domain.GeolocationProvider = (*IPGeolocator)(nil)
	_ Cache                      = (*MemoryCache)(nil)
	_ Cache                      = (*RedisCache)(nil)
)

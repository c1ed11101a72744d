package external

import (
	"context"

	"breathewatch/internal/types"
)

// EmailProvider transmits pre-rendered email content.
type EmailProvider interface {
	// Send returns the provider's message ID on success.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)

	// IsConfigured reports whether Send actually delivers mail. Stub
	// providers return false.
	IsConfigured() bool

	// Name identifies the provider in logs and health output.
	Name() string
}

// WeatherProvider supplies current conditions, forecast and air quality for
// a coordinate, and resolves place names to coordinates.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error)
	Forecast(ctx context.Context, lat, lon float64) ([]types.ForecastPoint, error)
	AirQuality(ctx context.Context, lat, lon float64) (*types.AirQuality, error)

	// Geocode returns the best match for a place name. Returns an AppError
	// with ErrCodeNotFoundLocation when nothing matches.
	Geocode(ctx context.Context, query string) (*types.Location, error)

	// IsConfigured reports whether responses come from the live provider.
	IsConfigured() bool

	Name() string
}

package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

// Geocoder resolves a city to coordinates.
type Geocoder interface {
	Locate(ctx context.Context, city, country string) (lat, lon float64, err error)
}

// GoogleGeocoder uses the Google Maps Geocoding API through kelvins/geocoder.
type GoogleGeocoder struct {
	apiKey string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey}
}

// geocoderMu guards the package-level API key of the geocoder library.
var geocoderMu sync.Mutex

func (g *GoogleGeocoder) Locate(ctx context.Context, city, country string) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	geocoderMu.Lock()
	defer geocoderMu.Unlock()

	geocoder.ApiKey = g.apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    city,
		Country: country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s, %s: %w", city, country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}

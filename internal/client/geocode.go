package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// GeocodingClient turns an address into coordinates.
type GeocodingClient struct {
	caller
	url    string
	apiKey string
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NewGeocodingClient creates a client for the geocoding endpoint at url.
func NewGeocodingClient(url, apiKey string, timeout time.Duration) *GeocodingClient {
	return &GeocodingClient{caller: newCaller("geocode", timeout), url: url, apiKey: apiKey}
}

// Geocode returns the first result's location. ok is false when the service
// reports no results.
func (c *GeocodingClient) Geocode(ctx context.Context, address string) (models.Coordinate, bool, error) {
	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		u, err := url.Parse(c.url)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("address", address)
		q.Set("key", c.apiKey)
		q.Set("language", "en")
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	})
	if err != nil {
		return models.Coordinate{}, false, err
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Coordinate{}, false, fmt.Errorf("failed to parse geocode response: %w", err)
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return models.Coordinate{}, false, nil
	case "REQUEST_DENIED":
		return models.Coordinate{}, false, fmt.Errorf("geocode: %w: %s", ErrInvalidAPIKey, resp.ErrorMessage)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return models.Coordinate{}, false, fmt.Errorf("geocode: %w", ErrRateLimited)
	default:
		return models.Coordinate{}, false, fmt.Errorf("geocode: %w: status %s", ErrUpstreamFailure, resp.Status)
	}
	if len(resp.Results) == 0 {
		return models.Coordinate{}, false, nil
	}
	loc := resp.Results[0].Geometry.Location
	return models.Coordinate{Lat: loc.Lat, Lon: loc.Lng}, true, nil
}

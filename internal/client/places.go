package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const placesFieldMask = "places.displayName,places.formattedAddress"

// PlacesClient resolves free-text place names through a text search API.
type PlacesClient struct {
	caller
	url    string
	apiKey string
}

type placesResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
	} `json:"places"`
}

// NewPlacesClient creates a client for the text search endpoint at url.
func NewPlacesClient(url, apiKey string, timeout time.Duration) *PlacesClient {
	return &PlacesClient{caller: newCaller("places", timeout), url: url, apiKey: apiKey}
}

// Resolve returns the display name and formatted address of the best match
// for query. ok is false when the search has no results.
func (c *PlacesClient) Resolve(ctx context.Context, query string) (display, formatted string, ok bool, err error) {
	payload, err := json.Marshal(map[string]string{"textQuery": query})
	if err != nil {
		return "", "", false, fmt.Errorf("encode places request: %w", err)
	}

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-Api-Key", c.apiKey)
		req.Header.Set("X-Goog-FieldMask", placesFieldMask)
		return req, nil
	})
	if err != nil {
		return "", "", false, err
	}

	var resp placesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", false, fmt.Errorf("failed to parse places response: %w", err)
	}
	if len(resp.Places) == 0 {
		return "", "", false, nil
	}
	p := resp.Places[0]
	return strings.TrimSpace(p.DisplayName.Text), strings.TrimSpace(p.FormattedAddress), true, nil
}

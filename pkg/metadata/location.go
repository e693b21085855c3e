package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/psantana5/worker-metadata/pkg/models"
)

const (
	// DefaultLocationURL is the geolocation lookup endpoint
	DefaultLocationURL = "https://ifconfig.co/json"
	// DefaultLocationTimeout bounds the single outbound lookup
	DefaultLocationTimeout = 5 * time.Second

	maxLocationBody = 64 * 1024
)

// geoResponse mirrors the fields we keep from the lookup service
type geoResponse struct {
	IP        *string  `json:"ip"`
	City      *string  `json:"city"`
	Region    *string  `json:"region"`
	Country   *string  `json:"country"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// locationClient performs one geolocation lookup per call
type locationClient struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

func (c *locationClient) lookup(ctx context.Context) (*models.GeoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch geolocation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geolocation lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var data geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLocationBody)).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode geolocation: %w", err)
	}

	return &models.GeoInfo{
		IP:        data.IP,
		City:      data.City,
		Region:    data.Region,
		Country:   data.Country,
		Latitude:  data.Latitude,
		Longitude: data.Longitude,
	}, nil
}

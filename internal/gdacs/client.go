package gdacs

import (
	"context"
	"fmt"

	"resty.dev/v3"

	"github.com/vk/stormrisk/internal/config"
	"github.com/vk/stormrisk/internal/ctxlog"
)

// DefaultBaseURL is the GDACS polygon endpoint serving event geometry.
const DefaultBaseURL = "https://www.gdacs.org/gdacsapi/api/polygons/getgeometry"

// Client fetches cyclone wind-buffer polygons from the GDACS API.
type Client struct {
	rc      *resty.Client
	baseURL string
}

// NewClient creates a GDACS client. An empty baseURL selects the public
// GDACS endpoint; tests point it at a local server.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		rc:      resty.New(),
		baseURL: baseURL,
	}
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	return c.rc.Close()
}

// FetchBands downloads the event's geometry and returns its wind-speed
// buffers, ascending by speed. Features without a km/h label (uncertainty
// cones, track lines) are discarded.
func (c *Client) FetchBands(ctx context.Context, event config.Cyclone) ([]Band, error) {
	logger := ctxlog.FromContext(ctx)

	url, err := event.ResolveURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	logger.Debug("Fetching cyclone geometry.", "url", url)

	res, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GDACS request failed: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("GDACS request failed with status %d", res.StatusCode())
	}

	bands, err := ParseBands(ctx, res.Bytes())
	if err != nil {
		return nil, err
	}
	logger.Info("Cyclone wind buffers fetched.", "bands", len(bands))
	return bands, nil
}

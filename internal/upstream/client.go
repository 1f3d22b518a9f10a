package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yegors/tailtrack/pkg/logger"
)

// ErrAirportNotFound is returned when the provider has no record for an airport code.
var ErrAirportNotFound = errors.New("airport not found")

// Client is responsible for fetching flight data from the upstream provider
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

// NewClient creates a new upstream flight-data client
func NewClient(baseURL, apiKey string, timeout time.Duration, loggerObj *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: loggerObj.Named("upstream-cli"),
	}
}

// Flights fetches all flight records the provider knows for a tail number.
// An empty slice is a valid result and must be treated as "no data", not an error.
func (c *Client) Flights(ctx context.Context, tailNumber string) ([]FlightRecord, error) {
	urlStr := fmt.Sprintf("%s/flights/%s", c.baseURL, url.PathEscape(tailNumber))

	body, err := c.get(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	var envelope flightsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse flights JSON: %w", err)
	}

	c.logger.Debug("Fetched flights for tail number",
		logger.String("tail_number", tailNumber),
		logger.Int("flight_count", len(envelope.Flights)),
	)

	return envelope.Flights, nil
}

// Positions fetches the position history for a flight by its provider id
func (c *Client) Positions(ctx context.Context, flightID string) (*PositionBatch, error) {
	urlStr := fmt.Sprintf("%s/flights/%s/track", c.baseURL, url.PathEscape(flightID))

	body, err := c.get(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	var batch PositionBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse positions JSON: %w", err)
	}

	c.logger.Debug("Fetched position batch",
		logger.String("flight_id", flightID),
		logger.Int("position_count", len(batch.Positions)),
	)

	return &batch, nil
}

// Airport fetches airport metadata by code. Returns ErrAirportNotFound when
// the provider has no record for the code.
func (c *Client) Airport(ctx context.Context, code string) (*AirportDetail, error) {
	urlStr := fmt.Sprintf("%s/airports/%s", c.baseURL, url.PathEscape(code))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrAirportNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var detail AirportDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("failed to parse airport JSON: %w", err)
	}
	if detail.Code == "" {
		detail.Code = code
	}

	return &detail, nil
}

// get performs a GET request against the provider and returns the response body
func (c *Client) get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		c.logger.Error("Failed to create request", logger.Error(err), logger.String("url", urlStr))
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to execute request", logger.Error(err), logger.String("url", urlStr))
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Unexpected status code",
			logger.Int("status_code", resp.StatusCode),
			logger.String("url", urlStr))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("Failed to read response body", logger.Error(err))
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

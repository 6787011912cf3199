package geoloc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultURL = "https://www.googleapis.com/geolocation/v1/geolocate"

// maxErrorBody caps how much of a non-200 body is kept for logging.
const maxErrorBody = 512

var ErrMalformedResponse = errors.New("geolocation: malformed response")

// StatusError is returned when the geolocation API answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geolocation: unexpected status %d: %s", e.StatusCode, e.Body)
}

// KeyRejected reports a status the API uses for missing, invalid or unauthorized keys.
func (e *StatusError) KeyRejected() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusForbidden
}

func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type ClientConfig struct {
	URL    string
	APIKey string
	// HTTPClient defaults to a client with a 10s timeout. The resolver applies its own,
	// shorter, per-request deadline through the context.
	HTTPClient *http.Client
}

// Client talks to the Google Geolocation API.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   cfg.HTTPClient,
	}
}

type wifiAccessPoint struct {
	MACAddress string `json:"macAddress"`
}

type geolocateRequest struct {
	ConsiderIP       bool              `json:"considerIp"`
	WifiAccessPoints []wifiAccessPoint `json:"wifiAccessPoints"`
}

type geolocateResponse struct {
	Location *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"location"`
	Accuracy *float64 `json:"accuracy"`
}

// Locate asks the API for the position of the given access points.
func (c *Client) Locate(ctx context.Context, macAddresses []string) (Position, error) {
	reqBody := geolocateRequest{
		ConsiderIP:       false,
		WifiAccessPoints: make([]wifiAccessPoint, 0, len(macAddresses)),
	}
	for _, mac := range macAddresses {
		reqBody.WifiAccessPoints = append(reqBody.WifiAccessPoints, wifiAccessPoint{MACAddress: mac})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return Position{}, fmt.Errorf("marshal geolocation request: %w", err)
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return Position{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return Position{}, fmt.Errorf("build geolocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("geolocation request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Position{}, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	var out geolocateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Location == nil || out.Location.Lat == nil || out.Location.Lng == nil || out.Accuracy == nil {
		return Position{}, fmt.Errorf("%w: missing location or accuracy", ErrMalformedResponse)
	}

	return Position{
		Latitude:       *out.Location.Lat,
		Longitude:      *out.Location.Lng,
		AccuracyMeters: *out.Accuracy,
	}, nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("geolocation url %q: %w", c.url, err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

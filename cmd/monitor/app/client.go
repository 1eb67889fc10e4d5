package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/server"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

const defaultRequestTimeout = 2 * time.Second

// ErrRejected is returned when the ground station refuses a command
var ErrRejected = errors.New("command rejected")

// Client talks to the ground station HTTP API
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the ground station listening at baseURL
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("url has no host")
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    httpClient,
	}, nil
}

// Telemetry fetches the latest telemetry and the relay queue statistics
func (c *Client) Telemetry(ctx context.Context) (*server.TelemetryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/telemetry", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get telemetry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get telemetry: unexpected status %s", resp.Status)
	}

	var data server.TelemetryResponse
	if err = json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}

	return &data, nil
}

// Send submits a command for transmission to the vehicle
func (c *Client) Send(ctx context.Context, cmd telemetry.Command) error {
	payload := cmd.Marshal()
	if payload == nil {
		return fmt.Errorf("%w: %s", telemetry.ErrUnknownCommand, cmd.Kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/instruction", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", payload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: %s: %s %s", ErrRejected, payload, resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}

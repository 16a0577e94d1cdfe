// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// WEATHER EXECUTOR
// =============================================================================

// WeatherExecutor fetches current conditions from wttr.in.
type WeatherExecutor struct {
	// BaseURL is the wttr.in endpoint
	BaseURL string

	// Timeout for the HTTP request
	Timeout time.Duration

	// HTTPClient allows injection for testing
	HTTPClient *http.Client
}

// NewWeatherExecutor creates a weather executor with defaults.
func NewWeatherExecutor() *WeatherExecutor {
	return &WeatherExecutor{
		BaseURL: "https://wttr.in",
		Timeout: 15 * time.Second,
	}
}

// Execute fetches a one-line weather report for params["location"].
func (w *WeatherExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	location := strings.TrimSpace(getStringParam(params, "location", ""))
	if location == "" {
		return Result{}, fmt.Errorf("%w: location is required", ErrInvalidArgument)
	}

	start := time.Now()

	// format=3 yields "City: ⛅ +12°C" on a single line.
	reqURL := fmt.Sprintf("%s/%s?format=3", w.BaseURL, url.PathEscape(location))

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8.0")

	resp, err := w.client().Do(req)
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("weather lookup failed: %v", err),
			Duration: time.Since(start),
		}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("failed to read response: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("weather service returned status %d", resp.StatusCode),
			Duration: time.Since(start),
		}, nil
	}

	return Result{
		Success:  true,
		Output:   strings.TrimSpace(string(body)),
		Duration: time.Since(start),
	}, nil
}

func (w *WeatherExecutor) timeout() time.Duration {
	if w.Timeout > 0 {
		return w.Timeout
	}
	return 15 * time.Second
}

func (w *WeatherExecutor) client() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return &http.Client{Timeout: w.timeout()}
}

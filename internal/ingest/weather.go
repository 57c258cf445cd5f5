package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
)

// Observation is a normalized current-conditions reading for one point.
type Observation struct {
	Condition   string  // coarse group, e.g. "Rain", "Thunderstorm", "Clear"
	Description string  // human text from the provider
	RainMM      float64 // rainfall over the last hour, millimeters
	Temperature float64 // celsius
}

// WeatherFetcher fetches current conditions for a point. Implementations must
// honor ctx cancellation.
type WeatherFetcher interface {
	Current(ctx context.Context, p geo.Point) (Observation, error)
}

// OpenWeatherClient fetches current conditions from the OpenWeatherMap
// current-weather endpoint.
type OpenWeatherClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewOpenWeatherClient builds a client with a bounded request timeout.
func NewOpenWeatherClient(baseURL, apiKey string) *OpenWeatherClient {
	return &OpenWeatherClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// owmResponse mirrors the subset of the provider payload we read.
type owmResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

// Current implements WeatherFetcher.
func (c *OpenWeatherClient) Current(ctx context.Context, p geo.Point) (Observation, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Longitude, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/2.5/weather?"+q.Encode(), nil)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %s", alert.ErrExternalFetch, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: %s", alert.ErrExternalFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Observation{}, fmt.Errorf("%w: weather api returned %d", alert.ErrExternalFetch, resp.StatusCode)
	}

	var body owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Observation{}, fmt.Errorf("%w: decode: %s", alert.ErrExternalFetch, err)
	}

	obs := Observation{
		RainMM:      body.Rain.OneHour,
		Temperature: body.Main.Temp,
	}
	if len(body.Weather) > 0 {
		obs.Condition = body.Weather[0].Main
		obs.Description = body.Weather[0].Description
	}
	return obs, nil
}

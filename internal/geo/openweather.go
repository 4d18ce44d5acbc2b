package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultOpenWeatherURL is the current-weather endpoint of OpenWeatherMap.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// ErrMissingSunTimes is returned when the weather response carries no sys.sunrise/sys.sunset.
var ErrMissingSunTimes = errors.New("weather response has no sunrise/sunset")

// OpenWeatherSource reads today's sunrise and sunset from OpenWeatherMap's
// current weather response.
type OpenWeatherSource struct {
	baseURL    string
	apiKey     string
	city       string
	location   *Location
	httpClient *http.Client
}

// NewOpenWeatherSource queries by city name, or by coordinates when loc has them.
func NewOpenWeatherSource(baseURL, apiKey, city string, loc *Location, httpClient *http.Client) *OpenWeatherSource {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenWeatherSource{
		baseURL:    baseURL,
		apiKey:     apiKey,
		city:       city,
		location:   loc,
		httpClient: httpClient,
	}
}

// Name identifies the source in logs.
func (s *OpenWeatherSource) Name() string {
	return "openweathermap"
}

type weatherResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

// FetchSunTimes implements cycle.SunSource. The API only reports the current
// day, so now is not used.
func (s *OpenWeatherSource) FetchSunTimes(ctx context.Context, _ time.Time) (SunTimes, error) {
	q := url.Values{}
	if s.location.HasCoordinates() {
		q.Set("lat", strconv.FormatFloat(s.location.Latitude, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(s.location.Longitude, 'f', -1, 64))
	} else {
		q.Set("q", s.city)
	}
	q.Set("units", "metric")
	q.Set("appid", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return SunTimes{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SunTimes{}, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return SunTimes{}, fmt.Errorf("weather request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var wr weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return SunTimes{}, fmt.Errorf("decode weather response: %w", err)
	}
	if wr.Sys.Sunrise == 0 || wr.Sys.Sunset == 0 {
		return SunTimes{}, ErrMissingSunTimes
	}

	return SunTimes{
		Sunrise: time.Unix(wr.Sys.Sunrise, 0),
		Sunset:  time.Unix(wr.Sys.Sunset, 0),
		Source:  s.Name(),
	}, nil
}

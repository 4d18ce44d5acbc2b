package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultNominatimURL is the public OpenStreetMap geocoding endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

const userAgent = "daylightd/1.0"

// Geocoder resolves place names to coordinates.
// Lookup order: in-memory cache, persistent cache, Nominatim.
type Geocoder struct {
	baseURL    string
	httpClient *http.Client
	persistent *Cache

	mu     sync.RWMutex
	memory map[string]*Location
}

// NewGeocoder creates a geocoder. persistent may be nil.
func NewGeocoder(baseURL string, httpClient *http.Client, persistent *Cache) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Geocoder{
		baseURL:    baseURL,
		httpClient: httpClient,
		persistent: persistent,
		memory:     make(map[string]*Location),
	}
}

// Lookup returns coordinates for a place name.
func (g *Geocoder) Lookup(ctx context.Context, name string) (*Location, error) {
	g.mu.RLock()
	cached, ok := g.memory[name]
	g.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if g.persistent != nil {
		if loc, found := g.persistent.Get(ctx, name); found {
			g.remember(name, loc)
			return loc, nil
		}
	}

	loc, err := g.geocode(ctx, name)
	if err != nil {
		return nil, err
	}

	g.remember(name, loc)
	if g.persistent != nil {
		// a failed write only costs a lookup on the next start
		_ = g.persistent.Put(ctx, name, loc)
	}
	return loc, nil
}

func (g *Geocoder) remember(name string, loc *Location) {
	g.mu.Lock()
	g.memory[name] = loc
	g.mu.Unlock()
}

func (g *Geocoder) geocode(ctx context.Context, name string) (*Location, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding failed with status %d", resp.StatusCode)
	}

	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode geocoding response: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("location not found: %s", name)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("bad latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("bad longitude %q: %w", results[0].Lon, err)
	}

	loc := &Location{
		Name:      results[0].DisplayName,
		Latitude:  lat,
		Longitude: lon,
	}

	log.Info().
		Str("query", name).
		Str("resolved", loc.Name).
		Float64("lat", lat).
		Float64("lon", lon).
		Msg("Location geocoded via Nominatim")

	return loc, nil
}

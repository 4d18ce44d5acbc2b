package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daylightd/internal/db"
)

func TestOpenWeatherSource_ByCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Berlin", r.URL.Query().Get("q"))
		assert.Equal(t, "key", r.URL.Query().Get("appid"))
		w.Write([]byte(`{"name":"Berlin","sys":{"sunrise":1717211000,"sunset":1717270000}}`))
	}))
	defer srv.Close()

	src := NewOpenWeatherSource(srv.URL, "key", "Berlin", nil, srv.Client())
	times, err := src.FetchSunTimes(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(1717211000), times.Sunrise.Unix())
	assert.Equal(t, int64(1717270000), times.Sunset.Unix())
	assert.Equal(t, "openweathermap", times.Source)
}

func TestOpenWeatherSource_ByCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("q"))
		assert.Equal(t, "52.52", r.URL.Query().Get("lat"))
		assert.Equal(t, "13.405", r.URL.Query().Get("lon"))
		w.Write([]byte(`{"sys":{"sunrise":1717211000,"sunset":1717270000}}`))
	}))
	defer srv.Close()

	src := NewOpenWeatherSource(srv.URL, "key", "ignored", &Location{Latitude: 52.52, Longitude: 13.405}, srv.Client())
	_, err := src.FetchSunTimes(context.Background(), time.Now())
	require.NoError(t, err)
}

func TestOpenWeatherSource_Errors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"cod":401}`, http.StatusUnauthorized)
		},
		"missing sys": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"name":"Berlin"}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{`))
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			src := NewOpenWeatherSource(srv.URL, "key", "Berlin", nil, srv.Client())
			_, err := src.FetchSunTimes(context.Background(), time.Now())
			assert.Error(t, err)
		})
	}
}

func TestGeocoder_CachesLookups(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Berlin", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"lat":"52.5170365","lon":"13.3888599","display_name":"Berlin, Deutschland"}]`))
	}))
	defer srv.Close()

	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()
	cache := NewCache(database.DB)
	ctx := context.Background()

	g := NewGeocoder(srv.URL, srv.Client(), cache)
	loc, err := g.Lookup(ctx, "Berlin")
	require.NoError(t, err)
	assert.InDelta(t, 52.517, loc.Latitude, 1e-3)
	assert.InDelta(t, 13.389, loc.Longitude, 1e-3)

	_, err = g.Lookup(ctx, "Berlin")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup served from memory")

	fresh := NewGeocoder(srv.URL, srv.Client(), cache)
	loc, err = fresh.Lookup(ctx, "Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Berlin, Deutschland", loc.Name)
	assert.Equal(t, int32(1), hits.Load(), "new geocoder served from sqlite")
}

func TestGeocoder_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewGeocoder(srv.URL, srv.Client(), nil).Lookup(context.Background(), "Atlantis")
	assert.Error(t, err)
}

func TestCache_PutReplaces(t *testing.T) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	defer database.Close()
	cache := NewCache(database.DB)
	ctx := context.Background()

	_, found := cache.Get(ctx, "home")
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, "home", &Location{Name: "a", Latitude: 1, Longitude: 2}))
	require.NoError(t, cache.Put(ctx, "home", &Location{Name: "b", Latitude: 3, Longitude: 4}))

	loc, found := cache.Get(ctx, "home")
	require.True(t, found)
	assert.Equal(t, &Location{Name: "b", Latitude: 3, Longitude: 4}, loc)
}

func TestAstroSource_Berlin(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	src := NewAstroSource(&Location{Latitude: 52.52, Longitude: 13.405}, berlin)
	now := time.Date(2024, 6, 21, 1, 0, 0, 0, berlin)
	times, err := src.FetchSunTimes(context.Background(), now)
	require.NoError(t, err)

	// around 04:43 and 21:33 local time on the solstice
	assert.WithinDuration(t, time.Date(2024, 6, 21, 4, 43, 0, 0, berlin), times.Sunrise, 10*time.Minute)
	assert.WithinDuration(t, time.Date(2024, 6, 21, 21, 33, 0, 0, berlin), times.Sunset, 10*time.Minute)
	assert.Equal(t, "astro", times.Source)
}

func TestAstroSource_NeedsLocation(t *testing.T) {
	_, err := NewAstroSource(nil, time.UTC).FetchSunTimes(context.Background(), time.Now())
	assert.Error(t, err)
}

type stubSource struct {
	name  string
	times SunTimes
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchSunTimes(ctx context.Context, now time.Time) (SunTimes, error) {
	s.calls++
	return s.times, s.err
}

func TestFallback(t *testing.T) {
	want := SunTimes{Sunrise: time.Unix(100, 0), Sunset: time.Unix(200, 0), Source: "second"}
	first := &stubSource{name: "first", err: errors.New("down")}
	second := &stubSource{name: "second", times: want}
	third := &stubSource{name: "third"}

	got, err := NewFallback(first, second, third).FetchSunTimes(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, third.calls)
}

func TestFallback_AllFail(t *testing.T) {
	cause := errors.New("down")
	_, err := NewFallback(
		&stubSource{name: "a", err: cause},
		&stubSource{name: "b", err: errors.New("also down")},
	).FetchSunTimes(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "b: also down")

	_, err = NewFallback().FetchSunTimes(context.Background(), time.Now())
	assert.Error(t, err)
}

type hangingSource struct{}

func (hangingSource) Name() string { return "hang" }

func (hangingSource) FetchSunTimes(ctx context.Context, now time.Time) (SunTimes, error) {
	<-ctx.Done()
	return SunTimes{}, ctx.Err()
}

func TestFallback_HangingSourceLeavesTimeForNext(t *testing.T) {
	want := SunTimes{Sunrise: time.Unix(100, 0), Sunset: time.Unix(200, 0), Source: "astro"}
	next := &stubSource{name: "astro", times: want}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	got, err := NewFallback(hangingSource{}, next).FetchSunTimes(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, ctx.Err())
}

func TestFallback_CallerCancelStopsChain(t *testing.T) {
	next := &stubSource{name: "next"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFallback(hangingSource{}, next).FetchSunTimes(ctx, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, next.calls)
}

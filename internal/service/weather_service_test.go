package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenWeatherFake(t *testing.T, airStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		switch r.URL.Path {
		case "/data/2.5/weather":
			assert.Equal(t, "metric", r.URL.Query().Get("units"))
			fmt.Fprint(w, `{
				"main":{"temp":12.5},
				"weather":[{"description":"light rain"}],
				"wind":{"speed":4.6},
				"rain":{"1h":0.25},
				"name":"Ongar"
			}`)
		case "/data/2.5/air_pollution":
			w.WriteHeader(airStatus)
			fmt.Fprint(w, `{"list":[{"components":{"pm2_5":38.5}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWeatherService_CurrentEnvironment(t *testing.T) {
	srv := newOpenWeatherFake(t, http.StatusOK)
	svc := NewWeatherService("test-key", srv.URL, zerolog.Nop())

	reading, err := svc.CurrentEnvironment(context.Background())
	require.NoError(t, err)
	assert.False(t, reading.IsMock)
	assert.Equal(t, "Ongar", reading.Location)
	assert.Equal(t, 38.5, reading.PM25)
	assert.Equal(t, 12.5, reading.Temperature)
	assert.Equal(t, "light rain", reading.Weather)
	assert.Equal(t, 4.6, reading.WindSpeed)
	assert.Equal(t, 0.25, reading.Rain)
}

func TestWeatherService_FailureReturnsMock(t *testing.T) {
	srv := newOpenWeatherFake(t, http.StatusUnauthorized)
	svc := NewWeatherService("test-key", srv.URL, zerolog.Nop())

	reading, err := svc.CurrentEnvironment(context.Background())
	require.NoError(t, err)
	assert.True(t, reading.IsMock)
}

func TestWeatherService_SeasonalMock(t *testing.T) {
	svc := NewWeatherService("", "http://127.0.0.1:0", zerolog.Nop())

	svc.now = func() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) }
	winter, err := svc.CurrentEnvironment(context.Background())
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC) }
	summer, err := svc.CurrentEnvironment(context.Background())
	require.NoError(t, err)

	assert.True(t, winter.IsMock)
	assert.Greater(t, winter.PM25, summer.PM25)
	assert.Less(t, winter.Temperature, summer.Temperature)
	assert.Equal(t, int64(1705309200), winter.Timestamp.Unix())
}

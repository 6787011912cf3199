package geoloc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGeolocateServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Locate_Success(t *testing.T) {
	var (
		gotMethod, gotKey, gotContentType string
		gotBody                           map[string]any
	)
	srv := newGeolocateServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.URL.Query().Get("key")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"location":{"lat":48.85,"lng":2.35},"accuracy":25.5}`))
	})

	c := NewClient(ClientConfig{URL: srv.URL, APIKey: "secret"})
	pos, err := c.Locate(context.Background(), []string{"aa:bb:cc:dd:ee:ff", "11:22:33:44:55:66"})
	require.NoError(t, err)

	assert.Equal(t, Position{Latitude: 48.85, Longitude: 2.35, AccuracyMeters: 25.5}, pos)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/json", gotContentType)

	assert.Equal(t, false, gotBody["considerIp"])
	aps, ok := gotBody["wifiAccessPoints"].([]any)
	require.True(t, ok, "wifiAccessPoints = %#v", gotBody["wifiAccessPoints"])
	require.Len(t, aps, 2)
	assert.Equal(t, map[string]any{"macAddress": "aa:bb:cc:dd:ee:ff"}, aps[0])
	assert.Equal(t, map[string]any{"macAddress": "11:22:33:44:55:66"}, aps[1])
}

func TestClient_Locate_NonOK(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		keyRejected bool
		rateLimited bool
	}{
		{name: "bad request", status: http.StatusBadRequest, keyRejected: true},
		{name: "forbidden", status: http.StatusForbidden, keyRejected: true},
		{name: "not found", status: http.StatusNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, rateLimited: true},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGeolocateServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"code":1}}`, tt.status)
			})

			_, err := NewClient(ClientConfig{URL: srv.URL}).Locate(context.Background(), []string{"aa:bb:cc:dd:ee:ff"})
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se), "err = %v", err)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.keyRejected, se.KeyRejected())
			assert.Equal(t, tt.rateLimited, se.RateLimited())
			assert.Contains(t, se.Body, `"code":1`)
		})
	}
}

func TestClient_Locate_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>oops</html>"},
		{name: "missing location", body: `{"accuracy": 10}`},
		{name: "missing lng", body: `{"location":{"lat":1},"accuracy":10}`},
		{name: "missing accuracy", body: `{"location":{"lat":1,"lng":2}}`},
		{name: "wrong types", body: `{"location":{"lat":"x","lng":2},"accuracy":10}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGeolocateServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := NewClient(ClientConfig{URL: srv.URL}).Locate(context.Background(), []string{"aa:bb:cc:dd:ee:ff"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedResponse), "err = %v", err)
		})
	}
}

func TestClient_NoKeyOmitsQuery(t *testing.T) {
	var rawQuery string
	srv := newGeolocateServer(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"location":{"lat":0,"lng":0},"accuracy":1}`))
	})

	_, err := NewClient(ClientConfig{URL: srv.URL}).Locate(context.Background(), []string{"aa:bb:cc:dd:ee:ff"})
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{})
	assert.Equal(t, DefaultURL, c.url)
	assert.NotNil(t, c.http)
}

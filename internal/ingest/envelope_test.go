package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcurt/hivesense2mqtt/internal/geoloc"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Envelope
	}{
		{
			name: "full live objects message",
			in: `{"streamId":"urn:lo:nsid:lora:70b3","timestamp":"2026-05-01T10:00:00Z",` +
				`"value":{"payload":"2a0a"},"location":{"lat":45.5,"lon":4.25,"alt":0,"accuracy":2000}}`,
			want: Envelope{
				StreamID:  "urn:lo:nsid:lora:70b3",
				Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
				Payload:   "2a0a",
				Location:  &geoloc.Hint{Lat: 45.5, Lon: 4.25},
			},
		},
		{
			name: "no location",
			in:   `{"value":{"payload":"00"}}`,
			want: Envelope{Payload: "00"},
		},
		{
			name: "location without lon is ignored",
			in:   `{"value":{"payload":"00"},"location":{"lat":45.5}}`,
			want: Envelope{Payload: "00"},
		},
		{
			name: "null location",
			in:   `{"value":{"payload":"00"},"location":null}`,
			want: Envelope{Payload: "00"},
		},
		{
			name: "zero coordinates are kept",
			in:   `{"value":{"payload":"00"},"location":{"lat":0,"lon":0}}`,
			want: Envelope{Payload: "00", Location: &geoloc.Hint{}},
		},
		{
			name: "missing value",
			in:   `{"streamId":"s"}`,
			want: Envelope{StreamID: "s"},
		},
		{
			name: "unparseable timestamp is dropped",
			in:   `{"timestamp":"yesterday","value":{"payload":"00"}}`,
			want: Envelope{Payload: "00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvelope([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEnvelope_Malformed(t *testing.T) {
	for _, in := range []string{``, `{`, `[]`, `{"value":"2a0a"}`, `{"value":{"payload":42}}`} {
		_, err := ParseEnvelope([]byte(in))
		assert.True(t, errors.Is(err, ErrMalformedEnvelope), "input %q: err = %v", in, err)
	}
}

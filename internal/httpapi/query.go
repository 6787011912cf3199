package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const (
	defaultReadingsLimit = 100
	maxReadingsLimit     = 1000
)

func parseLatestQuery(r *http.Request) (limit int, err error) {
	limit = defaultReadingsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'limit' must be > 0")
		}
		if n > maxReadingsLimit {
			return 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return limit, nil
}

// parseDeviceID reads the {id} route parameter; device ids are one byte on the wire.
func parseDeviceID(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, errors.New("invalid device id (expected integer)")
	}
	if n < 0 || n > math.MaxUint8 {
		return 0, errors.New("device id must be between 0 and 255")
	}
	return n, nil
}

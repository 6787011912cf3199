package geoloc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/pcurt/hivesense2mqtt/internal/frame"
	"github.com/pcurt/hivesense2mqtt/internal/metrics"
)

const DefaultTimeout = 3 * time.Second

const canonicalMACLen = len("00:00:00:00:00:00")

var emptyAccessPoint = frame.AccessPoint{}.String()

// Locator resolves a set of access point addresses to a position.
type Locator interface {
	Locate(ctx context.Context, macAddresses []string) (Position, error)
}

type Options struct {
	// Timeout bounds a single Locate call. Defaults to DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Resolver picks a position for an uplink: the geolocation service first, then the
// network hint. It keeps no state between calls.
type Resolver struct {
	locator Locator
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver returns a resolver using locator. A nil locator disables the service lookup.
func NewResolver(locator Locator, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{
		locator: locator,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Resolve never fails: lookup errors fall through to the hint, and a missing hint
// yields SourceUnavailable.
func (r *Resolver) Resolve(ctx context.Context, aps [3]frame.AccessPoint, hint *Hint) Resolution {
	res := r.resolve(ctx, aps, hint)
	r.metrics.ObservePosition(res.Source.String())
	return res
}

func (r *Resolver) resolve(ctx context.Context, aps [3]frame.AccessPoint, hint *Hint) Resolution {
	if candidates := Candidates(aps); len(candidates) > 0 && r.locator != nil {
		if pos, ok := r.locate(ctx, candidates); ok {
			r.logger.Info("position from geolocation service",
				"latitude", pos.Latitude,
				"longitude", pos.Longitude,
				"accuracy_m", pos.AccuracyMeters,
			)
			return Resolution{Source: SourceService, Position: pos}
		}
	}

	if hint != nil {
		pos := Position{Latitude: hint.Lat, Longitude: hint.Lon, AccuracyMeters: NetworkHintAccuracy}
		r.logger.Info("position from lora network (poor accuracy)",
			"latitude", pos.Latitude,
			"longitude", pos.Longitude,
			"accuracy_m", pos.AccuracyMeters,
		)
		return Resolution{Source: SourceNetworkHint, Position: pos}
	}

	r.logger.Info("position unavailable")
	return Resolution{Source: SourceUnavailable}
}

func (r *Resolver) locate(ctx context.Context, candidates []string) (Position, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("geolocation request", "access_points", candidates)

	start := time.Now()
	pos, err := r.locator.Locate(ctx, candidates)
	elapsed := time.Since(start)

	outcome := classify(err)
	r.metrics.ObserveGeolocation(outcome, elapsed.Seconds())
	if err == nil {
		return pos, true
	}

	attrs := []any{"outcome", outcome, "duration_ms", elapsed.Milliseconds(), "error", err}
	var se *StatusError
	switch {
	case errors.As(err, &se) && se.KeyRejected():
		r.logger.Warn("geolocation rejected request, check GOOGLE_API_KEY", attrs...)
	case errors.As(err, &se) && se.RateLimited():
		r.logger.Warn("geolocation rate limited", attrs...)
	default:
		r.logger.Warn("geolocation failed", attrs...)
	}
	return Position{}, false
}

func classify(err error) string {
	if err == nil {
		return "ok"
	}
	var se *StatusError
	if errors.As(err, &se) {
		return "status"
	}
	if errors.Is(err, ErrMalformedResponse) {
		return "malformed"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	return "transport"
}

// Candidates returns the addresses of aps worth sending to the geolocation service, in order.
func Candidates(aps [3]frame.AccessPoint) []string {
	addrs := make([]string, 0, len(aps))
	for _, ap := range aps {
		addrs = append(addrs, ap.String())
	}
	return FilterCandidates(addrs)
}

// FilterCandidates drops the empty-slot sentinel and anything that is not a canonical
// 17-character address.
func FilterCandidates(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == emptyAccessPoint || len(a) != canonicalMACLen {
			continue
		}
		out = append(out, a)
	}
	return out
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Broker describes one MQTT broker connection.
type Broker struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	TLS      bool
	// CAFile is a PEM bundle used instead of the system roots when TLS is on.
	CAFile string
}

// URL returns the paho broker URL, ssl:// when TLS is on.
func (b Broker) URL() string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// Inbound uplinks (Orange Live Objects).
	Orange      Broker
	OrangeTopic string

	// Outbound Home Assistant broker.
	HomeAssistant   Broker
	HAUniqueID      string
	DiscoveryPrefix string

	GoogleAPIKey       string
	GeolocationURL     string
	GeolocationTimeout time.Duration

	SQLitePath       string
	SQLiteDSN        string
	SQLiteLogQueries bool

	MovementThresholdMeters float64
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	orangePort, err := intEnv("ORANGE_PORT", 8883)
	if err != nil {
		return Config{}, err
	}
	orangeTLS, err := boolEnv("ORANGE_TLS", true)
	if err != nil {
		return Config{}, err
	}
	haPort, err := intEnv("HA_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	haCAFile := strings.TrimSpace(os.Getenv("HA_CA_FILE"))

	geolocationTimeout, err := durationEnv("GEOLOCATION_TIMEOUT", 3*time.Second)
	if err != nil {
		return Config{}, err
	}

	sqliteLogQueries, err := boolEnv("SQLITE_LOG_QUERIES", false)
	if err != nil {
		return Config{}, err
	}

	thresholdStr := strings.TrimSpace(os.Getenv("MOVEMENT_THRESHOLD_METERS"))
	if thresholdStr == "" {
		thresholdStr = "500"
	}
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MOVEMENT_THRESHOLD_METERS %q: %w", thresholdStr, err)
	}
	if threshold < 0 {
		return Config{}, fmt.Errorf("MOVEMENT_THRESHOLD_METERS must not be negative, got %v", threshold)
	}

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: httpAddr,

		Orange: Broker{
			Host:     stringEnv("ORANGE_BROKER", "liveobjects.orange-business.com"),
			Port:     orangePort,
			ClientID: strings.TrimSpace(os.Getenv("ORANGE_CLIENT_ID")),
			Username: strings.TrimSpace(os.Getenv("ORANGE_USERNAME")),
			Password: strings.TrimSpace(os.Getenv("ORANGE_PASSWORD")),
			TLS:      orangeTLS,
			CAFile:   strings.TrimSpace(os.Getenv("ORANGE_CA_FILE")),
		},
		OrangeTopic: stringEnv("ORANGE_TOPIC", "fifo"),

		HomeAssistant: Broker{
			Host:     stringEnv("HA_BROKER", "localhost"),
			Port:     haPort,
			ClientID: stringEnv("HA_CLIENT_ID", "hiveSense2mqtt"),
			Username: strings.TrimSpace(os.Getenv("HA_USERNAME")),
			Password: strings.TrimSpace(os.Getenv("HA_PASSWORD")),
			TLS:      haCAFile != "",
			CAFile:   haCAFile,
		},
		HAUniqueID:      strings.TrimSpace(os.Getenv("HA_UNIQUE_ID")),
		DiscoveryPrefix: stringEnv("HA_DISCOVERY_PREFIX", "homeassistant"),

		GoogleAPIKey:       strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GeolocationURL:     stringEnv("GEOLOCATION_URL", "https://www.googleapis.com/geolocation/v1/geolocate"),
		GeolocationTimeout: geolocationTimeout,

		SQLitePath:       stringEnv("SQLITE_PATH", "data/hivesense.db"),
		SQLiteDSN:        strings.TrimSpace(os.Getenv("SQLITE_DSN")),
		SQLiteLogQueries: sqliteLogQueries,

		MovementThresholdMeters: threshold,
	}, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if n <= 0 || n > 65535 {
		return 0, fmt.Errorf("%s out of range: %d", key, n)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LogSQL routes every statement through the logging connector at debug level.
	LogSQL bool

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// WSPath is where device frames come in and SensorEvents go out.
	WSPath string
	// DataTimeout is how long the hub waits for device data before telling
	// clients nothing is arriving; checked every DataCheckInterval.
	DataTimeout       time.Duration
	DataCheckInterval time.Duration
	FlushInterval     time.Duration
}

// ViewerConfig configures cmd/viewer.
type ViewerConfig struct {
	AppEnv   string
	LogLevel slog.Level
	PageURL  *url.URL
	// OutPath, when set, receives the rendered page after every update.
	OutPath string
}

func LoadFromEnv() (Config, error) {
	appEnv, level, err := loadCommon()
	if err != nil {
		return Config{}, err
	}

	maxOpenConns, err := intEnv("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intEnv("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := durationEnv("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}
	logSQL, err := boolEnv("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	mqttEnabled, err := boolEnv("MQTT_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	mqttPort, err := intEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (must be 1-65535)", mqttPort)
	}

	wsPath := stringEnv("WS_PATH", "/ws/sensor-data/")
	if !strings.HasPrefix(wsPath, "/") {
		return Config{}, fmt.Errorf("invalid WS_PATH %q (must start with /)", wsPath)
	}

	dataTimeout, err := durationEnv("DATA_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	checkInterval, err := durationEnv("DATA_CHECK_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}
	flushInterval, err := durationEnv("FLUSH_INTERVAL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	for name, d := range map[string]time.Duration{
		"DATA_TIMEOUT":        dataTimeout,
		"DATA_CHECK_INTERVAL": checkInterval,
		"FLUSH_INTERVAL":      flushInterval,
	} {
		if d <= 0 {
			return Config{}, fmt.Errorf("invalid %s %s (must be positive)", name, d)
		}
	}

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: stringEnv("HTTP_ADDR", ":8080"),

		Driver:          stringEnv("DB_DRIVER", "sqlite3"),
		DSN:             stringEnv("DB_DSN", ""),
		Path:            stringEnv("SQLITE_PATH", "data/airwatch.db"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		LogSQL:          logSQL,

		MQTTEnabled:  mqttEnabled,
		MQTTBroker:   stringEnv("MQTT_BROKER", "localhost"),
		MQTTPort:     mqttPort,
		MQTTClientID: stringEnv("MQTT_CLIENT_ID", "airwatch-server"),
		MQTTTopic:    stringEnv("MQTT_TOPIC", "airwatch/+/frame"),

		WSPath:            wsPath,
		DataTimeout:       dataTimeout,
		DataCheckInterval: checkInterval,
		FlushInterval:     flushInterval,
	}, nil
}

func LoadViewerFromEnv() (ViewerConfig, error) {
	appEnv, level, err := loadCommon()
	if err != nil {
		return ViewerConfig{}, err
	}

	raw := stringEnv("PAGE_URL", "http://localhost:8080/")
	pageURL, err := url.Parse(raw)
	if err != nil {
		return ViewerConfig{}, fmt.Errorf("invalid PAGE_URL %q: %w", raw, err)
	}
	switch pageURL.Scheme {
	case "http", "https":
	default:
		return ViewerConfig{}, fmt.Errorf("invalid PAGE_URL %q (scheme must be http or https)", raw)
	}
	if pageURL.Host == "" {
		return ViewerConfig{}, fmt.Errorf("invalid PAGE_URL %q (missing host)", raw)
	}

	return ViewerConfig{
		AppEnv:   appEnv,
		LogLevel: level,
		PageURL:  pageURL,
		OutPath:  stringEnv("VIEWER_OUT", ""),
	}, nil
}

func loadCommon() (string, slog.Level, error) {
	appEnv := stringEnv("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return "", slog.LevelInfo, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(stringEnv("LOG_LEVEL", "info"))
	if err != nil {
		return "", slog.LevelInfo, err
	}
	return appEnv, level, nil
}

func stringEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
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

package breathe

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	APIURLKey              = "BREATHE_API_URL"
	APITokenKey            = "BREATHE_API_TOKEN"
	DBPathKey              = "BREATHE_DB_PATH"
	DurationPresetsKey     = "BREATHE_DURATION_PRESETS"
	CompletionThresholdKey = "BREATHE_COMPLETION_THRESHOLD"
	TickRateKey            = "BREATHE_TICK_RATE"
	HTTPTimeoutKey         = "BREATHE_HTTP_TIMEOUT"
	LogLevelKey            = "BREATHE_LOG_LEVEL"
	BackendAddrKey         = "BREATHE_BACKEND_ADDR"
	JWTSecretKey           = "BREATHE_JWT_SECRET"
	JWTIssuerKey           = "BREATHE_JWT_ISSUER"
)

// DefaultDurationPresets are the selectable target durations in seconds.
var DefaultDurationPresets = DurationPresets{60, 180, 300, 600, 900}

type DurationPresets []int

func (p DurationPresets) Contains(seconds int) bool {
	return slices.Contains(p, seconds)
}

// Nearest returns the preset closest to seconds, preferring the shorter one
// on a tie. An empty list returns seconds unchanged.
func (p DurationPresets) Nearest(seconds int) int {
	if len(p) == 0 {
		return seconds
	}
	best := p[0]
	for _, preset := range p[1:] {
		d, bd := abs(preset-seconds), abs(best-seconds)
		if d < bd || (d == bd && preset < best) {
			best = preset
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (p DurationPresets) String() string {
	parts := make([]string, 0, len(p))
	for _, s := range p {
		parts = append(parts, strconv.Itoa(s))
	}
	return strings.Join(parts, ",")
}

func ParseDurationPresets(value string) (DurationPresets, error) {
	var out DurationPresets
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid duration preset %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no duration presets in %q", value)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

type Config struct {
	APIURL              string
	APIToken            string
	DBPath              string
	DurationPresets     DurationPresets
	CompletionThreshold int
	TickRate            time.Duration
	HTTPTimeout         time.Duration
	LogLevel            string
}

type BackendConfig struct {
	Address             string
	JWTSecret           string
	JWTIssuer           string
	DurationPresets     DurationPresets
	CompletionThreshold int
	LogLevel            string
}

// LoadEnv loads .env in production and .env.dev otherwise. Missing files are
// ignored so plain environment variables keep working.
func LoadEnv(isProd bool) {
	if isProd {
		_ = godotenv.Load(".env")
	} else {
		_ = godotenv.Load(".env.dev")
	}
}

func LoadConfig(isProd bool) (Config, error) {
	LoadEnv(isProd)

	presets, err := loadPresets()
	if err != nil {
		return Config{}, err
	}

	config := Config{
		APIURL:              strings.TrimRight(os.Getenv(APIURLKey), "/"),
		APIToken:            os.Getenv(APITokenKey),
		DBPath:              os.Getenv(DBPathKey),
		DurationPresets:     presets,
		CompletionThreshold: getIntEnv(CompletionThresholdKey, DefaultCompletionThreshold),
		TickRate:            getDurationEnv(TickRateKey, 250*time.Millisecond),
		HTTPTimeout:         getDurationEnv(HTTPTimeoutKey, 20*time.Second),
		LogLevel:            getEnv(LogLevelKey, "info"),
	}

	if config.APIURL == "" {
		return Config{}, fmt.Errorf("required environment variable: %s", APIURLKey)
	}
	if config.APIToken == "" {
		return Config{}, fmt.Errorf("required environment variable: %s", APITokenKey)
	}
	if config.CompletionThreshold <= 0 || config.CompletionThreshold > 100 {
		return Config{}, fmt.Errorf("%s must be within 1..100", CompletionThresholdKey)
	}

	if config.DBPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("get home dir: %w", err)
		}
		config.DBPath = filepath.Join(homeDir, ".breathe.db")
	}

	return config, nil
}

func LoadBackendConfig(isProd bool) (BackendConfig, error) {
	LoadEnv(isProd)

	presets, err := loadPresets()
	if err != nil {
		return BackendConfig{}, err
	}

	config := BackendConfig{
		Address:             getEnv(BackendAddrKey, ":8080"),
		JWTSecret:           getEnv(JWTSecretKey, "dev-secret-change-me"),
		JWTIssuer:           getEnv(JWTIssuerKey, "breathe.dev"),
		DurationPresets:     presets,
		CompletionThreshold: getIntEnv(CompletionThresholdKey, DefaultCompletionThreshold),
		LogLevel:            getEnv(LogLevelKey, "info"),
	}
	if isProd && config.JWTSecret == "dev-secret-change-me" {
		return BackendConfig{}, fmt.Errorf("required environment variable: %s", JWTSecretKey)
	}
	return config, nil
}

func loadPresets() (DurationPresets, error) {
	raw, ok := os.LookupEnv(DurationPresetsKey)
	if !ok || strings.TrimSpace(raw) == "" {
		return DefaultDurationPresets, nil
	}
	return ParseDurationPresets(raw)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

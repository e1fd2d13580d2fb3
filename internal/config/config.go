package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	ListenAddress string

	// WADO endpoint and fetch timeouts. The instance timeout is kept much
	// shorter than the metadata timeout so one slow object cannot stall a
	// series for long.
	WadoURL         string
	MetadataTimeout time.Duration
	InstanceTimeout time.Duration

	DefaultMaxWorkers int
	MaxAllowedWorkers int

	CreateLogURL     string
	CallbackTimeout  time.Duration
	AllowedClientIPs []string

	DatabaseURL string

	OtelEndpoint       string
	OtelServiceName    string
	OtelServiceVersion string

	Debug bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddress: GetEnv("LISTEN_ADDRESS", ":9000"),
		WadoURL:       strings.Trim(strings.TrimSpace(os.Getenv("DICOM_WADO_URL")), `"'`),
		CreateLogURL:  GetEnv("CREATE_LOG_URL", ""),
		DatabaseURL:   GetEnv("DATABASE_URL", ""),

		OtelEndpoint:       GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OtelServiceName:    GetEnv("OTEL_SERVICE_NAME", "dicom-pdf-converter"),
		OtelServiceVersion: GetEnv("OTEL_SERVICE_VERSION", "1.0.0"),
	}

	if cfg.WadoURL == "" {
		return nil, fmt.Errorf("DICOM_WADO_URL environment variable not configured or empty")
	}

	cfg.MetadataTimeout = getEnvSeconds("METADATA_TIMEOUT_SECONDS", 30*time.Second)
	cfg.InstanceTimeout = getEnvSeconds("INSTANCE_TIMEOUT_SECONDS", 15*time.Second)
	cfg.CallbackTimeout = getEnvSeconds("CALLBACK_TIMEOUT_SECONDS", 30*time.Second)

	cfg.DefaultMaxWorkers = getEnvInt("DEFAULT_MAX_WORKERS", 4)
	cfg.MaxAllowedWorkers = getEnvInt("MAX_ALLOWED_WORKERS", 8)

	if ips := GetEnv("ALLOWED_CLIENT_IPS", ""); ips != "" {
		for _, ip := range strings.Split(ips, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				cfg.AllowedClientIPs = append(cfg.AllowedClientIPs, ip)
			}
		}
	}

	cfg.Debug, _ = strconv.ParseBool(GetEnv("DEBUG", "false"))

	return cfg, nil
}

// GetEnv retrieves an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	sec, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil || sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

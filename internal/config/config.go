package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind            string `yaml:"bind"`
	Port            int    `yaml:"port"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_ms"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// StoreConfig controls the voice database file and its corruption policy.
type StoreConfig struct {
	Path string `yaml:"path"`
	// OnCorrupt is "reset" (log and start empty) or "fail" (refuse to start).
	OnCorrupt string `yaml:"on_corrupt"`
}

type EmbedderConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	Dimension int    `yaml:"dimension"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type MatcherConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type AuditConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
}

type IngestConfig struct {
	Enabled    bool `yaml:"enabled"`
	SampleRate int  `yaml:"sample_rate"`
	Channels   int  `yaml:"channels"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	Embedder    EmbedderConfig  `yaml:"embedder"`
	Matcher     MatcherConfig   `yaml:"matcher"`
	Audit       AuditConfig     `yaml:"audit"`
	Ingest      IngestConfig    `yaml:"ingest"`
}

func Default() Config {
	return Config{
		ServiceName: "voiceid",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:            "0.0.0.0",
			Port:            8080,
			MaxUploadBytes:  16 << 20,
			ShutdownTimeout: 10000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:      "./data/embeddings.json",
			OnCorrupt: "reset",
		},
		Embedder: EmbedderConfig{
			Mode:      "mock",
			Dimension: 256,
			TimeoutMS: 30000,
		},
		Matcher: MatcherConfig{
			Threshold: 0.70,
		},
		Audit: AuditConfig{
			Path:          "./data/voiceid-audit.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRecords:    100000,
		},
		Ingest: IngestConfig{
			Enabled:    false,
			SampleRate: 16000,
			Channels:   1,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "VOICEID_SERVICE_NAME")
	overrideString(&cfg.Environment, "VOICEID_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICEID_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICEID_HTTP_PORT")
	overrideInt64(&cfg.HTTP.MaxUploadBytes, "VOICEID_HTTP_MAX_UPLOAD_BYTES")
	overrideInt(&cfg.HTTP.ShutdownTimeout, "VOICEID_HTTP_SHUTDOWN_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "VOICEID_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICEID_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICEID_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOICEID_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOICEID_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOICEID_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOICEID_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICEID_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICEID_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICEID_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICEID_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICEID_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "VOICEID_STORE_PATH")
	overrideString(&cfg.Store.OnCorrupt, "VOICEID_STORE_ON_CORRUPT")
	overrideString(&cfg.Embedder.Mode, "VOICEID_EMBEDDER_MODE")
	overrideString(&cfg.Embedder.Command, "VOICEID_EMBEDDER_COMMAND")
	overrideInt(&cfg.Embedder.Dimension, "VOICEID_EMBEDDER_DIMENSION")
	overrideInt(&cfg.Embedder.TimeoutMS, "VOICEID_EMBEDDER_TIMEOUT_MS")
	overrideFloat(&cfg.Matcher.Threshold, "VOICEID_MATCHER_THRESHOLD")
	overrideString(&cfg.Audit.Path, "VOICEID_AUDIT_PATH")
	overrideString(&cfg.Audit.RetentionMode, "VOICEID_AUDIT_RETENTION_MODE")
	overrideInt(&cfg.Audit.RetentionDays, "VOICEID_AUDIT_RETENTION_DAYS")
	overrideInt(&cfg.Audit.MaxRecords, "VOICEID_AUDIT_MAX_RECORDS")
	overrideBool(&cfg.Ingest.Enabled, "VOICEID_INGEST_ENABLED")
	overrideInt(&cfg.Ingest.SampleRate, "VOICEID_INGEST_SAMPLE_RATE")
	overrideInt(&cfg.Ingest.Channels, "VOICEID_INGEST_CHANNELS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		return errors.New("http.max_upload_bytes must be positive")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	switch cfg.Store.OnCorrupt {
	case "reset", "fail":
	default:
		return errors.New("store.on_corrupt must be one of reset|fail")
	}
	switch cfg.Embedder.Mode {
	case "mock", "exec":
	default:
		return errors.New("embedder.mode must be one of mock|exec")
	}
	if cfg.Embedder.Mode == "exec" && cfg.Embedder.Command == "" {
		return errors.New("embedder.command must be set when mode=exec")
	}
	if cfg.Embedder.Dimension <= 0 {
		return errors.New("embedder.dimension must be positive")
	}
	if cfg.Matcher.Threshold < -1 || cfg.Matcher.Threshold > 1 {
		return errors.New("matcher.threshold must be within [-1, 1]")
	}
	switch cfg.Audit.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("audit.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Audit.RetentionMode == "persistent" && cfg.Audit.Path == "" {
		return errors.New("audit.path must not be empty when retention is persistent")
	}
	if cfg.Audit.RetentionDays < 0 {
		return errors.New("audit.retention_days must be >= 0")
	}
	if cfg.Ingest.Enabled {
		if !cfg.Bus.Enabled {
			return errors.New("ingest requires the bus to be enabled")
		}
		if cfg.Ingest.SampleRate <= 0 {
			return errors.New("ingest.sample_rate must be positive")
		}
		if cfg.Ingest.Channels <= 0 {
			return errors.New("ingest.channels must be positive")
		}
	}
	return nil
}

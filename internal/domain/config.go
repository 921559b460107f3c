package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which infrastructure backends are used
	Tier Tier `json:"tier" env:"KESTREL_TIER"`

	// Detection engine connection
	Engine EngineConfig `json:"engine"`

	// Simulation session settings
	Session SessionConfig `json:"session"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string `json:"host" env:"KESTREL_HOST"`
	Port          int    `json:"port" env:"KESTREL_PORT"`
	ReadTimeout   int    `json:"readTimeout" env:"KESTREL_READ_TIMEOUT"`   // seconds
	WriteTimeout  int    `json:"writeTimeout" env:"KESTREL_WRITE_TIMEOUT"` // seconds
	MaxUploadSize int64  `json:"maxUploadSize" env:"KESTREL_MAX_UPLOAD_BYTES"`
}

// EngineConfig points at the external detection engine.
type EngineConfig struct {
	BaseURL string        `json:"baseUrl" env:"KESTREL_ENGINE_URL"`
	Timeout time.Duration `json:"timeout" env:"KESTREL_ENGINE_TIMEOUT"`
}

// SessionConfig holds simulation session settings.
type SessionConfig struct {
	HistorySize int `json:"historySize" env:"KESTREL_HISTORY_SIZE"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"KESTREL_LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"KESTREL_LOG_FORMAT"` // json, text
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs everything in-process: LRU cache, channel bus, SQLite audit.
	TierCommunity Tier = "community"

	// TierPro uses Redis, NATS and PostgreSQL.
	TierPro Tier = "pro"
)

// DefaultHistorySize is the number of simulations kept for recall.
const DefaultHistorySize = 5

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8081,
			ReadTimeout:   60,
			WriteTimeout:  120,
			MaxUploadSize: 64 << 20,
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 120 * time.Second,
		},
		Session: SessionConfig{
			HistorySize: DefaultHistorySize,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  1000,
			LocalTTL:      5 * time.Minute,
			SuggestionTTL: time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		SuggestionTTL:  time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	return cfg
}

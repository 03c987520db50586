package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Backup  BackupConfig  `mapstructure:"backup"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Auth    AuthConfig    `mapstructure:"auth"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// StorageConfig selects the local persistence backend
type StorageConfig struct {
	Driver      string        `mapstructure:"driver"` // bolt | sqlite
	BoltPath    string        `mapstructure:"bolt_path"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// BackupConfig selects the remote backup backend
type BackupConfig struct {
	Provider      string `mapstructure:"provider"` // drive | gcs | none
	ContainerName string `mapstructure:"container_name"`
	Archive       bool   `mapstructure:"archive"`
	DriveEndpoint string `mapstructure:"drive_endpoint"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
}

type SyncConfig struct {
	RemoteTimeout      time.Duration `mapstructure:"remote_timeout"`
	LogoutPollInterval time.Duration `mapstructure:"logout_poll_interval"`
}

type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	GoogleClientID     string        `mapstructure:"google_client_id"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	EncryptionSecret   string        `mapstructure:"encryption_secret"`
}

type LLMConfig struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	OpenAI          OpenAIConfig  `mapstructure:"openai"`
	Ollama          OllamaConfig  `mapstructure:"ollama"`
	Gemini          GeminiConfig  `mapstructure:"gemini"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// ChatConfig holds prompt and generation settings for replies
type ChatConfig struct {
	SystemPrompt   string  `mapstructure:"system_prompt"`
	ContextSize    int     `mapstructure:"context_size"`
	MaxNewTokens   int     `mapstructure:"max_new_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	DoSample       bool    `mapstructure:"do_sample"`
	RateLimitRPM   int     `mapstructure:"rate_limit_rpm"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LoggingConfig struct {
	Level        string        `mapstructure:"level"`
	Format       string        `mapstructure:"format"`
	File         string        `mapstructure:"file"`
	RotationTime time.Duration `mapstructure:"rotation_time"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine: defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the server cannot start with
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.GoogleClientID == "" && !c.Auth.InsecureSkipVerify {
		return fmt.Errorf("auth.google_client_id is required unless auth.insecure_skip_verify is set")
	}
	switch c.Storage.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}
	switch c.Backup.Provider {
	case "drive", "none":
	case "gcs":
		if c.Backup.GCSBucket == "" {
			return fmt.Errorf("backup.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unsupported backup provider: %q", c.Backup.Provider)
	}
	if c.Sync.RemoteTimeout <= 0 {
		return fmt.Errorf("sync.remote_timeout must be positive")
	}
	return nil
}

// TokenEncryptionSecret returns the secret used for tokens at rest,
// falling back to the JWT secret
func (c AuthConfig) TokenEncryptionSecret() string {
	if c.EncryptionSecret != "" {
		return c.EncryptionSecret
	}
	return c.JWTSecret
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "80s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Storage
	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.bolt_path", "./data/chats.bolt")
	v.SetDefault("storage.sqlite_path", "./data/chats.db")
	v.SetDefault("storage.open_timeout", "2s")

	// Backup
	v.SetDefault("backup.provider", "drive")
	v.SetDefault("backup.container_name", "AI Chat Backups")
	v.SetDefault("backup.archive", true)

	// Sync
	v.SetDefault("sync.remote_timeout", "10s")
	v.SetDefault("sync.logout_poll_interval", "2s")

	// Auth
	v.SetDefault("auth.session_ttl", "168h") // 7 days

	// LLM
	v.SetDefault("llm.default_provider", "ollama")
	v.SetDefault("llm.ollama.host", "http://localhost:11434")
	v.SetDefault("llm.ollama.default_model", "llama3")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout", "60s")

	// Chat
	v.SetDefault("chat.system_prompt", "You are a helpful, friendly AI assistant. Provide concise and thoughtful answers.")
	v.SetDefault("chat.context_size", 10)
	v.SetDefault("chat.max_new_tokens", 100)
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.do_sample", true)
	v.SetDefault("chat.rate_limit_rpm", 20)
	v.SetDefault("chat.rate_limit_burst", 5)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "chatvault:session-events")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.rotation_time", "24h")
	v.SetDefault("logging.max_age", "168h")
}

func bindEnvVars(v *viper.Viper) {
	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.encryption_secret", "TOKEN_ENCRYPTION_SECRET")
	v.BindEnv("auth.google_client_id", "GOOGLE_CLIENT_ID")

	// Backup
	v.BindEnv("backup.gcs_bucket", "GCS_BACKUP_BUCKET")

	// LLM API Keys
	v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")
}

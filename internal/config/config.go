package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the system-wide settings coordinator.
// ARCHITECTURAL DISCOVERY: Configuration layer stays free of business logic;
// components receive validated values by injection, never read viper directly.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type DatabaseConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BufferSize   int           `mapstructure:"buffer_size"`
}

type PresenceConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	TypingTTL  time.Duration `mapstructure:"typing_ttl"`
	SweepEvery time.Duration `mapstructure:"sweep_every"`
}

type GatewayConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	FacilitationModel  string        `mapstructure:"facilitation_model"`
	TranscriptionModel string        `mapstructure:"transcription_model"`
	TTSModel           string        `mapstructure:"tts_model"`
	TTSVoice           string        `mapstructure:"tts_voice"`
	AudioDir           string        `mapstructure:"audio_dir"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
}

type AuthConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
}

// Load builds a Config from defaults, CODESIGN_* environment variables and
// an optional config file, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "./codesign.db")
	v.SetDefault("database.timeout", 30*time.Second)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.read_timeout", 60*time.Second)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.buffer_size", 100)
	v.SetDefault("presence.ttl", 5*time.Minute)
	v.SetDefault("presence.typing_ttl", 5*time.Second)
	v.SetDefault("presence.sweep_every", time.Minute)
	v.SetDefault("gateway.facilitation_model", "gemini-2.0-flash")
	v.SetDefault("gateway.transcription_model", "gemini-2.0-flash")
	v.SetDefault("gateway.tts_model", "gemini-2.5-flash-preview-tts")
	v.SetDefault("gateway.tts_voice", "Kore")
	v.SetDefault("gateway.audio_dir", "")
	v.SetDefault("gateway.call_timeout", 60*time.Second)

	v.SetEnvPrefix("CODESIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration, used by tests and as the base
// for Load.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

// Validate rejects settings that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Presence.TTL <= 0 || c.Presence.TypingTTL <= 0 {
		return fmt.Errorf("presence TTLs must be positive")
	}
	if c.Presence.TypingTTL >= c.Presence.TTL {
		return fmt.Errorf("typing TTL must be shorter than presence TTL")
	}
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("gateway call timeout must be positive")
	}
	return nil
}

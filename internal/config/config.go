package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode" validate:"oneof=debug release"`
	Port       int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath string        `mapstructure:"static_path" validate:"required"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit" validate:"min=1024"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"gt=0"`

	MaxConnections int `mapstructure:"max_connections" validate:"min=1"`

	// Per-kind payload bounds enforced by the codec.
	MaxTextChars  int `mapstructure:"max_text_chars" validate:"min=1"`
	MaxVoiceBytes int `mapstructure:"max_voice_bytes" validate:"min=1"`
	MaxFileBytes  int `mapstructure:"max_file_bytes" validate:"min=1"`

	// Outbound flow control. The queue modes pick what a full per-session
	// queue does to the producer: "drop_oldest" or "block".
	QueueDepth       int           `mapstructure:"queue_depth" validate:"min=1"`
	QueuePolicyText  string        `mapstructure:"queue_policy_text" validate:"oneof=block drop_oldest"`
	QueuePolicyMedia string        `mapstructure:"queue_policy_media" validate:"oneof=block drop_oldest"`
	EnqueueTimeout   time.Duration `mapstructure:"enqueue_timeout" validate:"gt=0"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout" validate:"gt=0"`

	EmptyRoomTTL time.Duration `mapstructure:"empty_room_ttl" validate:"gte=0"`
	// UserTTL prunes display identities with no live session; 0 disables.
	UserTTL time.Duration `mapstructure:"user_ttl" validate:"gte=0"`
	DefaultRoom  string        `mapstructure:"default_room" validate:"required"`
	// Echo re-delivers a sender's own envelope as the server-confirmed copy.
	Echo bool `mapstructure:"echo"`

	RateLimit    int           `mapstructure:"rate_limit" validate:"min=1"`
	RateInterval time.Duration `mapstructure:"rate_interval" validate:"gt=0"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	// Must fit the largest file message after base64 inflation (~4/3).
	v.SetDefault("read_limit", 1<<23)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("max_connections", 256)
	v.SetDefault("max_text_chars", 2000)
	v.SetDefault("max_voice_bytes", 1<<20)
	v.SetDefault("max_file_bytes", 4<<20)
	v.SetDefault("queue_depth", 32)
	v.SetDefault("queue_policy_text", "block")
	v.SetDefault("queue_policy_media", "drop_oldest")
	v.SetDefault("enqueue_timeout", "2s")
	v.SetDefault("drain_timeout", "5s")
	v.SetDefault("empty_room_ttl", "60s")
	v.SetDefault("user_ttl", "1h")
	v.SetDefault("default_room", "main")
	v.SetDefault("echo", true)
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

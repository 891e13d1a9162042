package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	Development         bool   `mapstructure:"development"`
}

type MongoCfg struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaCfg struct {
	Brokers    []string `mapstructure:"brokers"`
	EventTopic string   `mapstructure:"event_topic"`
	AuditTopic string   `mapstructure:"audit_topic"`
	GroupID    string   `mapstructure:"group_id"`
}

type S3Cfg struct {
	Region     string `mapstructure:"region"`
	Bucket     string `mapstructure:"bucket"`
	Endpoint   string `mapstructure:"endpoint"`
	PublicRead bool   `mapstructure:"public_read"`
}

type JwtCfg struct {
	Secret string `mapstructure:"secret"`
}

type ConsulCfg struct {
	Addr        string `mapstructure:"addr"`
	ServiceName string `mapstructure:"service_name"`
	ServiceID   string `mapstructure:"service_id"`
}

type ChatCfg struct {
	PageSize            int   `mapstructure:"page_size"`
	RetentionCap        int   `mapstructure:"retention_cap"`
	SweepSeconds        int   `mapstructure:"sweep_seconds"`
	TypingWindowSeconds int   `mapstructure:"typing_window_seconds"`
	MaxAttachmentBytes  int64 `mapstructure:"max_attachment_bytes"`
}

type AssistCfg struct {
	Endpoint            string `mapstructure:"endpoint"`
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model"`
	SuggestDebounceMS   int    `mapstructure:"suggest_debounce_ms"`
	ModerateDebounceMS  int    `mapstructure:"moderate_debounce_ms"`
	ThrottleSpacingMS   int    `mapstructure:"throttle_spacing_ms"`
	RequestTimeoutSecs  int    `mapstructure:"request_timeout_seconds"`
	RetryMaxElapsedSecs int    `mapstructure:"retry_max_elapsed_seconds"`
}

type Config struct {
	Server ServerCfg `mapstructure:"server"`
	Mongo  MongoCfg  `mapstructure:"mongo"`
	Redis  RedisCfg  `mapstructure:"redis"`
	Kafka  KafkaCfg  `mapstructure:"kafka"`
	S3     S3Cfg     `mapstructure:"s3"`
	JWT    JwtCfg    `mapstructure:"jwt"`
	Consul ConsulCfg `mapstructure:"consul"`
	Chat   ChatCfg   `mapstructure:"chat"`
	Assist AssistCfg `mapstructure:"assist"`

	// Derived
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SweepEvery   time.Duration
	TypingWindow time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Chat.PageSize == 0 {
		cfg.Chat.PageSize = 50
	}
	if cfg.Chat.RetentionCap == 0 {
		cfg.Chat.RetentionCap = 150
	}
	if cfg.Chat.SweepSeconds == 0 {
		cfg.Chat.SweepSeconds = 30
	}
	if cfg.Chat.TypingWindowSeconds == 0 {
		cfg.Chat.TypingWindowSeconds = 6
	}
	if cfg.Chat.MaxAttachmentBytes == 0 {
		cfg.Chat.MaxAttachmentBytes = 25 << 20
	}
	if cfg.Assist.SuggestDebounceMS == 0 {
		cfg.Assist.SuggestDebounceMS = 500
	}
	if cfg.Assist.ModerateDebounceMS == 0 {
		cfg.Assist.ModerateDebounceMS = 800
	}
	if cfg.Assist.ThrottleSpacingMS == 0 {
		cfg.Assist.ThrottleSpacingMS = 200
	}
	if cfg.Assist.RequestTimeoutSecs == 0 {
		cfg.Assist.RequestTimeoutSecs = 10
	}
	if cfg.Assist.RetryMaxElapsedSecs == 0 {
		cfg.Assist.RetryMaxElapsedSecs = 15
	}
	if cfg.Kafka.EventTopic == "" {
		cfg.Kafka.EventTopic = "chat.events"
	}
	if cfg.Kafka.AuditTopic == "" {
		cfg.Kafka.AuditTopic = "chat.moderation"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "chat-gateway"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "chat"
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.SweepEvery = time.Duration(cfg.Chat.SweepSeconds) * time.Second
	cfg.TypingWindow = time.Duration(cfg.Chat.TypingWindowSeconds) * time.Second
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	Call        CallConfig        `mapstructure:"call"`
	Meeting     MeetingConfig     `mapstructure:"meeting"`
	Integration IntegrationConfig `mapstructure:"integration"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	MachineId      uint16   `mapstructure:"machine_id"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	AuthTimeout      time.Duration `mapstructure:"auth_timeout"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
	EventRate        float64       `mapstructure:"event_rate"`  // inbound events per second per connection
	EventBurst       int           `mapstructure:"event_burst"` // burst allowance for EventRate
}

// PresenceConfig holds liveness and typing timeouts
type PresenceConfig struct {
	OfflineTimeout time.Duration `mapstructure:"offline_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	TypingTimeout  time.Duration `mapstructure:"typing_timeout"`
}

// CallConfig holds call signaling configuration
type CallConfig struct {
	RingTimeout     time.Duration `mapstructure:"ring_timeout"`
	MaxParticipants int           `mapstructure:"max_participants"`
	JoinBaseURL     string        `mapstructure:"join_base_url"`
	RoomSecret      string        `mapstructure:"room_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	// DeniedUsers may answer calls but not start them
	DeniedUsers []string `mapstructure:"denied_users"`
}

// MeetingConfig holds meeting scheduler configuration
type MeetingConfig struct {
	ReminderLead time.Duration `mapstructure:"reminder_lead"`
	StartingLead time.Duration `mapstructure:"starting_lead"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// IntegrationConfig is the video integration configuration served to clients
type IntegrationConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	AutoJoin       bool   `mapstructure:"auto_join"`
	DefaultQuality string `mapstructure:"default_quality"`
}

// Configured reports whether the integration has a usable endpoint
func (c *IntegrationConfig) Configured() bool {
	return c.BaseURL != ""
}

// KafkaConfig holds the event stream configuration. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	GlobalConfig = &cfg
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.MachineId == 0 {
		cfg.Server.MachineId = 1
	}
	if cfg.MySQL.Charset == "" {
		cfg.MySQL.Charset = "utf8mb4"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "neon:"
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 168 // 7 days
	}

	ws := &cfg.WebSocket
	if ws.MaxConnNum == 0 {
		ws.MaxConnNum = 10000
	}
	if ws.MaxMessageSize == 0 {
		ws.MaxMessageSize = 51200
	}
	if ws.WriteWait == 0 {
		ws.WriteWait = 10 * time.Second
	}
	if ws.PongWait == 0 {
		ws.PongWait = 60 * time.Second
	}
	if ws.PingPeriod == 0 {
		ws.PingPeriod = 25 * time.Second
	}
	if ws.AuthTimeout == 0 {
		ws.AuthTimeout = 10 * time.Second
	}
	if ws.WriteChannelSize == 0 {
		ws.WriteChannelSize = 256
	}
	if ws.EventRate == 0 {
		ws.EventRate = 20
	}
	if ws.EventBurst == 0 {
		ws.EventBurst = 40
	}

	if cfg.Presence.OfflineTimeout == 0 {
		cfg.Presence.OfflineTimeout = 60 * time.Second
	}
	if cfg.Presence.SweepInterval == 0 {
		cfg.Presence.SweepInterval = 5 * time.Second
	}
	if cfg.Presence.TypingTimeout == 0 {
		cfg.Presence.TypingTimeout = 5 * time.Second
	}

	if cfg.Call.RingTimeout == 0 {
		cfg.Call.RingTimeout = 45 * time.Second
	}
	if cfg.Call.MaxParticipants == 0 {
		cfg.Call.MaxParticipants = 16
	}
	if cfg.Call.TokenTTL == 0 {
		cfg.Call.TokenTTL = 2 * time.Hour
	}
	if cfg.Call.RoomSecret == "" {
		cfg.Call.RoomSecret = cfg.JWT.Secret
	}
	if cfg.Call.JoinBaseURL == "" {
		cfg.Call.JoinBaseURL = cfg.Integration.BaseURL
	}

	if cfg.Meeting.ReminderLead == 0 {
		cfg.Meeting.ReminderLead = 10 * time.Minute
	}
	if cfg.Meeting.StartingLead == 0 {
		cfg.Meeting.StartingLead = time.Minute
	}
	if cfg.Meeting.TickInterval == 0 {
		cfg.Meeting.TickInterval = 15 * time.Second
	}

	if cfg.Integration.DefaultQuality == "" {
		cfg.Integration.DefaultQuality = "auto"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "neon.realtime"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Package config loads the fill engine configuration from YAML.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Konnektive KonnektiveConfig `mapstructure:"konnektive"`
	DoseSpot   DoseSpotConfig   `mapstructure:"dosespot"`
	WellDyne   WellDyneConfig   `mapstructure:"welldyne"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	SMS        SMSConfig        `mapstructure:"sms"`
	API        APIConfig        `mapstructure:"api"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Env          string `mapstructure:"env"`
	LogLevel     string `mapstructure:"log_level"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// MySQLConfig holds the database DSN.
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the run-lock Redis connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// LockTTL bounds how long a crashed run can hold the batch lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// KafkaConfig holds the audit event brokers. Empty brokers disables events.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// KonnektiveConfig holds CRM API credentials.
type KonnektiveConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	LoginID  string `mapstructure:"login_id"`
	Password string `mapstructure:"password"`
}

// DoseSpotConfig holds the internal prescriptions service settings.
type DoseSpotConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	InternalKey string `mapstructure:"internal_key"`
}

// WellDyneConfig holds the SFTP site settings.
type WellDyneConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	RemoteDir string `mapstructure:"remote_dir"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host              string            `mapstructure:"host"`
	Port              int               `mapstructure:"port"`
	User              string            `mapstructure:"user"`
	Password          string            `mapstructure:"password"`
	From              string            `mapstructure:"from"`
	DevAddress        string            `mapstructure:"dev_address"`
	PharmacyAddresses map[string]string `mapstructure:"pharmacy_addresses"`
}

// SMSConfig holds the SMS gateway settings for renewal reminders.
type SMSConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
	From  string `mapstructure:"from"`
}

// APIConfig holds the admin API listener settings.
type APIConfig struct {
	Port    string            `mapstructure:"port"`
	APIKeys map[string]string `mapstructure:"api_keys"`
}

// Load reads a YAML config file.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("redis.lock_ttl", 30*time.Minute)
	viper.SetDefault("welldyne.port", 22)
	viper.SetDefault("welldyne.remote_dir", "/inbound")
	viper.SetDefault("api.port", "8082")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if c.Konnektive.LoginID == "" {
		return fmt.Errorf("konnektive.login_id is required")
	}
	if c.DoseSpot.BaseURL == "" {
		return fmt.Errorf("dosespot.base_url is required")
	}
	return nil
}

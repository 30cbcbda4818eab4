package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	APNs     APNsConfig     `yaml:"apns"`
	Voting   VotingConfig   `yaml:"voting"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	CORSOrigins string `yaml:"cors_origins"`
}

// DatabaseConfig holds database configuration.
// Driver is "postgres" (default) or "memory" for a throwaway local store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds object storage configuration
type AWSConfig struct {
	Region     string `yaml:"region"`
	S3Bucket   string `yaml:"s3_bucket"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	DisableSSL bool   `yaml:"disable_ssl"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig holds the standings cache connection. Empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APNsConfig holds push notification settings. Empty KeyFile disables pushes.
type APNsConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// VotingConfig holds the rating and quota defaults applied to new contests
type VotingConfig struct {
	BaseRating           float64       `yaml:"base_rating"`
	KFactor              float64       `yaml:"k_factor"`
	DefaultMaxTotalVotes int           `yaml:"default_max_total_votes"`
	DefaultMaxDailyVotes int           `yaml:"default_max_daily_votes"`
	DefaultWinnerCount   int           `yaml:"default_winner_count"`
	StratumFraction      float64       `yaml:"stratum_fraction"`
	CloseSweepInterval   time.Duration `yaml:"close_sweep_interval"`
	VoteRateLimit        int           `yaml:"vote_rate_limit"`
}

// Default voting values
const (
	DefaultBaseRating         = 1000.0
	DefaultKFactor            = 32.0
	DefaultMaxDailyVotes      = 100
	DefaultWinnerCount        = 1
	DefaultStratumFraction    = 0.25
	DefaultCloseSweepInterval = time.Minute
	DefaultVoteRateLimit      = 60
)

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file
func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" && c.AWS.AccessKey != "" {
		c.AWS.SecretKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Server.CORSOrigins == "" {
		c.Server.CORSOrigins = "*"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	v := &c.Voting
	if v.BaseRating == 0 {
		v.BaseRating = DefaultBaseRating
	}
	if v.KFactor == 0 {
		v.KFactor = DefaultKFactor
	}
	if v.DefaultMaxDailyVotes == 0 {
		v.DefaultMaxDailyVotes = DefaultMaxDailyVotes
	}
	if v.DefaultWinnerCount == 0 {
		v.DefaultWinnerCount = DefaultWinnerCount
	}
	if v.StratumFraction == 0 {
		v.StratumFraction = DefaultStratumFraction
	}
	if v.CloseSweepInterval == 0 {
		v.CloseSweepInterval = DefaultCloseSweepInterval
	}
	if v.VoteRateLimit == 0 {
		v.VoteRateLimit = DefaultVoteRateLimit
	}
}

// Validate checks values that would break the voting engine
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Voting.KFactor < 0 {
		return fmt.Errorf("voting.k_factor must not be negative (0 selects the default)")
	}
	if c.Voting.VoteRateLimit < 0 {
		return fmt.Errorf("voting.vote_rate_limit must not be negative (0 selects the default)")
	}
	if c.Voting.StratumFraction <= 0 || c.Voting.StratumFraction > 1 {
		return fmt.Errorf("voting.stratum_fraction must be in (0, 1]")
	}
	if c.Voting.DefaultMaxTotalVotes < 0 || c.Voting.DefaultMaxDailyVotes < 0 {
		return fmt.Errorf("voting quota defaults must not be negative")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

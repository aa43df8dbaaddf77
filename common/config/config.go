package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SCOREBOARD"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	SQL       SQLConfig       `mapstructure:"sql"`
	AWS       AWSConfig       `mapstructure:"aws"`
	DynamoDB  DynamoDBConfig  `mapstructure:"dynamodb"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RankIndex RankIndexConfig `mapstructure:"rankindex"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Rewards   RewardsConfig   `mapstructure:"rewards"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	Environment     string        `mapstructure:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StoreConfig selects the source-of-truth backend: postgres, sqlite or dynamodb.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type SQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

type DynamoDBConfig struct {
	TableName        string `mapstructure:"table_name"`
	MaxRetries       int    `mapstructure:"max_retries"`
	UseLocalEndpoint bool   `mapstructure:"use_local_endpoint"`
	CreateTable      bool   `mapstructure:"create_table"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// RankIndexConfig selects where the two ranked indexes live: memory or redis.
type RankIndexConfig struct {
	Backend          string `mapstructure:"backend"`
	KeyPrefix        string `mapstructure:"key_prefix"`
	BackfillOnStart  bool   `mapstructure:"backfill_on_start"`
	BackfillPageSize int    `mapstructure:"backfill_page_size"`
}

type NATSConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	URL                  string `mapstructure:"url"`
	MaxReconnect         int    `mapstructure:"max_reconnect"`
	ReconnectWaitSeconds int    `mapstructure:"reconnect_wait_seconds"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
}

type RewardsConfig struct {
	// ScoreUpdateRate limits in-progress score updates per user per second. Zero disables it.
	ScoreUpdateRate  float64 `mapstructure:"score_update_rate"`
	ScoreUpdateBurst int     `mapstructure:"score_update_burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("store.driver", "sqlite")

	v.SetDefault("sql.dsn", "file:scoreboard.db?_pragma=busy_timeout(5000)")
	v.SetDefault("sql.max_open_conns", 10)
	v.SetDefault("sql.max_idle_conns", 5)
	v.SetDefault("sql.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("sql.connect_timeout", 30*time.Second)
	v.SetDefault("sql.auto_migrate", true)

	v.SetDefault("aws.region", "eu-central-1")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("dynamodb.table_name", "scoreboard")
	v.SetDefault("dynamodb.max_retries", 3)
	v.SetDefault("dynamodb.use_local_endpoint", false)
	v.SetDefault("dynamodb.create_table", false)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("rankindex.backend", "memory")
	v.SetDefault("rankindex.key_prefix", "scoreboard:rank")
	v.SetDefault("rankindex.backfill_on_start", true)
	v.SetDefault("rankindex.backfill_page_size", 500)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnect", -1)
	v.SetDefault("nats.reconnect_wait_seconds", 2)
	v.SetDefault("nats.timeout_seconds", 5)

	v.SetDefault("rewards.score_update_rate", 0)
	v.SetDefault("rewards.score_update_burst", 5)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
}

// Load reads config.yaml from ./config, the working directory or configPath,
// then applies SCOREBOARD_* environment overrides (server.grpc_port is
// SCOREBOARD_SERVER_GRPC_PORT). A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

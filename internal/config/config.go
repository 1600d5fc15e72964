package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Audit  AuditConfig  `mapstructure:"audit"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WorkerID        int64         `mapstructure:"worker_id"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled        bool             `mapstructure:"enabled"`
	Brokers        []string         `mapstructure:"brokers"`
	Topic          KafkaTopicConfig `mapstructure:"topic"`
	MaxRetryCount  int              `mapstructure:"max_retry_count"`
	BatchSize      int              `mapstructure:"batch_size"`
	SenderInterval time.Duration    `mapstructure:"sender_interval"`
}

type KafkaTopicConfig struct {
	TransactionPosted string `mapstructure:"transaction_posted"`
}

// LedgerConfig 账务核心参数
type LedgerConfig struct {
	StorageDriver     string        `mapstructure:"storage_driver"` // mysql | memory
	LockDriver        string        `mapstructure:"lock_driver"`    // redis | local
	MaxRetries        int           `mapstructure:"max_retries"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockWait          time.Duration `mapstructure:"lock_wait"`
	LockRetryInterval time.Duration `mapstructure:"lock_retry_interval"`
	DefaultPageSize   int           `mapstructure:"default_page_size"`
	MaxPageSize       int           `mapstructure:"max_page_size"`
}

type AuditConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
	Prefix string `mapstructure:"prefix"`
}

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
	LockRedis     = "redis"
	LockLocal     = "local"
)

const envPrefix = "BANKLEDGER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "bankledger")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.transaction_posted", "ledger.transaction.posted")
	v.SetDefault("kafka.max_retry_count", 5)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.sender_interval", time.Second)

	v.SetDefault("ledger.storage_driver", StorageMySQL)
	v.SetDefault("ledger.lock_driver", LockRedis)
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.lock_ttl", 30*time.Second)
	v.SetDefault("ledger.lock_wait", 5*time.Second)
	v.SetDefault("ledger.lock_retry_interval", 50*time.Millisecond)
	v.SetDefault("ledger.default_page_size", 10)
	v.SetDefault("ledger.max_page_size", 100)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.interval", time.Minute)
	v.SetDefault("audit.batch_size", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.prefix", "bankledger")
}

// LoadConfig 加载配置文件
//
// An empty path skips the file and uses defaults plus BANKLEDGER_* env vars,
// e.g. BANKLEDGER_LEDGER_MAX_RETRIES=5.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Ledger.StorageDriver {
	case StorageMySQL, StorageMemory:
	default:
		return fmt.Errorf("ledger.storage_driver: unknown driver %q", c.Ledger.StorageDriver)
	}
	switch c.Ledger.LockDriver {
	case LockRedis, LockLocal:
	default:
		return fmt.Errorf("ledger.lock_driver: unknown driver %q", c.Ledger.LockDriver)
	}
	if c.Ledger.MaxRetries < 1 {
		return fmt.Errorf("ledger.max_retries must be at least 1, got %d", c.Ledger.MaxRetries)
	}
	if c.Ledger.DefaultPageSize < 1 || c.Ledger.MaxPageSize < c.Ledger.DefaultPageSize {
		return fmt.Errorf("ledger page sizes: default=%d max=%d", c.Ledger.DefaultPageSize, c.Ledger.MaxPageSize)
	}
	return nil
}

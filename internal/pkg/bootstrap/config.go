// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是服务的全部配置，来自 YAML 文件并允许环境变量覆盖
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// ClaimLockTTL 必须大于任何票种的支付超时
	ClaimLockTTL          time.Duration `yaml:"claim_lock_ttl"`
	RestoreMarkerTTL      time.Duration `yaml:"restore_marker_ttl"`
	DefaultPaymentTimeout time.Duration `yaml:"default_payment_timeout"`
	CatalogCacheTTL       time.Duration `yaml:"catalog_cache_ttl"`
	SnowflakeNode         int64         `yaml:"snowflake_node"`

	ScheduleRetry RetryConfig `yaml:"schedule_retry"`
	ConsumerRetry RetryConfig `yaml:"consumer_retry"`
}

type RetryConfig struct {
	Attempts uint64        `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type InfraConfig struct {
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Jaeger JaegerConfig `yaml:"jaeger"`
	Nacos  NacosConfig  `yaml:"nacos"`
}

type RedisConfig struct {
	Addrs    string `yaml:"addrs"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	CompensationTopic string   `yaml:"compensation_topic"`
	DLTTopic          string   `yaml:"dlt_topic"`
	ConsumerGroup     string   `yaml:"consumer_group"`
}

type MySQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
}

var (
	currentMu     sync.RWMutex
	currentConfig *Config
)

// DefaultConfig 返回本地开发环境可直接使用的配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "ticket-service",
			Port:                  8080,
			LogLevel:              "info",
			ClaimLockTTL:          time.Hour,
			RestoreMarkerTTL:      7 * 24 * time.Hour,
			DefaultPaymentTimeout: 15 * time.Minute,
			CatalogCacheTTL:       30 * time.Second,
			SnowflakeNode:         1,
			ScheduleRetry:         RetryConfig{Attempts: 3, Backoff: 100 * time.Millisecond},
			ConsumerRetry:         RetryConfig{Attempts: 5, Backoff: 200 * time.Millisecond},
		},
		Infra: InfraConfig{
			Redis: RedisConfig{Addrs: "localhost:6379"},
			Kafka: KafkaConfig{
				Brokers:           []string{"localhost:9092"},
				CompensationTopic: "ticket-compensation-topic",
				DLTTopic:          "ticket-compensation-topic-dlt",
				ConsumerGroup:     "ticket-compensation-group",
			},
			MySQL: MySQLConfig{
				Host: "localhost", Port: 3306, User: "root", Database: "ticketrush",
				MaxOpenConns: 50, MaxIdleConns: 10,
			},
			Nacos: NacosConfig{Addrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
	}
}

// Init 从 CONFIG_PATH（默认 configs/config.yaml）加载配置并设为当前配置。
// 文件不存在时使用默认配置和环境变量。
func Init() error {
	path := getEnv("CONFIG_PATH", "configs/config.yaml")
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	SetCurrentConfig(cfg)
	return nil
}

// Load 读取 YAML 文件，依次应用默认值、文件内容、环境变量，最后校验
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// 容器环境只用环境变量
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置之间的约束
func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return fmt.Errorf("app.port must be positive, got %d", c.App.Port)
	}
	if c.App.ClaimLockTTL <= c.App.DefaultPaymentTimeout {
		return fmt.Errorf("app.claim_lock_ttl (%s) must be greater than app.default_payment_timeout (%s)",
			c.App.ClaimLockTTL, c.App.DefaultPaymentTimeout)
	}
	if c.App.RestoreMarkerTTL < c.App.ClaimLockTTL {
		return fmt.Errorf("app.restore_marker_ttl (%s) must not be shorter than app.claim_lock_ttl (%s)",
			c.App.RestoreMarkerTTL, c.App.ClaimLockTTL)
	}
	if c.App.SnowflakeNode < 0 || c.App.SnowflakeNode > 1023 {
		return fmt.Errorf("app.snowflake_node must be within [0, 1023], got %d", c.App.SnowflakeNode)
	}
	for name, r := range map[string]RetryConfig{"schedule_retry": c.App.ScheduleRetry, "consumer_retry": c.App.ConsumerRetry} {
		if r.Backoff <= 0 {
			return fmt.Errorf("app.%s.backoff must be positive, got %s", name, r.Backoff)
		}
	}
	if strings.TrimSpace(c.Infra.Redis.Addrs) == "" {
		return fmt.Errorf("infra.redis.addrs is required")
	}
	if len(c.Infra.Kafka.Brokers) == 0 {
		return fmt.Errorf("infra.kafka.brokers is required")
	}
	if c.Infra.Kafka.CompensationTopic == "" || c.Infra.Kafka.DLTTopic == "" {
		return fmt.Errorf("infra.kafka.compensation_topic and infra.kafka.dlt_topic are required")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.App.LogLevel = v
	}
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT %q: %w", v, err)
		}
		cfg.App.Port = port
	}
	if v, ok := os.LookupEnv("SNOWFLAKE_NODE"); ok {
		node, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SNOWFLAKE_NODE %q: %w", v, err)
		}
		cfg.App.SnowflakeNode = node
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		cfg.Infra.Redis.Addrs = v
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		cfg.Infra.Redis.Password = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv("MYSQL_HOST"); ok {
		cfg.Infra.MySQL.Host = v
	}
	if v, ok := os.LookupEnv("MYSQL_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", v, err)
		}
		cfg.Infra.MySQL.Port = port
	}
	if v, ok := os.LookupEnv("MYSQL_USER"); ok {
		cfg.Infra.MySQL.User = v
	}
	if v, ok := os.LookupEnv("MYSQL_PASSWORD"); ok {
		cfg.Infra.MySQL.Password = v
	}
	if v, ok := os.LookupEnv("MYSQL_DATABASE"); ok {
		cfg.Infra.MySQL.Database = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid NACOS_ENABLED %q: %w", v, err)
		}
		cfg.Infra.Nacos.Enabled = enabled
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.Addrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
	return nil
}

// GetCurrentConfig 返回 Init 加载的配置，未初始化时返回默认配置
func GetCurrentConfig() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	if currentConfig == nil {
		return DefaultConfig()
	}
	return currentConfig
}

// SetCurrentConfig 替换当前配置
func SetCurrentConfig(cfg *Config) {
	currentMu.Lock()
	currentConfig = cfg
	currentMu.Unlock()
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"

	"saffy-workflow/internal/alert"
	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/permit"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config saffy-workflow 配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}
	Events struct {
		Stream string
	}
	MQTT struct {
		Enabled     bool
		Broker      string
		ClientID    string
		Username    string
		Password    string
		TopicPrefix string
	}
	Webhook struct {
		URL         string
		MinSeverity domain.AlertSeverity
	}
	Log struct {
		Level  string
		Format string
	}

	// POLICY_FILE 覆盖后的最终值
	PolicyFile   string
	ControlTable permit.ControlTable
	AlertPolicy  alert.Policy
}

// Load 读取环境变量；POLICY_FILE 无效时返回错误
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// 默认关闭：DB 未启用时使用内存存储
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "saffy")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Events.Stream = getEnv("EVENTS_STREAM", "facility:events")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "saffy-workflow")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "facility")

	cfg.Webhook.URL = getEnv("WEBHOOK_URL", "")
	cfg.Webhook.MinSeverity = domain.AlertSeverity(getEnv("WEBHOOK_MIN_SEVERITY", "high"))
	if !cfg.Webhook.MinSeverity.Valid() {
		return nil, fmt.Errorf("WEBHOOK_MIN_SEVERITY: unknown severity %q", cfg.Webhook.MinSeverity)
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.PolicyFile = getEnv("POLICY_FILE", "")
	cfg.ControlTable = permit.DefaultControlTable()
	cfg.AlertPolicy = alert.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.ControlTable = cfg.ControlTable.Merge(p.ControlTable)
		cfg.AlertPolicy = p.AlertPolicy
	}
	if err := cfg.ControlTable.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.AlertPolicy.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

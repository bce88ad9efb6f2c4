package config

import (
	"os"
	"strconv"
)

// DBConfig 数据库配置（运行记录）
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Enabled reports whether a database was configured.
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether an AMQP broker was configured.
func (c MQConfig) Enabled() bool {
	return c.URL != ""
}

// RedisConfig Redis配置（邮件缓存 / 回复去重）
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis server was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// MetricsConfig Prometheus Pushgateway 配置
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.DB = n
		}
	}
}

// OverrideMetricsFromEnv 从环境变量覆盖 Pushgateway 配置
func OverrideMetricsFromEnv(cfg *MetricsConfig) {
	if url := os.Getenv("PUSHGATEWAY_URL"); url != "" {
		cfg.PushgatewayURL = url
	}
	if job := os.Getenv("PUSHGATEWAY_JOB"); job != "" {
		cfg.Job = job
	}
}

package config

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Gateway GatewayConfig
	Redis   RedisConfig
	MySQL   MySQLConfig
	Kafka   KafkaConfig
	JWT     JWTConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type GatewayConfig struct {
	MaxConnections    int
	HeartbeatInterval time.Duration
	HistorySize       int
	EventLogSize      int
	HistoryLimit      int
}

type RedisConfig struct {
	URI          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type MySQLConfig struct {
	DSN string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type JWTConfig struct {
	Secret string
}

var (
	configInstance *Config
	once           sync.Once
	loadErr        error
)

// Load reads the environment-driven configuration exactly once.
func Load() (*Config, error) {
	once.Do(func() {
		viper.SetDefault("GATEWAY_HOST", "0.0.0.0")
		viper.SetDefault("GATEWAY_PORT", "8080")
		viper.SetDefault("GATEWAY_READ_TIMEOUT", 30*time.Second)
		viper.SetDefault("GATEWAY_WRITE_TIMEOUT", 30*time.Second)
		viper.SetDefault("GATEWAY_IDLE_TIMEOUT", 120*time.Second)
		viper.SetDefault("GATEWAY_MAX_CONNECTIONS", 1000)
		viper.SetDefault("GATEWAY_HEARTBEAT_INTERVAL", 30*time.Second)
		viper.SetDefault("GATEWAY_HISTORY_SIZE", 1000)
		viper.SetDefault("GATEWAY_EVENT_LOG_SIZE", 10000)
		viper.SetDefault("GATEWAY_HISTORY_LIMIT", 50)
		viper.SetDefault("GATEWAY_JWT_SECRET", "secret")
		viper.SetDefault("GATEWAY_REDIS_URI", "")
		viper.SetDefault("GATEWAY_REDIS_MAX_RETRIES", 3)
		viper.SetDefault("GATEWAY_REDIS_DIAL_TIMEOUT", 5*time.Second)
		viper.SetDefault("GATEWAY_REDIS_READ_TIMEOUT", 3*time.Second)
		viper.SetDefault("GATEWAY_REDIS_WRITE_TIMEOUT", 3*time.Second)
		viper.SetDefault("GATEWAY_REDIS_POOL_SIZE", 10)
		viper.SetDefault("GATEWAY_REDIS_MIN_IDLE_CONNS", 2)
		viper.SetDefault("GATEWAY_MYSQL_DSN", "")
		viper.SetDefault("GATEWAY_KAFKA_BROKERS", "")
		viper.SetDefault("GATEWAY_KAFKA_TOPIC", "gateway-events")
		viper.AutomaticEnv()

		var brokers []string
		if raw := viper.GetString("GATEWAY_KAFKA_BROKERS"); raw != "" {
			for _, b := range strings.Split(raw, ",") {
				brokers = append(brokers, strings.TrimSpace(b))
			}
		}

		configInstance = &Config{
			Server: ServerConfig{
				Host:         viper.GetString("GATEWAY_HOST"),
				Port:         viper.GetString("GATEWAY_PORT"),
				ReadTimeout:  viper.GetDuration("GATEWAY_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("GATEWAY_WRITE_TIMEOUT"),
				IdleTimeout:  viper.GetDuration("GATEWAY_IDLE_TIMEOUT"),
			},
			Gateway: GatewayConfig{
				MaxConnections:    viper.GetInt("GATEWAY_MAX_CONNECTIONS"),
				HeartbeatInterval: viper.GetDuration("GATEWAY_HEARTBEAT_INTERVAL"),
				HistorySize:       viper.GetInt("GATEWAY_HISTORY_SIZE"),
				EventLogSize:      viper.GetInt("GATEWAY_EVENT_LOG_SIZE"),
				HistoryLimit:      viper.GetInt("GATEWAY_HISTORY_LIMIT"),
			},
			Redis: RedisConfig{
				URI:          viper.GetString("GATEWAY_REDIS_URI"),
				MaxRetries:   viper.GetInt("GATEWAY_REDIS_MAX_RETRIES"),
				DialTimeout:  viper.GetDuration("GATEWAY_REDIS_DIAL_TIMEOUT"),
				ReadTimeout:  viper.GetDuration("GATEWAY_REDIS_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("GATEWAY_REDIS_WRITE_TIMEOUT"),
				PoolSize:     viper.GetInt("GATEWAY_REDIS_POOL_SIZE"),
				MinIdleConns: viper.GetInt("GATEWAY_REDIS_MIN_IDLE_CONNS"),
			},
			MySQL: MySQLConfig{
				DSN: viper.GetString("GATEWAY_MYSQL_DSN"),
			},
			Kafka: KafkaConfig{
				Brokers: brokers,
				Topic:   viper.GetString("GATEWAY_KAFKA_TOPIC"),
			},
			JWT: JWTConfig{
				Secret: viper.GetString("GATEWAY_JWT_SECRET"),
			},
		}
	})
	return configInstance, loadErr
}

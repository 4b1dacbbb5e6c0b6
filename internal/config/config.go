package config

import (
	"fmt"
	"os"
	"strconv"

	"wisefido-floor/internal/common/config"
)

// 数据源传输方式
const (
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)

// 预期住户数来源
const (
	CapacityFromConfig   = "config"
	CapacityFromDatabase = "database"
)

// Config 楼层视图服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 数据源（持久双向连接）
	Feed struct {
		Transport string // "websocket" 或 "mqtt"
		URL       string // WebSocket 地址
		Topic     string // MQTT 主题
	}

	Floor struct {
		TenantID string
		UnitID   string

		// 预期住户数；CapacitySource 为 database 时从床位表推导
		ExpectedOccupants int
		CapacitySource    string

		// 等待名册的超时（秒），0 表示不超时
		RosterTimeout int
	}

	// 面板状态缓存（Redis）
	Cache struct {
		Enabled        bool
		TTL            int    // 秒
		EventStream    string // 颜色变化事件流，为空则不发布
		ReportInterval int    // 危急条写入间隔（秒）
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-floor")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Feed.Transport = getEnv("FEED_TRANSPORT", TransportWebSocket)
	cfg.Feed.URL = getEnv("FEED_URL", "ws://localhost:8000")
	cfg.Feed.Topic = getEnv("FEED_MQTT_TOPIC", "floor/feed")

	cfg.Floor.TenantID = getEnv("TENANT_ID", "")
	cfg.Floor.UnitID = getEnv("UNIT_ID", "")
	cfg.Floor.ExpectedOccupants = getEnvInt("FLOOR_EXPECTED_OCCUPANTS", 8)
	cfg.Floor.CapacitySource = getEnv("FLOOR_CAPACITY_SOURCE", CapacityFromConfig)
	cfg.Floor.RosterTimeout = getEnvInt("FLOOR_ROSTER_TIMEOUT", 30)

	cfg.Cache.Enabled = getEnv("FLOOR_CACHE_ENABLED", "false") == "true"
	cfg.Cache.TTL = getEnvInt("FLOOR_CACHE_TTL", 60)
	cfg.Cache.EventStream = getEnv("FLOOR_EVENT_STREAM", "floor:events")
	cfg.Cache.ReportInterval = getEnvInt("FLOOR_REPORT_INTERVAL", 60)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Feed.Transport {
	case TransportWebSocket:
		if c.Feed.URL == "" {
			return fmt.Errorf("FEED_URL is required for websocket transport")
		}
	case TransportMQTT:
		if c.Feed.Topic == "" {
			return fmt.Errorf("FEED_MQTT_TOPIC is required for mqtt transport")
		}
	default:
		return fmt.Errorf("unsupported feed transport: %s", c.Feed.Transport)
	}

	switch c.Floor.CapacitySource {
	case CapacityFromConfig:
		if c.Floor.ExpectedOccupants <= 0 {
			return fmt.Errorf("FLOOR_EXPECTED_OCCUPANTS must be positive, got %d", c.Floor.ExpectedOccupants)
		}
	case CapacityFromDatabase:
		if c.Floor.TenantID == "" || c.Floor.UnitID == "" {
			return fmt.Errorf("TENANT_ID and UNIT_ID are required when capacity source is database")
		}
	default:
		return fmt.Errorf("unsupported capacity source: %s", c.Floor.CapacitySource)
	}

	if c.Floor.RosterTimeout < 0 {
		return fmt.Errorf("FLOOR_ROSTER_TIMEOUT must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fpsync/protocol"
)

// EnvPrefix 环境变量前缀，如 FPSYNC_SERVER_PORT
const EnvPrefix = "FPSYNC"

type ServerConfig struct {
	Host            string
	Port            int
	TickPeriod      time.Duration
	LivenessTimeout time.Duration
	MaxPlayers      int
	IdleSleep       time.Duration
}

// AdminConfig 管理/观战 HTTP 接口，Addr 为空时不启动
type AdminConfig struct {
	Addr string
}

type LogConfig struct {
	File  string
	Level string
}

type JournalConfig struct {
	Enabled bool
	Driver  string
	DSN     string
}

type ClientConfig struct {
	Server    string
	FrameRate int
}

type Config struct {
	Server  ServerConfig
	Admin   AdminConfig
	Log     LogConfig
	Journal JournalConfig
	Client  ClientConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8003)
	v.SetDefault("server.tickPeriod", "100ms")
	v.SetDefault("server.livenessTimeout", "5s")
	v.SetDefault("server.maxPlayers", 32)
	v.SetDefault("server.idleSleep", "1ms")

	v.SetDefault("admin.addr", ":8080")

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "debug")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.dsn", "fpsync.db")

	v.SetDefault("client.server", "127.0.0.1:8003")
	v.SetDefault("client.frameRate", 60)
}

// Load 读取配置：默认值 → 配置文件（可选，json/yaml/toml 按扩展名识别）→ 环境变量。
// envFile 指向的 .env 文件不存在时忽略
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			TickPeriod:      v.GetDuration("server.tickPeriod"),
			LivenessTimeout: v.GetDuration("server.livenessTimeout"),
			MaxPlayers:      v.GetInt("server.maxPlayers"),
			IdleSleep:       v.GetDuration("server.idleSleep"),
		},
		Admin: AdminConfig{Addr: v.GetString("admin.addr")},
		Log: LogConfig{
			File:  v.GetString("log.file"),
			Level: v.GetString("log.level"),
		},
		Journal: JournalConfig{
			Enabled: v.GetBool("journal.enabled"),
			Driver:  v.GetString("journal.driver"),
			DSN:     v.GetString("journal.dsn"),
		},
		Client: ClientConfig{
			Server:    v.GetString("client.server"),
			FrameRate: v.GetInt("client.frameRate"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	case c.Server.TickPeriod <= 0:
		return fmt.Errorf("server.tickPeriod must be positive")
	case c.Server.LivenessTimeout <= 0:
		return fmt.Errorf("server.livenessTimeout must be positive")
	case c.Server.MaxPlayers <= 0:
		return fmt.Errorf("server.maxPlayers must be positive")
	case c.Server.MaxPlayers > protocol.MaxSnapshotPlayers:
		// 超过后快照装不进一个 UDP 报文
		return fmt.Errorf("server.maxPlayers must be at most %d", protocol.MaxSnapshotPlayers)
	case c.Server.IdleSleep <= 0:
		return fmt.Errorf("server.idleSleep must be positive")
	case c.Client.FrameRate <= 0:
		return fmt.Errorf("client.frameRate must be positive")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	WriteQueue     int           `mapstructure:"write_queue"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type GameConfig struct {
	PoolSource     string        `mapstructure:"pool_source"` // standard|file|postgres
	PoolFile       string        `mapstructure:"pool_file"`
	PoolSize       int           `mapstructure:"pool_size"`
	WinnerCap      int           `mapstructure:"winner_cap"`
	MaxRooms       int           `mapstructure:"max_rooms"`
	MaxPlayers     int           `mapstructure:"max_players"`
	IdlePolicy     string        `mapstructure:"idle_policy"` // dispose|park
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	ReconnectGrace time.Duration `mapstructure:"reconnect_grace"`
	WinValidator   string        `mapstructure:"win_validator"` // accept_all|called_marks
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // none|memory|gorm|pq
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN 返回 key=value 格式的连接串
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.write_queue", 64)
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("auth.issuer", "bingoserver")
	v.SetDefault("auth.token_ttl", 4*time.Hour)

	v.SetDefault("game.pool_source", "standard")
	v.SetDefault("game.pool_file", "data/numbers.json")
	v.SetDefault("game.pool_size", 75)
	v.SetDefault("game.winner_cap", 1)
	v.SetDefault("game.max_rooms", 1)
	v.SetDefault("game.max_players", 100)
	v.SetDefault("game.idle_policy", "dispose")
	v.SetDefault("game.idle_ttl", 2*time.Minute)
	v.SetDefault("game.reconnect_grace", 2*time.Minute)
	v.SetDefault("game.win_validator", "accept_all")

	v.SetDefault("database.driver", "none")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path. A missing file is not an error,
// defaults and the environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	// 与旧部署兼容
	_ = v.BindEnv("auth.secret", "AUTH_SECRET", "SECRET_KEY")

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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Game.WinnerCap < 1 {
		return errors.New("game.winner_cap must be at least 1")
	}
	if c.Game.MaxRooms < 1 {
		return errors.New("game.max_rooms must be at least 1")
	}
	if c.Game.MaxPlayers < 1 {
		return errors.New("game.max_players must be at least 1")
	}
	switch c.Game.IdlePolicy {
	case "dispose":
	case "park":
		if c.Game.IdleTTL <= 0 {
			return errors.New("game.idle_ttl must be positive when parking idle rooms")
		}
	default:
		return fmt.Errorf("unknown game.idle_policy %q", c.Game.IdlePolicy)
	}
	switch c.Game.PoolSource {
	case "standard", "file", "postgres":
	default:
		return fmt.Errorf("unknown game.pool_source %q", c.Game.PoolSource)
	}
	switch c.Game.WinValidator {
	case "accept_all", "called_marks":
	default:
		return fmt.Errorf("unknown game.win_validator %q", c.Game.WinValidator)
	}
	switch c.Database.Driver {
	case "none", "memory", "gorm", "pq":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Game.PoolSource == "postgres" && c.Database.Driver == "none" {
		return errors.New("game.pool_source postgres needs database.postgres settings and a database.driver")
	}
	if c.Server.WriteQueue < 1 {
		return errors.New("server.write_queue must be at least 1")
	}
	return nil
}

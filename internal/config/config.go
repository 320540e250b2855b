package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env    string `env:"ENV" env-default:"local"`
	Server ServerConfig
	DB     DBConfig
	WS     WSConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port            string        `env:"SERVER_PORT" env-default:"8000"`
	ClientOrigin    string        `env:"CLIENT_ORIGIN" env-default:"http://localhost:5173"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type DBConfig struct {
	Driver       string `env:"DB_DRIVER" env-default:"sqlite3"`
	DSN          string `env:"DB_DSN" env-default:"file:tasks.db?_busy_timeout=5000"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
}

type WSConfig struct {
	RateLimit  int           `env:"WS_RATE_LIMIT" env-default:"5"`
	RateWindow time.Duration `env:"WS_RATE_WINDOW" env-default:"1s"`
}

type LogConfig struct {
	File string `env:"LOG_FILE"`
}

// Load reads the given dotenv files (".env" when none are given) and then
// the process environment. A missing dotenv file is not an error; variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := new(Config)
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown ENV %q", c.Env)
	}
	switch c.DB.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("DB_DSN must be set")
	}
	if !strings.HasPrefix(c.Server.ClientOrigin, "http://") && !strings.HasPrefix(c.Server.ClientOrigin, "https://") {
		return fmt.Errorf("CLIENT_ORIGIN %q must be an http(s) origin", c.Server.ClientOrigin)
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.WS.RateLimit <= 0 {
		return fmt.Errorf("WS_RATE_LIMIT must be positive, got %d", c.WS.RateLimit)
	}
	if c.WS.RateWindow <= 0 {
		return errors.New("WS_RATE_WINDOW must be positive")
	}
	return nil
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

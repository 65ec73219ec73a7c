// Package config loads server settings from .env, an optional TOML file and
// the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DriverFirestore = "firestore"
	DriverMongo     = "mongo"
	DriverMemory    = "memory"
)

type Config struct {
	Port        string `toml:"port"`
	StoreDriver string `toml:"store_driver"`

	GoogleCloudProject    string `toml:"google_cloud_project"`
	GoogleCredentialsFile string `toml:"google_credentials_file"`

	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`

	Session SessionConfig `toml:"session"`
	Log     LogConfig     `toml:"log"`
	Line    LineConfig    `toml:"line"`
}

type SessionConfig struct {
	Secret     string        `toml:"secret"`
	CookieName string        `toml:"cookie_name"`
	MaxAge     time.Duration `toml:"max_age"`
	Secure     bool          `toml:"secure"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type LineConfig struct {
	ChannelToken  string `toml:"channel_token"`
	ChannelSecret string `toml:"channel_secret"`
}

// Enabled reports whether the LINE webhook should be mounted.
func (l LineConfig) Enabled() bool {
	return l.ChannelToken != "" && l.ChannelSecret != ""
}

func Default() Config {
	return Config{
		Port:          "8080",
		MongoURI:      "mongodb://mongo:27017/todo_app",
		MongoDatabase: "todo_app",
		Session: SessionConfig{
			Secret:     "default_secret",
			CookieName: "connect.sid",
			MaxAge:     24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads .env (if present), then the TOML file named by CONFIG_FILE, then
// environment variables. The second return value is false when no .env was
// found.
func Load() (Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, dotenv, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(&cfg); err != nil {
		return Config{}, dotenv, err
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverMongo
		if cfg.GoogleCloudProject != "" {
			cfg.StoreDriver = DriverFirestore
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, dotenv, err
	}
	return cfg, dotenv, nil
}

func loadFromEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("PORT", &cfg.Port)
	setString("STORE_DRIVER", &cfg.StoreDriver)
	setString("GOOGLE_CLOUD_PROJECT", &cfg.GoogleCloudProject)
	setString("GOOGLE_APPLICATION_CREDENTIALS", &cfg.GoogleCredentialsFile)
	setString("MONGO_URI", &cfg.MongoURI)
	setString("MONGO_DATABASE", &cfg.MongoDatabase)
	setString("SESSION_SECRET", &cfg.Session.Secret)
	setString("SESSION_COOKIE_NAME", &cfg.Session.CookieName)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("LINE_CHANNEL_TOKEN", &cfg.Line.ChannelToken)
	setString("LINE_CHANNEL_SECRET", &cfg.Line.ChannelSecret)

	if v := os.Getenv("SESSION_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_MAX_AGE %q: %w", v, err)
		}
		cfg.Session.MaxAge = d
	}
	if v := os.Getenv("SESSION_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_COOKIE_SECURE %q: %w", v, err)
		}
		cfg.Session.Secure = b
	}
	return nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverFirestore:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the %s driver", DriverFirestore)
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the %s driver", DriverMongo)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session max age must be positive, got %s", c.Session.MaxAge)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET must not be empty")
	}
	return nil
}

// Package config loads server and client settings from defaults, an optional config file,
// YOTE_ environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.trai.ch/zerr"
)

const (
	BackendAutomerge = "automerge"
	BackendMongo     = "mongo"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Client   ClientConfig   `mapstructure:"client"`
}

type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	Backend string `mapstructure:"backend"`
	// DumpDir receives the automerge dump and change graph of every collection on shutdown.
	// Empty disables the dump.
	DumpDir string `mapstructure:"dump_dir"`
}

// DatabaseConfig holds the sqlite settings of the automerge backend.
type DatabaseConfig struct {
	Path          string        `mapstructure:"path"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"addr":           "server.addr",
	"backend":        "server.backend",
	"dump-dir":       "server.dump_dir",
	"db":             "database.path",
	"flush-interval": "database.flush_interval",
	"mongo-uri":      "mongo.uri",
	"mongo-database": "mongo.database",
	"secret":         "auth.secret",
	"base-url":       "client.base_url",
	"token":          "client.token",
	"timeout":        "client.timeout",
}

// Load reads the configuration. configFile may be empty, in which case YOTE_CONFIG or
// ./yote.yaml is used if present. Only flags that were set on the command line override
// the other sources.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.backend", BackendAutomerge)
	v.SetDefault("server.dump_dir", "")
	v.SetDefault("database.path", "yote.sqlite3")
	v.SetDefault("database.flush_interval", 5*time.Second)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "yote")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.timeout", 10*time.Second)

	if configFile == "" {
		configFile = os.Getenv("YOTE_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("yote")
	}

	v.SetEnvPrefix("YOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, zerr.Wrap(err, "failed to read config file")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, zerr.With(zerr.Wrap(err, "failed to bind flag"), "flag", name)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, zerr.Wrap(err, "failed to unmarshal config")
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.Server.Backend {
	case BackendAutomerge, BackendMongo:
	default:
		return zerr.With(zerr.New("unknown backend"), "backend", c.Server.Backend)
	}
	if c.Database.FlushInterval <= 0 {
		return zerr.New("database flush interval must be positive")
	}
	return nil
}

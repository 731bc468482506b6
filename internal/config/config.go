package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr     string `mapstructure:"addr"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"server"`

	Storage struct {
		Driver     string `mapstructure:"driver"` // "postgres" | "sqlite"
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`

	Engine struct {
		CompactWidth      int  `mapstructure:"compact_width"`
		CompactExitIntent bool `mapstructure:"compact_exit_intent"`
	} `mapstructure:"engine"`

	Visit struct {
		TTLSeconds int `mapstructure:"ttl_seconds"`
	} `mapstructure:"visit"`

	Session struct {
		TTLSeconds int `mapstructure:"ttl_seconds"`
	} `mapstructure:"session"`

	Sweeper struct {
		Spec string `mapstructure:"spec"`
	} `mapstructure:"sweeper"`

	Catalog struct {
		RefreshSpec string `mapstructure:"refresh_spec"`
	} `mapstructure:"catalog"`

	Actions struct {
		SubscribeURL string `mapstructure:"subscribe_url"`
	} `mapstructure:"actions"`
}

func Load() Config {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	setDefaults(v)
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.sqlite_path", "data/popup.db")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "popups")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("listener.channel", "")
	v.SetDefault("listener.reconnect_seconds", 5)
	v.SetDefault("engine.compact_width", 768)
	v.SetDefault("engine.compact_exit_intent", true)
	v.SetDefault("visit.ttl_seconds", 1800)
	v.SetDefault("session.ttl_seconds", 1800)
	v.SetDefault("sweeper.spec", "@every 1m")
	v.SetDefault("catalog.refresh_spec", "@every 30s")
	v.SetDefault("actions.subscribe_url", "")
}

func validate(c *Config) {
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver != "sqlite" { c.Storage.Driver = "postgres" }
	if c.Storage.SQLitePath == "" { c.Storage.SQLitePath = "data/popup.db" }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 10 }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
	if c.Engine.CompactWidth <= 0 { c.Engine.CompactWidth = 768 }
	if c.Visit.TTLSeconds <= 0 { c.Visit.TTLSeconds = 1800 }
	if c.Session.TTLSeconds <= 0 { c.Session.TTLSeconds = 1800 }
	if c.Sweeper.Spec == "" { c.Sweeper.Spec = "@every 1m" }
	if c.Catalog.RefreshSpec == "" { c.Catalog.RefreshSpec = "@every 30s" }
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }

func (c Config) VisitTTL() time.Duration { return time.Duration(c.Visit.TTLSeconds) * time.Second }

func (c Config) SessionTTL() time.Duration { return time.Duration(c.Session.TTLSeconds) * time.Second }

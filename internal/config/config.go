package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Venue    VenueConfig    `mapstructure:"venue"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, mysql, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type VenueConfig struct {
	Timezone  string         `mapstructure:"timezone"`
	TimeSlots []TimeSlotSeed `mapstructure:"timeSlots"`
	Stations  []StationSeed  `mapstructure:"stations"`
}

type TimeSlotSeed struct {
	ID    string `mapstructure:"id"`
	Start string `mapstructure:"start"` // HH:MM
	End   string `mapstructure:"end"`
}

type StationSeed struct {
	ID       string `mapstructure:"id"`
	GameType string `mapstructure:"gameType"`
	Name     string `mapstructure:"name"`
	Capacity int    `mapstructure:"capacity"`
}

type QueueConfig struct {
	EntryTTL      time.Duration `mapstructure:"entryTTL"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	LockTTL       time.Duration `mapstructure:"lockTTL"`
	LockWait      time.Duration `mapstructure:"lockWait"`
}

var GlobalConfig *Config

// Location resolves the venue timezone; slot times are local to it.
func (v VenueConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(v.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(v.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("queue.entryTTL", "4h")
	v.SetDefault("queue.sweepInterval", "1m")
	v.SetDefault("queue.lockTTL", "5s")
	v.SetDefault("queue.lockWait", "2s")
}

// LoadConfig reads the YAML file at path. Any key can be overridden from the
// environment with the ARENA_ prefix, e.g. ARENA_DATABASE_DSN.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.Venue.Location(); err != nil {
		return nil, fmt.Errorf("venue timezone: %w", err)
	}
	GlobalConfig = &cfg
	return &cfg, nil
}

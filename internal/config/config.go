// Package config loads the service configuration from a YAML file with
// .env and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rocketDuck/folivora/internal/api"
	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/notify"
	"github.com/rocketDuck/folivora/internal/pypi"
	"github.com/rocketDuck/folivora/internal/queue"
	"github.com/rocketDuck/folivora/internal/scheduler"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "config.yml"

// Config is the root service configuration.
type Config struct {
	Logging   logger.Config       `yaml:"logging"`
	Database  database.Config     `yaml:"database"`
	Redis     queue.StreamsConfig `yaml:"redis"`
	Index     pypi.XMLRPCConfig   `yaml:"index"`
	Mail      notify.Config       `yaml:"mail"`
	Scheduler scheduler.Config    `yaml:"scheduler"`
	Server    api.ServerConfig    `yaml:"server"`
}

// SetDefaults fills unset fields with sensible defaults.
func (c *Config) SetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Index.URL == "" {
		c.Index.URL = pypi.DefaultServer
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.From == "" {
		c.Mail.From = "folivora@localhost"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Path returns the config path from CONFIG_PATH or the default.
func Path() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return DefaultPath
}

// Load reads the YAML config file, applies defaults, then environment
// variable overrides via `env` struct tags. A missing config file is
// not an error; the service can run from environment alone.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err == nil {
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parse config: %w", unmarshalErr)
		}
	}

	cfg.SetDefaults()
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// loadEnvFiles loads .env files. ENV_FILE wins when set; otherwise
// .env.local overrides .env. Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// applyEnvOverrides walks the struct and applies values from the
// environment variables named by `env` tags.
func applyEnvOverrides(cfg any) {
	v := reflect.ValueOf(cfg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	applyEnvToStruct(v)
}

func applyEnvToStruct(v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			applyEnvToStruct(field)
			continue
		}

		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" {
			continue
		}
		envVal := os.Getenv(envTag)
		if envVal == "" {
			continue
		}
		setFieldFromString(field, envVal)
	}
}

func setFieldFromString(field reflect.Value, val string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(val); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Bool:
		field.SetBool(parseBool(val))
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(val, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Package config loads the gateway's runtime configuration, keeping
// the teacher's own layering (defaults, then an optional config.json,
// then environment overrides) but implementing the environment-
// override step the teacher left as an empty stub, and adding a .env
// loading pass ahead of it via joho/godotenv.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Redis   RedisConfig   `json:"redis"`
	Logging LoggingConfig `json:"logging"`
	Paths   PathsConfig   `json:"paths"`
}

// ServerConfig addresses the RPC/websocket HTTP listener.
type ServerConfig struct {
	Env             string        `json:"env"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// RedisConfig addresses the event/error bus broker.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// LoggingConfig controls pkg/logger's verbosity and file sink.
type LoggingConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// PathsConfig names the on-disk documents the domain packages load.
type PathsConfig struct {
	MachinesConfig string `json:"machinesConfig"`
	Metadata       string `json:"metadata"`
}

// RedisAddr formats the broker address for redis.Options.Addr.
func (c RedisConfig) RedisAddr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Load resolves configuration in three layers: built-in defaults, an
// optional config.json in the working directory, then environment
// variables (after loading a .env file, if present, into the
// process's own environment). A missing .env or config.json is not an
// error — both are optional by design.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := getDefaultConfig()

	if _, err := os.Stat("config.json"); err == nil {
		file, err := os.Open("config.json")
		if err != nil {
			return nil, err
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&config); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(&config)

	return &config, nil
}

// applyEnvironmentOverrides implements the documented ENV/REDIS_*/
// LOG_*/MACHINES_CONFIG_PATH/METADATA_PATH variables.
func applyEnvironmentOverrides(config *Config) {
	if env := os.Getenv("ENV"); env != "" {
		config.Server.Env = env
		if config.Server.Env != "dev" {
			config.Server.Port = 1029
		}
	}
	if port := envInt("S7GATEWAY_RPC_PORT"); port != 0 {
		config.Server.Port = port
	}
	if host := os.Getenv("REDIS_HOSTNAME"); host != "" {
		config.Redis.Host = host
	}
	if port := envInt("REDIS_PORT"); port != 0 {
		config.Redis.Port = port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		config.Logging.File = file
	}
	if path := os.Getenv("MACHINES_CONFIG_PATH"); path != "" {
		config.Paths.MachinesConfig = path
	}
	if path := os.Getenv("METADATA_PATH"); path != "" {
		config.Paths.Metadata = path
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

package config

import "time"

// getDefaultConfig returns the configuration used when no config.json
// and no environment overrides are present — a "dev" profile listening
// on :1030, matching original_source/app.py's ENV-driven port choice.
func getDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Env:             "dev",
			Port:            1030,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Logging: LoggingConfig{
			Level: "INFO",
			File:  "./logs/s7gateway.log",
		},
		Paths: PathsConfig{
			MachinesConfig: "./config.json",
			Metadata:       "./machine_detail.yml",
		},
	}
}

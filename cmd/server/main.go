package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"s7gateway/internal/config"
	"s7gateway/internal/server"
	"s7gateway/pkg/logger"
)

func main() {
	logDir := filepath.Join(".", "logs")
	os.MkdirAll(logDir, 0755)

	logger.Init()
	logger.SetLevel(logger.INFO)
	if err := logger.EnableFileLogging(logDir, "s7gateway"); err != nil {
		logger.Warnf("main: file logging disabled: %v", err)
	}
	defer logger.Sync()

	displayBanner()
	logger.Info("starting s7gateway")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load configuration", err)
	}
	if cfg.Logging.Level != "" {
		logger.SetLevel(levelFromString(cfg.Logging.Level))
	}

	logger.Infof("config loaded: env=%s port=%d redis=%s machines=%s",
		cfg.Server.Env, cfg.Server.Port, cfg.Redis.RedisAddr(), cfg.Paths.MachinesConfig)

	srv, err := server.New(cfg)
	if err != nil {
		logger.Fatal("build server", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", err)
	}

	logger.Info("s7gateway stopped")
}

func levelFromString(s string) logger.Level {
	switch s {
	case "DEBUG":
		return logger.DEBUG
	case "WARN":
		return logger.WARN
	case "ERROR":
		return logger.ERROR
	case "FATAL":
		return logger.FATAL
	default:
		return logger.INFO
	}
}

func displayBanner() {
	banner := `
 _______ _______    _______ _______ _______ _______ _  _ _______ _     _
 |______ |______    |______ |_____|    |    |______ |  | |_____| |____/
 ______| |          ______| |     |    |    |______ |__| |     | |    \_
                                                                 v1.0
 `
	fmt.Println(banner)
	fmt.Printf("starting at %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
}

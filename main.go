package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"mlserve/db"
	qhttp "mlserve/http"
	"mlserve/logging"
	"mlserve/ml"
	"mlserve/monitoring"
	"mlserve/serving"
)

type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		MaxBodyBytes   int64    `yaml:"max_body_bytes"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Model struct {
		Source       string `yaml:"source"` // "file" or "registry"
		Path         string `yaml:"path"`
		RegistryPath string `yaml:"registry_path"`
		CacheSize    int    `yaml:"cache_size"`
		Watch        bool   `yaml:"watch"`
	} `yaml:"model"`
	Stats struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"stats"`
	Log logging.Config `yaml:"log"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := monitoring.NewRegistry()
	tracker := serving.NewLifecycle()

	source, cleanup, err := buildSource(config)
	if err != nil {
		logger.Fatal("failed to configure model source", zap.Error(err))
	}
	defer cleanup()

	store := serving.NewStore(source, tracker, metrics, logger)
	service := serving.NewService(store, metrics, logger)

	// The service starts even when the initial load fails; /health
	// reports unhealthy until a reload succeeds.
	if err := store.Initialize(ctx); err != nil {
		logger.Warn("starting without a loaded model", zap.Error(err))
	}

	interval := time.Duration(orDefault(config.Stats.IntervalSeconds, 5)) * time.Second
	hub := monitoring.NewHub(metrics, interval, logger)
	go hub.Run(ctx)

	handlers := qhttp.NewHandlers(service, store, tracker, metrics, hub, logger)
	if config.Model.Source == "registry" {
		handlers.EnableRegistryListing(db.ListModels)
	}

	if config.Model.Watch && config.Model.Path != "" {
		watcher, err := serving.WatchArtifact(config.Model.Path, store, logger)
		if err != nil {
			logger.Fatal("failed to watch model artifact", zap.Error(err))
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		logger.Info("watching model artifact", zap.String("path", config.Model.Path))
	}

	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port != 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds != 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	if config.Http.MaxBodyBytes != 0 {
		serverConfig.MaxBodyBytes = config.Http.MaxBodyBytes
	}
	if len(config.Http.AllowedOrigins) != 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	server := qhttp.NewServer(serverConfig, handlers, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	tracker.Shutdown()
	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// buildSource wires the configured artifact source. The cleanup func
// closes whatever the source opened.
func buildSource(config *Config) (ml.Source, func(), error) {
	switch config.Model.Source {
	case "", "file":
		return ml.NewFileSource(config.Model.Path), func() {}, nil
	case "registry":
		if err := db.InitDB(config.Model.RegistryPath); err != nil {
			return nil, nil, err
		}
		source, err := db.NewRegistrySource(orDefault(config.Model.CacheSize, 4))
		if err != nil {
			db.CloseDB()
			return nil, nil, err
		}
		return source, func() { db.CloseDB() }, nil
	default:
		return nil, nil, errUnknownSource(config.Model.Source)
	}
}

type errUnknownSource string

func (e errUnknownSource) Error() string {
	return "unknown model source " + string(e) + " (want file or registry)"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tradewire/tradewire/connector"
	"github.com/tradewire/tradewire/connector/alpaca"
	"github.com/tradewire/tradewire/connector/binance"
	"github.com/tradewire/tradewire/connector/ninjatrader"
	"github.com/tradewire/tradewire/connector/oanda"
	"github.com/tradewire/tradewire/internal/audit"
	"github.com/tradewire/tradewire/internal/config"
	"github.com/tradewire/tradewire/internal/credentials"
	"github.com/tradewire/tradewire/internal/database"
	"github.com/tradewire/tradewire/internal/handlers"
	"github.com/tradewire/tradewire/internal/pipeline"
	"github.com/tradewire/tradewire/internal/registry"
	"github.com/tradewire/tradewire/internal/routes"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", *configFile, err)
	}

	logger := newLogger(cfg.Log.Level)

	// Initialize database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Register broker connectors
	connector.Register("alpaca", alpaca.New)
	connector.Register("oanda", oanda.New)
	connector.Register("ninjatrader", ninjatrader.New)
	connector.Register("binance", binance.New)

	// Wire services
	credSource := credentials.NewService(db, cfg, logger)
	registrySvc := registry.NewService(registry.NewGormStore(db), logger)
	auditStore := audit.NewStoreWithWindow(audit.NewGormExecutionStore(db), logger, cfg.Metrics.WindowSize)
	connectors := &pipeline.RegistryConnectors{Cfg: cfg, Credentials: credSource, Log: logger}
	pipe := pipeline.NewService(registrySvc, auditStore, connectors, cfg, logger)

	webhookHandler := handlers.NewWebhookHandler(pipe, logger)
	managementHandler := handlers.NewManagementHandler(registrySvc, auditStore, pipe, connectors, credSource, logger)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	routes.SetupRoutes(r, webhookHandler, managementHandler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.WithFields(logrus.Fields{
		"addr":    addr,
		"brokers": connector.Supported(),
	}).Info("starting tradewire")

	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// newLogger builds the application logger from the configured level.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

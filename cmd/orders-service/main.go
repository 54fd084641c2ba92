package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaHoon/Careflow-sub002/internal/orders"
	"github.com/BaHoon/Careflow-sub002/pkg/config"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize Order Engine
	service := orders.New(cfg, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}

	// Start service in a goroutine
	go func() {
		logger.Infof("Starting Order Engine on port %s", port)
		if err := service.Start(":" + port); err != nil {
			logger.Fatalf("Failed to start Order Engine: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Order Engine...")
	if err := service.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	logger.Info("Order Engine stopped")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bilimevi/contractgate/backend/config"
	"github.com/bilimevi/contractgate/backend/handler"
	"github.com/bilimevi/contractgate/backend/pkg/logger"
	"github.com/bilimevi/contractgate/backend/service"
	"github.com/gin-gonic/gin"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")
	if cfg.Backend.ContractURL == "" {
		slog.Warn("backend.contract_url is not set, contract lookups will fail")
	}
	if cfg.Backend.ApproveURL == "" {
		slog.Warn("backend.approve_url is not set, approvals will fail")
	}
	if cfg.Captcha.Secret == "" {
		slog.Warn("captcha.secret is not set, every approval will be rejected")
	}

	// Initialize services
	automation := service.NewAutomationService(&cfg.Backend, &cfg.Upstream, &cfg.Documents)
	documents := service.NewDocumentService(&cfg.Documents, &cfg.Upstream)
	captcha := service.NewCaptchaService(&cfg.Captcha, &cfg.Upstream)

	gin.SetMode(gin.ReleaseMode)
	router, err := handler.NewRouter(cfg, handler.Services{
		Contracts: automation,
		Documents: documents,
		Captcha:   captcha,
		Approvals: automation,
	})
	if err != nil {
		slog.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Upstream.Timeout*2 + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// loadConfig reads path when given. Without one, config.yaml is used if it
// exists and the environment alone otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Load("")
		}
		return nil, err
	}
	return config.Load(defaultConfigPath)
}

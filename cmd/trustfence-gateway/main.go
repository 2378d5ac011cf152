package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/trustfence/trustfence-go/internal/gateway"
	"github.com/trustfence/trustfence-go/pkg/scan"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("gateway exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("gateway")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("gateway.port", 8090)
	viper.SetDefault("gateway.cors_origins", []string{})
	viper.SetDefault("gateway.rate_limit_rps", 20)
	viper.SetDefault("gateway.upstream_url", "https://api.openai.com")
	viper.SetDefault("gateway.upstream_key", "")
	viper.SetDefault("gateway.upstream_timeout", "60s")
	viper.SetDefault("scan.endpoint", "https://api.trustfence.dev")
	viper.SetDefault("scan.api_key", "")
	viper.SetDefault("scan.fail_mode", "open")
	viper.SetDefault("scan.timeout", "10s")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Scan client ──────────────────────────────────────────────────────────
	failMode, err := scan.ParseFailMode(viper.GetString("scan.fail_mode"))
	if err != nil {
		return err
	}
	scanTimeout, _ := time.ParseDuration(viper.GetString("scan.timeout"))
	if scanTimeout == 0 {
		scanTimeout = scan.DefaultTimeout
	}

	scanner, err := scan.New(
		viper.GetString("scan.endpoint"),
		viper.GetString("scan.api_key"),
		scan.WithFailMode(failMode),
		scan.WithTimeout(scanTimeout),
		scan.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("scan client: %w", err)
	}
	logger.Info("scan client ready",
		zap.String("endpoint", viper.GetString("scan.endpoint")),
		zap.String("fail_mode", viper.GetString("scan.fail_mode")),
	)

	// ── Gateway server ───────────────────────────────────────────────────────
	upstreamTimeout, _ := time.ParseDuration(viper.GetString("gateway.upstream_timeout"))

	srv, err := gateway.New(gateway.Config{
		UpstreamURL:     viper.GetString("gateway.upstream_url"),
		UpstreamKey:     viper.GetString("gateway.upstream_key"),
		CORSOrigins:     viper.GetStringSlice("gateway.cors_origins"),
		RateLimitRPS:    viper.GetInt("gateway.rate_limit_rps"),
		RateLimitBurst:  viper.GetInt("gateway.rate_limit_rps") * 2,
		UpstreamTimeout: upstreamTimeout,
	}, scanner, logger)
	if err != nil {
		return fmt.Errorf("gateway server: %w", err)
	}

	port := viper.GetInt("gateway.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("gateway listening",
			zap.Int("port", port),
			zap.String("upstream", viper.GetString("gateway.upstream_url")),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("gateway stopped")
	return nil
}

// Command ibcod runs the IBCO pricing and accounting engines behind the
// read-only query API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ibco/config"
	nativecommon "ibco/native/common"
	"ibco/observability/logging"
	telemetry "ibco/observability/otel"
	"ibco/storage"
)

const serviceName = "ibcod"

func main() {
	var cfgPath string
	var initPath string
	var envPath string
	flag.StringVar(&cfgPath, "config", "ibcod.toml", "path to the TOML configuration")
	flag.StringVar(&initPath, "init", "", "write a development configuration to this path and exit")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file with OTEL_* overrides")
	flag.Parse()

	// A missing dotenv file is normal outside development.
	_ = godotenv.Load(envPath)

	if initPath != "" {
		if _, err := config.WriteDefault(initPath); err != nil {
			logging.Setup(serviceName, "").Error("write default config", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup(serviceName, "").Error("load config", slog.String("path", cfgPath), slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        cfg.Logging.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	if err := run(cfg, filepath.Dir(cfgPath), logger); err != nil {
		logger.Error("ibcod stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configDir string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName), logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := newNode(ctx, cfg, db, configDir, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	srv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           n.handler(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("query API listening",
			slog.String("addr", cfg.RPCAddress),
			slog.String("dataDir", cfg.DataDir),
			slog.Any("paused", nativecommon.Pauses(cfg.Pauses).Modules()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-errCh:
		if ok {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

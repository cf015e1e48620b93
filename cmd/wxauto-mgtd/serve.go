package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zj591227045/wxauto-mgt/internal/app"
	"github.com/zj591227045/wxauto-mgt/internal/cryptobox"
	"github.com/zj591227045/wxauto-mgt/internal/seed"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the management service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadSettings()
	setupLogging(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return configErr(err)
	}

	a, err := app.New(app.Config{
		DataDir:         cfg.DataDir,
		BindAddr:        cfg.BindAddr,
		TLSCertFile:     cfg.TLSCertFile,
		TLSKeyFile:      cfg.TLSKeyFile,
		MasterKeyBase64: cfg.MasterKey,
		HealthCheckCron: cfg.HealthCheckCron,
		DispatchWorkers: cfg.DispatchWorkers,
	})
	if err != nil {
		if errors.Is(err, cryptobox.ErrInvalidKey) {
			return configErr(err)
		}
		return storeErr(err)
	}

	if cfg.SeedFile != "" {
		doc, err := seed.ParseFile(cfg.SeedFile)
		if err != nil {
			return configErr(err)
		}
		if err := seed.Apply(a.Store(), doc); err != nil {
			return runtimeErr(err)
		}
		slog.Info("seed file applied", "path", cfg.SeedFile)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		return runtimeErr(err)
	}
	return nil
}

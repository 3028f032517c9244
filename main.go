package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lungsod-rms/config"
	"lungsod-rms/core/appbootstrap"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

func main() {
	logger := utils.NewLogger()

	cfgPath := os.Getenv("LUNGSOD_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Errorf("db open: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		logger.Errorf("migrations: %v", err)
		os.Exit(1)
	}

	app, err := appbootstrap.Compose(ctx, cfg, db, logger)
	if err != nil {
		logger.Errorf("bootstrap: %v", err)
		os.Exit(1)
	}

	if err := app.Sweeper.Start(); err != nil {
		logger.Errorf("sweeper: %v", err)
		os.Exit(1)
	}
	defer app.Sweeper.Stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      app.Server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

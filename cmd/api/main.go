package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/gbsoe/FiLotV2-sub001/internal/app"
	"github.com/gbsoe/FiLotV2-sub001/internal/config"
	"github.com/gbsoe/FiLotV2-sub001/internal/server"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main wires the deposit pipeline, settles attempts a previous run left in
// flight and serves the HTTP API until SIGINT/SIGTERM.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build deposit pipeline")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("error while closing backends")
		}
	}()

	// This process is the only writer; finish what the last one started
	// before taking new requests.
	results, err := a.Executor.Resume(ctx)
	if err != nil {
		logger.WithError(err).Error("resume of in-flight attempts incomplete")
	}
	for _, r := range results {
		logger.WithFields(logrus.Fields{
			"attempt_id": r.AttemptID,
			"status":     r.Status,
		}).Info("resumed attempt settled")
	}

	go a.RunJanitor(ctx, time.Minute)

	h := &server.Handlers{
		Sessions:       a.Sessions,
		Executor:       a.Executor,
		Pools:          a.Pools,
		Builder:        a.Builder,
		Flags:          a.Flags,
		Cache:          a.Cache,
		Metrics:        a.Metrics,
		Checks:         a.Health,
		PairingTimeout: cfg.PairingTimeout,
		Logger:         logger,
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:         cfg.APIAddr,
			DevMode:      cfg.DevMode,
			APIKey:       cfg.APIKey,
			WriteTimeout: cfg.SigningTimeout + cfg.ConfirmMaxWait + time.Minute,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("server did not close cleanly")
	}
}

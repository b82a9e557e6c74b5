package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"drivemeta/internal/api"
	"drivemeta/internal/config"
	"drivemeta/internal/database"
	"drivemeta/internal/disk"
)

// App is the application layer between the CLI and the engine. It
// constructs all dependencies from config and manages their lifecycle
// on Close.
type App struct {
	cfg     *config.Config
	store   *database.Store
	queue   *disk.AdmissionQueue
	service *disk.Service
	logger  disk.Logger
	logFile *os.File
}

// GetDefaults returns default filesystem locations for the app.
func GetDefaults() (map[string]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	baseDir := filepath.Join(home, ".drivemeta")
	return map[string]string{
		"base_dir":    baseDir,
		"config_path": filepath.Join(baseDir, "config.toml"),
	}, nil
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Serve"). The caller must
// call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	slogger, logFile, err := newLogger(cfg.LogDir, operation)
	if err != nil {
		return nil, err
	}
	logger := &slogAdapter{l: slogger}

	store, err := database.Open(cfg.Database.Path,
		time.Duration(cfg.Database.BusyTimeoutMs)*time.Millisecond)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := store.MigrateUp(); err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	queue, err := disk.NewAdmissionQueueForStore(context.Background(), store, logger, disk.UUIDGenerator{})
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, err
	}

	service := disk.NewService(store, queue, disk.NewBranchLocker(), logger, disk.RealClock{})

	return &App{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		service: service,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Serve runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
func (a *App) Serve() error {
	server := &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: api.NewServer(a.service, a.logger).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.Server.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the app's resources.
func (a *App) Close() {
	a.queue.Close()
	a.store.Close()
	a.logFile.Close()
}

// MigrateDatabase brings the configured database schema to the latest
// version without starting the server.
func MigrateDatabase(cfg *config.Config) error {
	store, err := database.Open(cfg.Database.Path,
		time.Duration(cfg.Database.BusyTimeoutMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	if err := store.MigrateUp(); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}
	return nil
}

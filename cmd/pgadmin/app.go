package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/patternguard/console/internal/catalog"
	"github.com/patternguard/console/internal/client"
	"github.com/patternguard/console/internal/config"
	"github.com/patternguard/console/internal/logger"
	"github.com/patternguard/console/internal/session"
	"github.com/patternguard/console/internal/storage"
	"github.com/patternguard/console/internal/transfer"
)

// app holds what the commands share. Everything past the writers is built
// on first use so that help and version work without a configuration.
type app struct {
	ctx        context.Context
	configPath string
	baseURL    string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	ready     bool
	cfg       *config.AppConfig
	log       logger.Logger
	session   *session.Session
	client    *client.Client
	store     *storage.LocalStore
	files     *catalog.Manager
	transfers *transfer.Manager
}

func (a *app) setup() error {
	if a.ready {
		return nil
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if a.baseURL != "" {
		cfg.Server.BaseURL = a.baseURL
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	log := logger.NewZapLogger(logger.Options{
		FilePath: cfg.Logging.File,
		Level:    cfg.Logging.Level,
		JSON:     cfg.Logging.JSON,
	})

	profile, err := session.OpenFileProfile(cfg.Session.ProfilePath)
	if err != nil {
		return fmt.Errorf("opening profile: %w", err)
	}
	sess := session.New(profile)

	store, err := storage.NewLocalStore(cfg.Storage.DownloadDirectory)
	if err != nil {
		return err
	}

	api := client.New(client.Options{
		BaseURL:         cfg.BaseURL(),
		Timeout:         cfg.Timeout(),
		VersionCacheTTL: cfg.VersionCacheTTL(),
		Platforms:       cfg.Platforms(),
	}, sess, log)

	a.cfg = cfg
	a.log = log
	a.session = sess
	a.client = api
	a.store = store
	a.files = catalog.NewManager(api, log)
	a.transfers = transfer.NewManager(api, store, log)
	a.ready = true

	log.Debug("cli", "console ready", map[string]interface{}{
		"config":   a.configPath,
		"base_url": cfg.BaseURL(),
		"profile":  profile.Path(),
	})
	return nil
}

func (a *app) close() {
	if a.transfers != nil {
		a.transfers.WaitAll()
		a.transfers.CleanupOldJobs(time.Hour)
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(a.stdout, format+"\n", args...)
}

func (a *app) info(format string, args ...interface{}) {
	fmt.Fprintf(a.stdout, format+"\n", args...)
}

func (a *app) warn(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(a.stderr, format+"\n", args...)
}

func (a *app) heading(format string, args ...interface{}) {
	color.New(color.FgCyan, color.Bold).Fprintf(a.stdout, format+"\n", args...)
}

// Package app assembles the forwarder from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-forwarder/internal/api"
	"github.com/dvloznov/bank-forwarder/internal/audit"
	"github.com/dvloznov/bank-forwarder/internal/categorize"
	"github.com/dvloznov/bank-forwarder/internal/config"
	infraBQ "github.com/dvloznov/bank-forwarder/internal/infra/bigquery"
	"github.com/dvloznov/bank-forwarder/internal/notify"
	"github.com/dvloznov/bank-forwarder/internal/poller"
	"github.com/dvloznov/bank-forwarder/internal/runs"
	"github.com/dvloznov/bank-forwarder/internal/runs/inmemory"
	"github.com/dvloznov/bank-forwarder/internal/snapshot"
	"github.com/dvloznov/bank-forwarder/internal/source"
)

// App is a fully wired forwarder.
type App struct {
	Config    *config.Config
	Poller    *poller.Poller
	Snapshots *snapshot.Store
	Runs      *inmemory.Store
	Registry  *prometheus.Registry

	log     zerolog.Logger
	closers []io.Closer
}

// Options adjust how New resolves its environment.
type Options struct {
	// LookupEnv resolves secret variables. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// New opens every backend the configuration names and wires the poller.
// On error, everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (_ *App, err error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	a := &App{
		Config:   cfg,
		Runs:     inmemory.NewStore(0),
		Registry: prometheus.NewRegistry(),
		log:      log,
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	targets, err := Targets(cfg, opts.LookupEnv)
	if err != nil {
		return nil, err
	}

	a.Snapshots, err = OpenSnapshots(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Snapshots)

	recorders := runs.MultiRecorder{a.Runs}
	if cfg.BigQuery.Project != "" {
		repo, err := OpenRunLog(ctx, cfg.BigQuery)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo)
		if err := repo.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		recorders = append(recorders, repo)
	}

	deps := poller.Deps{
		Factory:   source.NewHTTPFactory(source.Options{LookupEnv: opts.LookupEnv}),
		Snapshots: a.Snapshots,
		Targets:   targets,
		Recorder:  recorders,
		Metrics:   poller.NewMetrics(a.Registry),
	}
	if cfg.Audit.Git {
		deps.Auditor = audit.NewGitCommitter(cfg.Cache.Dir)
	}
	if cfg.Gemini.Enabled {
		gen, err := categorize.NewGeminiGenerator(ctx, cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		deps.Categorizer = categorize.NewCategorizer(gen, nil)
	}

	a.Poller = poller.New(cfg.Streams(), deps, poller.Options{
		AbortPersistOnNotifyFailure: cfg.AbortPersistOnNotifyFailure,
		AuthAlertAfter:              cfg.AuthAlertAfter,
	})

	log.Info().
		Int("streams", len(cfg.Accounts)).
		Int("targets", len(targets)).
		Str("cache", cfg.Cache.Backend).
		Bool("audit", cfg.Audit.Git).
		Bool("categorize", cfg.Gemini.Enabled).
		Bool("bigquery", cfg.BigQuery.Project != "").
		Msg("Forwarder configured")

	return a, nil
}

// StatusHandler returns the HTTP handler for the status server.
func (a *App) StatusHandler() http.Handler {
	return api.NewHandler(a.Runs, a.Registry, a.log)
}

// Close releases every backend opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Targets builds the notification targets: the Telegram chat always, plus
// the Notion database when one is configured.
func Targets(cfg *config.Config, lookupEnv func(string) (string, bool)) ([]notify.Target, error) {
	token, err := secret(lookupEnv, cfg.TelegramTokenEnv)
	if err != nil {
		return nil, fmt.Errorf("Targets: telegram: %w", err)
	}
	targets := []notify.Target{{
		Name:        "telegram",
		Notifier:    notify.NewTelegramNotifier(token),
		Destination: cfg.TargetChat,
	}}

	if cfg.Notion.DatabaseID != "" {
		token, err := secret(lookupEnv, cfg.Notion.TokenEnv)
		if err != nil {
			return nil, fmt.Errorf("Targets: notion: %w", err)
		}
		targets = append(targets, notify.Target{
			Name:        "notion",
			Notifier:    notify.NewNotionNotifier(notify.NewNotionClient(token)),
			Destination: cfg.Notion.DatabaseID,
		})
	}
	return targets, nil
}

func secret(lookupEnv func(string) (string, bool), name string) (string, error) {
	if name == "" {
		return "", errors.New("no environment variable configured")
	}
	value, ok := lookupEnv(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return strings.TrimSpace(value), nil
}

// OpenSnapshots opens the configured snapshot backend.
func OpenSnapshots(ctx context.Context, cfg config.CacheConfig) (*snapshot.Store, error) {
	var (
		backend snapshot.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendFile:
		backend, err = snapshot.NewFileBackend(cfg.Dir)
	case config.BackendGCS:
		backend, err = snapshot.NewGCSBackend(ctx, "gs://"+cfg.Bucket+"/"+cfg.Prefix)
	case config.BackendBolt:
		backend, err = snapshot.NewBoltBackend(cfg.BoltPath)
	case config.BackendDynamoDB:
		backend, err = snapshot.NewDynamoBackend(ctx, snapshot.DynamoConfig{
			Region:    cfg.DynamoDBRegion,
			TableName: cfg.DynamoDBTable,
			Endpoint:  cfg.DynamoDBEndpoint,
		})
	default:
		return nil, fmt.Errorf("OpenSnapshots: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("OpenSnapshots: %w", err)
	}
	return snapshot.NewStore(backend), nil
}

// OpenRunLog connects to the BigQuery run log.
func OpenRunLog(ctx context.Context, cfg config.BigQueryConfig) (*infraBQ.RunRepository, error) {
	if cfg.Project == "" {
		return nil, errors.New("OpenRunLog: bigquery.project is not configured")
	}
	repo, err := infraBQ.NewRunRepository(ctx, cfg.Project, cfg.Dataset)
	if err != nil {
		return nil, fmt.Errorf("OpenRunLog: %w", err)
	}
	return repo, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"voicecal/internal/config"
	"voicecal/internal/extract"
	"voicecal/internal/google"
	"voicecal/internal/icloud"
	"voicecal/internal/metrics"
	"voicecal/internal/normalize"
	"voicecal/internal/openai"
	"voicecal/internal/pipeline"
	"voicecal/internal/scheduler"
)

// calendarBackend is what every supported calendar provides.
type calendarBackend interface {
	scheduler.Backend
	Calendars(ctx context.Context) ([]string, error)
}

// env is the configuration shared by all commands.
type env struct {
	cfg        *config.Config
	logger     *slog.Logger
	loc        *time.Location
	normalizer *normalize.Normalizer
	recorder   metrics.Recorder
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	placeholders, err := cfg.PlaceholderSet()
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:        cfg,
		logger:     logger,
		loc:        loc,
		normalizer: normalize.New(placeholders, cfg.MinLead),
		recorder:   metrics.NewNoop(),
	}, nil
}

func (e *env) openAI() (*openai.Client, error) {
	client, err := openai.NewClient(e.logger, e.cfg.OpenAIAPIKey, e.cfg.OpenAIBaseURL, e.cfg.CompletionModel, e.cfg.TranscriptionModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return client, nil
}

// backend builds the configured calendar. Google uses the token file saved
// by the auth command unless creds is given.
func (e *env) backend(ctx context.Context, creds google.Credentials) (calendarBackend, error) {
	switch e.cfg.Backend {
	case config.BackendCalDAV:
		client, err := icloud.NewClient(ctx, e.logger, e.cfg.ICloudEndpoint, e.cfg.ICloudUsername, e.cfg.ICloudPassword, e.cfg.ICloudCalendar)
		if err != nil {
			return nil, fmt.Errorf("failed to create icloud client: %w", err)
		}
		return client, nil
	default:
		if creds == nil {
			oauthConfig, err := google.GetOAuthConfig(e.cfg.GoogleClientID, e.cfg.GoogleClientSecret)
			if err != nil {
				// A saved token still works, it just cannot be refreshed.
				e.logger.Warn("No OAuth client config, token refresh disabled", "error", err)
				oauthConfig = nil
			}
			creds = google.FileCredentials{Config: oauthConfig, Path: e.cfg.TokenFile}
		}
		return google.NewClient(e.logger, creds, e.cfg.CalendarID), nil
	}
}

func (e *env) extractor(completer extract.Completer) *extract.Extractor {
	return extract.New(e.logger, completer, e.normalizer, e.recorder)
}

func (e *env) scheduler(backend scheduler.Backend) *scheduler.Scheduler {
	return scheduler.New(e.logger, backend, e.normalizer, e.loc, scheduler.WithRecorder(e.recorder))
}

func (e *env) pipelineConfig(transcriber pipeline.Transcriber, extractor pipeline.Extractor, sched pipeline.Scheduler) pipeline.Config {
	return pipeline.Config{
		Transcriber: transcriber,
		Extractor:   extractor,
		Scheduler:   sched,
		Language:    e.cfg.Language,
		Location:    e.loc,
		Recorder:    e.recorder,
	}
}

func (e *env) orchestrator(transcriber pipeline.Transcriber, extractor pipeline.Extractor, sched pipeline.Scheduler) *pipeline.Orchestrator {
	return pipeline.New(e.logger, e.pipelineConfig(transcriber, extractor, sched))
}

// batches keys one batch per HTTP caller.
func (e *env) batches(transcriber pipeline.Transcriber, extractor pipeline.Extractor, sched pipeline.Scheduler) *pipeline.Batches {
	return pipeline.NewBatches(e.logger, e.pipelineConfig(transcriber, extractor, sched))
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

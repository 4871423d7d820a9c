package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"voicecal/internal/config"
	"voicecal/internal/google"
	"voicecal/internal/metrics"
	"voicecal/internal/normalize"
	"voicecal/internal/pipeline"
	"voicecal/internal/server"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "voicecal",
		Usage: "Turn spoken Urdu into calendar events.",
		Commands: []*cli.Command{
			authCommand(),
			extractCommand(),
			scheduleCommand(),
			listCommand(),
			calendarsCommand(),
			deleteCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account and save the API token.",
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			e.logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfig(e.cfg.GoogleClientID, e.cfg.GoogleClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("voicecal", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			fmt.Printf("Open this link, grant calendar access and paste the code shown:\n%s\n", authURL)

			fmt.Print("Authorization code: ")
			authCode, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && authCode == "" {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			if err := google.SaveToken(e.cfg.TokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			e.logger.Info("Successfully authenticated and saved token.", "file", e.cfg.TokenFile)
			return nil
		},
	}
}

var inputFlags = []cli.Flag{
	&cli.StringSliceFlag{Name: "text", Aliases: []string{"t"}, Usage: "Transcript to extract an event from. Repeatable."},
	&cli.StringSliceFlag{Name: "audio", Aliases: []string{"a"}, Usage: "Audio file to transcribe. Repeatable."},
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract events without touching the calendar.",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the events as JSON."},
		}, inputFlags...),
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			client, err := e.openAI()
			if err != nil {
				return err
			}

			orch := e.orchestrator(client, e.extractor(client), nil)
			items, err := processInputs(c, e, orch)
			if err != nil {
				return err
			}
			return printItems(items, e, c.Bool("json"))
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Extract events and add them to the calendar.",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be scheduled without making changes."},
		}, inputFlags...),
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if c.Bool("dry-run") {
				e.logger.Info("Performing a dry run. No changes will be made.")
			}

			client, err := e.openAI()
			if err != nil {
				return err
			}
			backend, err := e.backend(c.Context, nil)
			if err != nil {
				return err
			}

			orch := e.orchestrator(client, e.extractor(client), e.scheduler(backend))
			items, err := processInputs(c, e, orch)
			if err != nil {
				return err
			}

			if c.Bool("dry-run") {
				for _, it := range items {
					e.logger.Info("[DRY RUN] Would schedule event", "title", it.Event.Summary, "start", it.Event.Start.DateTime)
				}
				return printItems(items, e, false)
			}

			sum := orch.ScheduleAll(c.Context)
			if err := printItems(sum.Succeeded, e, false); err != nil {
				return err
			}
			for _, f := range sum.Failed {
				fmt.Fprintf(os.Stderr, "failed: %v\n", f.Err)
			}
			fmt.Printf("%d scheduled, %d failed, %d dates adjusted\n", len(sum.Succeeded), len(sum.Failed), sum.Adjusted)
			if len(sum.Failed) > 0 {
				return fmt.Errorf("%d of %d events could not be scheduled", len(sum.Failed), len(items))
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List upcoming calendar events.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 7, Usage: "How many days ahead to list."},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if c.Int("days") < 1 {
				return errors.New("--days must be at least 1")
			}
			backend, err := e.backend(c.Context, nil)
			if err != nil {
				return err
			}

			from := time.Now()
			entries, err := e.scheduler(backend).Upcoming(c.Context, from, from.AddDate(0, 0, c.Int("days")))
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			for _, entry := range entries {
				fmt.Printf("[%s]\n%s\n", entry.ID, normalize.Describe(entry.Event, e.loc))
			}
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the calendars available to the configured account.",
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			backend, err := e.backend(c.Context, nil)
			if err != nil {
				return err
			}
			names, err := backend.Calendars(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list calendars: %w", err)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a scheduled event by its calendar id.",
		ArgsUsage: "<event-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one event id")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			backend, err := e.backend(c.Context, nil)
			if err != nil {
				return err
			}
			if err := e.scheduler(backend).DeleteOne(c.Context, c.Args().First()); err != nil {
				return fmt.Errorf("failed to delete event: %w", err)
			}
			e.logger.Info("Event deleted.", "id", c.Args().First())
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the pipeline over HTTP.",
		Action: func(c *cli.Context) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			e.recorder = metrics.NewPrometheus(e.logger, reg)

			client, err := e.openAI()
			if err != nil {
				return err
			}

			// Google calls are made with the token of each HTTP caller.
			var creds google.Credentials
			if e.cfg.Backend == config.BackendGoogle {
				creds = google.BearerCredentials{}
			}
			backend, err := e.backend(c.Context, creds)
			if err != nil {
				return err
			}

			sched := e.scheduler(backend)
			batches := e.batches(client, e.extractor(client), sched)
			srv := server.New(e.logger, batches, sched, server.Options{
				AllowedOrigins: e.cfg.AllowedOrigins,
				RequireBearer:  e.cfg.Backend == config.BackendGoogle,
				Gatherer:       reg,
			})

			httpServer := &http.Server{
				Addr:              e.cfg.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				e.logger.Info("Starting HTTP server.", "addr", e.cfg.Addr, "backend", e.cfg.Backend)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			e.logger.Info("Shutting down HTTP server.")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

// processInputs runs every --text and --audio input through the pipeline.
// Inputs that fail are logged and skipped; it fails only when none worked.
func processInputs(c *cli.Context, e *env, orch *pipeline.Orchestrator) ([]pipeline.Item, error) {
	texts, audios := c.StringSlice("text"), c.StringSlice("audio")
	if len(texts) == 0 && len(audios) == 0 {
		return nil, errors.New("provide at least one --text or --audio input")
	}

	var (
		items    []pipeline.Item
		firstErr error
	)
	record := func(it pipeline.Item, err error, input string) {
		if err != nil {
			e.logger.Error("Failed to process input", "input", input, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		items = append(items, it)
	}

	for _, text := range texts {
		it, err := orch.ProcessTranscript(c.Context, text)
		record(it, err, text)
	}
	for _, path := range audios {
		audio, err := os.ReadFile(path)
		if err != nil {
			record(pipeline.Item{}, fmt.Errorf("failed to read audio file: %w", err), path)
			continue
		}
		it, err := orch.ProcessAudio(c.Context, audio, filepath.Base(path))
		record(it, err, path)
	}

	if len(items) == 0 {
		return nil, firstErr
	}
	return items, nil
}

func printItems(items []pipeline.Item, e *env, asJSON bool) error {
	if asJSON {
		events := make([]any, 0, len(items))
		for _, it := range items {
			events = append(events, it.Event)
		}
		out, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode events: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}
	for _, it := range items {
		fmt.Print(normalize.Describe(it.Event, e.loc))
		if w := it.Warning(); w != "" {
			fmt.Printf("  ! %s\n", w)
		}
		if it.RemoteID != "" {
			fmt.Printf("  id: %s\n", it.RemoteID)
		}
		fmt.Println()
	}
	return nil
}

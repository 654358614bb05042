// modlate — automated translation of Paradox-mod localization content with
// GitHub-issue tracking of strings the provider refuses to translate.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pdxkit/modlate/config"
	"github.com/pdxkit/modlate/dispatch"
	"github.com/pdxkit/modlate/github"
	"github.com/pdxkit/modlate/report"
	"github.com/pdxkit/modlate/settings"
	"github.com/pdxkit/modlate/track"
	"github.com/pdxkit/modlate/xlate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global persistent flags
var (
	rootDir string
	verbose bool
)

func setupLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	var out io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modlate",
		Short: "Paradox-mod localization translation with refusal tracking",
		Long: `modlate — automated translation of Paradox-mod localization content.

Pending strings are drained through a single serialized, rate-limited queue
against an AI translation provider. Strings the provider refuses are written
to an unresolved-items report; the reconcile command merges that report into
GitHub tracking issues (one open issue per game/mod) and closes them once
nothing remains unresolved.

Commands:
  translate   Translate the pending work list, writing the unresolved report
  reconcile   Sync the unresolved report into tracking issues
  auth        Manage stored API credentials`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newTranslateCmd(),
		newReconcileCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate",
		Short: "Translate the pending work list through the dispatch queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			limiter := dispatch.NewRateLimiter(cfg.MinInterval())
			queue := dispatch.NewQueue(dispatch.NewExecutor(limiter, logger), logger)
			return runTranslate(ctx, cfg, queue, logger)
		},
	}
}

func runTranslate(ctx context.Context, cfg *config.File, queue *dispatch.Queue, logger zerolog.Logger) error {
	entries, err := xlate.LoadWorkList(filepath.Join(rootDir, cfg.WorkList))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Info().Msg("work list is empty, nothing to translate")
		return writeReport(cfg, report.NewCollector(), logger)
	}

	client := xlate.NewClient(
		cfg.Provider.BaseURL, cfg.Provider.Model, cfg.ProviderAPIKey(),
		cfg.Provider.Format, cfg.Provider.SystemPrompt, cfg.Provider.Proxy,
		time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
	)

	collector := report.NewCollector()
	translated := make([]string, len(entries))

	futures := make([]*dispatch.Future, len(entries))
	for i, entry := range entries {
		req := xlate.Request{
			Game: entry.Game, Mod: entry.Mod,
			File: entry.File, Key: entry.Key, Text: entry.Text,
		}
		futures[i] = queue.Enqueue(ctx, entry.Key, func(ctx context.Context) error {
			out, err := client.Translate(ctx, req)
			if err != nil {
				return err
			}
			translated[i] = out
			return nil
		})
	}
	logger.Info().Int("entries", len(entries)).Msg("work list enqueued")

	var runErr error
	done := 0
	for i, fut := range futures {
		err := fut.Wait(ctx)
		switch {
		case err == nil:
			done++
		case errors.Is(err, dispatch.ErrAborted):
			// Cascade rejection: the triggering task already reported.
		default:
			var refusal *xlate.RefusalError
			if errors.As(err, &refusal) {
				collector.Add(report.Item{
					Mod:     entries[i].Mod,
					File:    entries[i].File,
					Key:     entries[i].Key,
					Message: entries[i].Text,
				})
			}
			if runErr == nil {
				runErr = fmt.Errorf("task %q (mod %s): %w", entries[i].Key, entries[i].Mod, err)
			}
		}
	}

	logger.Info().Int("translated", done).Int("refused", collector.Len()).
		Msg("translation run finished")

	if err := writeTranslations(cfg, entries, translated); err != nil {
		return err
	}
	// A run that aborted on transient exhaustion leaves no report behind:
	// an empty report means "everything resolved" and would close issues
	// that are still live.
	if runErr == nil || collector.Len() > 0 {
		if err := writeReport(cfg, collector, logger); err != nil {
			return err
		}
	}
	return runErr
}

func writeReport(cfg *config.File, collector *report.Collector, logger zerolog.Logger) error {
	path := filepath.Join(rootDir, cfg.Report)
	r := collector.Report(time.Now())
	if err := r.Save(path); err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("items", len(r.Items)).Msg("wrote unresolved report")
	return nil
}

// writeTranslations persists the successful results keyed by entry key.
func writeTranslations(cfg *config.File, entries []xlate.WorkEntry, translated []string) error {
	out := make(map[string]string, len(entries))
	for i, entry := range entries {
		if translated[i] != "" {
			out[entry.Key] = translated[i]
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling translations: %w", err)
	}
	path := filepath.Join(rootDir, cfg.Translations)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// reconcile
// ---------------------------------------------------------------------------

func newReconcileCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Sync the unresolved report into tracking issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			if cfg.Tracking.Repo == "" {
				return fmt.Errorf("no tracking repo configured in %s", config.FileName)
			}
			gameCfg, ok := cfg.Games[gameID]
			if !ok {
				return fmt.Errorf("unknown game %q (configured: %s)", gameID, gameList(cfg))
			}
			game := track.Game{ID: gameID, DisplayName: gameCfg.DisplayName}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			store := github.NewClient(cfg.Tracking.BaseURL, cfg.Tracking.Repo, cfg.TrackingToken(), logger)
			return runReconcile(ctx, cfg, game, store, logger)
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "Game id to reconcile (required)")
	_ = cmd.MarkFlagRequired("game")
	return cmd
}

func runReconcile(ctx context.Context, cfg *config.File, game track.Game, store track.Store, logger zerolog.Logger) error {
	path := filepath.Join(rootDir, cfg.Report)

	var batch *report.Batch
	switch r, err := report.Load(path); {
	case err == nil:
		batch = r.ToBatch()
	case os.IsNotExist(err):
		logger.Info().Str("path", path).Msg("no unresolved report, treating as fully resolved")
		batch = report.EmptyBatch(time.Now().UTC().Format(time.RFC3339))
	default:
		// Malformed report: we cannot tell whether anything is resolved,
		// so no record may be created, updated, or closed.
		logger.Error().Str("path", path).Err(err).Msg("unresolved report is malformed, touching nothing")
		return err
	}

	open, err := store.OpenRecords(ctx, game)
	if err != nil {
		return err
	}

	actions := track.Reconcile(game, batch, open, logger)
	if len(actions) == 0 {
		logger.Info().Msg("tracking records already up to date")
		return nil
	}
	if err := track.Apply(ctx, store, actions); err != nil {
		return err
	}
	logger.Info().Int("actions", len(actions)).Msg("tracking records reconciled")
	return nil
}

func gameList(cfg *config.File) string {
	ids := make([]string, 0, len(cfg.Games))
	for id := range cfg.Games {
		ids = append(ids, id)
	}
	return fmt.Sprintf("%v", ids)
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API credentials",
	}

	set := &cobra.Command{
		Use:   "set <provider> <key>",
		Short: "Store an API key (providers: openai-chat, gemini, github)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.SetAPIKey(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("stored key for %s (%s) in %s\n",
				args[0], settings.MaskKey(args[1]), settings.FilePath())
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <provider>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return settings.Remove(args[0])
		},
	}

	auth.AddCommand(set, remove)
	return auth
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("modlate %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

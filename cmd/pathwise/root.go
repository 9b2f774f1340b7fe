package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/pathwise/internal/ai"
	"github.com/amishk599/pathwise/internal/config"
	"github.com/amishk599/pathwise/internal/identity"
	"github.com/amishk599/pathwise/internal/insight"
	"github.com/amishk599/pathwise/internal/model"
	"github.com/amishk599/pathwise/internal/notifier"
	"github.com/amishk599/pathwise/internal/onboarding"
	"github.com/amishk599/pathwise/internal/profile"
	"github.com/amishk599/pathwise/internal/ratelimit"
	"github.com/amishk599/pathwise/internal/retry"
	"github.com/amishk599/pathwise/internal/store"
)

var (
	cfgPath string
	debug   bool
	user    string
)

var rootCmd = &cobra.Command{
	Use:   "pathwise",
	Short: "Career onboarding with shared industry insights",
	Long: "Pathwise onboards users into an industry and serves AI-generated market insights " +
		"that are generated once per industry and refreshed weekly.",
	SilenceUsage: true,
	// Default to `start` so that `pathwise` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: PATHWISE_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "", "auth subject of the acting user (default: PATHWISE_USER env var)")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > PATHWISE_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("PATHWISE_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// resolveUser returns the acting user's subject: --user, then PATHWISE_USER.
func resolveUser() string {
	if user != "" {
		return user
	}
	return os.Getenv("PATHWISE_USER")
}

func setupLogger(w io.Writer, dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// setupGenerator builds generator(retry(ratelimit(openai))), or a generator
// that always fails when AI is disabled.
func setupGenerator(cfg *config.Config, logger *slog.Logger) model.InsightGenerator {
	if !cfg.AI.Enabled {
		logger.Info("ai disabled, only stored insights can be served")
		return ai.NewDisabledGenerator()
	}

	aiClient := &http.Client{Timeout: cfg.AI.Timeout}
	var provider model.LLMProvider = ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, aiClient)

	// Shared per-model limiter; retries pass through it too.
	limiter := ratelimit.NewModelRateLimiter(cfg.AI.RequestsPerMinute)
	provider = ratelimit.NewRateLimitedProvider(provider, limiter, cfg.AI.Model)
	provider = retry.NewRetryProvider(provider, cfg.AI.MaxRetries, cfg.AI.RetryBaseDelay, logger)

	logger.Info("ai enabled",
		"model", cfg.AI.Model,
		"base_url", cfg.AI.BaseURL,
		"requests_per_minute", cfg.AI.RequestsPerMinute,
	)
	return ai.NewLLMInsightGenerator(provider, ai.IndustryInsightsTemplate, logger)
}

func setupDirectory(cfg *config.Config, logger *slog.Logger) model.IdentityDirectory {
	switch cfg.Identity.Provider {
	case "clerk":
		logger.Info("using clerk identity directory")
		return identity.NewClerkDirectory(cfg.Identity.BaseURL, cfg.Identity.SecretKey, &http.Client{Timeout: 10 * time.Second})
	default:
		return identity.StaticDirectory{EmailDomain: cfg.Identity.EmailDomain}
	}
}

func setupNotifier(cfg *config.Config, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier", "only_failures", cfg.Notification.OnlyFailures)
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, &http.Client{Timeout: 30 * time.Second}, cfg.Notification.OnlyFailures, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// app is the wired object graph shared by the commands.
type app struct {
	db           *store.DB
	cached       *store.CachedInsightStore
	insights     model.InsightStore
	cache        *insight.Cache
	orchestrator *onboarding.Orchestrator
}

// openApp opens the database, applies migrations and wires every component.
func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("database ready", "driver", db.Dialect())

	a := &app{db: db}
	a.insights = store.NewSQLInsightStore(db)
	if cfg.Insights.MemoryTTL > 0 {
		a.cached = store.NewCachedInsightStore(a.insights, cfg.Insights.MemoryTTL, nil)
		a.insights = a.cached
	}

	a.cache = insight.NewCache(a.insights, setupGenerator(cfg, logger), logger,
		insight.WithGenerationTimeout(cfg.Insights.GenerationTimeout),
	)

	profiles := store.NewSQLProfileStore(db)
	a.orchestrator = onboarding.NewOrchestrator(
		a.cache,
		profile.NewCommitter(profiles, logger),
		profile.NewProvisioner(profiles, setupDirectory(cfg, logger), logger),
		logger,
	)
	return a, nil
}

func (a *app) Close() error {
	if a.cached != nil {
		a.cached.Close()
	}
	return a.db.Close()
}

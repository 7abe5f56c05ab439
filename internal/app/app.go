package app

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"tokenladder/internal/config"
	"tokenladder/internal/httpx"
	slackbot "tokenladder/internal/integrations/slack"
	"tokenladder/internal/storage/sqlite"
)

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "tokenladder",
		Short:        "Run prompts with self-tuning token budgets",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				_ = os.Setenv("CONFIG_PATH", configPath)
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (overrides CONFIG_PATH)")

	root.AddCommand(newRunCmd(), newBaselinesCmd(), newHistoryCmd(), newDigestCmd())
	return root
}

// env is what every command opens after loading configuration.
type env struct {
	cfg   config.Config
	db    *sql.DB
	store *sqlite.Store
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Provider=%s Model=%s Cap=%d MaxEscalations=%d Deltas=%v MinFragment=%d RequireUnbalanced=%t RunTimeout=%s Concurrency=%d Timezone=%s ExternalHTTPTimeout=%s",
		cfg.LLMProvider,
		cfg.LLMModel,
		cfg.EscalationTokenCap,
		cfg.Escalations(),
		cfg.EscalationDeltas,
		cfg.MinFragmentChars(),
		cfg.RequireUnbalanced(),
		cfg.RunTimeout(),
		cfg.RunConcurrency,
		cfg.Timezone,
		appliedHTTPTimeout,
	)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	return &env{cfg: cfg, db: db, store: sqlite.NewStore(db)}, nil
}

// notifier returns nil when Slack is not configured.
func (e *env) notifier() *slackbot.Notifier {
	if !e.cfg.SlackConfigured() {
		return nil
	}
	return slackbot.NewNotifier(slack.New(e.cfg.SlackBotToken), e.cfg.AlertChannelID)
}

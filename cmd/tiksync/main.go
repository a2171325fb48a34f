package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/shoplens/tiksync/internal/config"
	"github.com/shoplens/tiksync/internal/http_api"
	"github.com/shoplens/tiksync/internal/jobs"
	"github.com/shoplens/tiksync/internal/locker"
	"github.com/shoplens/tiksync/internal/notifier"
	"github.com/shoplens/tiksync/internal/repository"
	"github.com/shoplens/tiksync/internal/syncer"
	"github.com/shoplens/tiksync/internal/tiktok"
	"github.com/shoplens/tiksync/internal/token"
	"github.com/shoplens/tiksync/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "tiksync",
		Usage: "tiksync aggregates per-store TikTok account metrics into daily snapshots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "tiktok-api-base-url", Aliases: []string{"b"}, Usage: "TikTok open API base URL"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "Admin API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
			&cli.BoolFlag{Name: "no-scheduler", Usage: "Disable the periodic sync scheduler"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("tiktok-api-base-url") {
		cfg.TikTokAPIBaseURL = c.String("tiktok-api-base-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("no-scheduler") {
		cfg.SchedulerEnabled = !c.Bool("no-scheduler")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Initialize the TikTok API client and the credential provider
	api := tiktok.New(cfg.TikTokAPIBaseURL, cfg.TikTokClientKey, cfg.TikTokClientSecret, log)
	tokens := token.New(db, api, log)

	// Initialize the reconnect notifier
	alerts, err := notifier.New(cfg.TelegramBotToken, cfg.TelegramChatID, log)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %v", err)
	}

	// Initialize the dual-layer store lock; the repository supplies both
	// the TTL row lock and the Postgres advisory layer
	lock := locker.New(db, db, cfg.LockTTL, log)

	// Wire the orchestration core
	orch := syncer.New(db, tokens, api, lock, alerts, log, cfg)
	runner := jobs.NewRunner(db, orch, tokens, log, cfg)

	// Start the periodic scheduler
	if cfg.SchedulerEnabled {
		scheduler := jobs.NewScheduler(runner, log, cfg)
		scheduler.Start()
	} else {
		log.Warn("Scheduler disabled, syncs run only via the admin API")
	}

	// Start the admin API server
	apiServer := http_api.NewHTTPServer(runner, db, cfg.APIPort, log)
	apiServer.Start()

	return nil
}

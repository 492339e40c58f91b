package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KAsare1/Kodefx-capital/cmd/api"
	"github.com/KAsare1/Kodefx-capital/cmd/config"
	"github.com/KAsare1/Kodefx-capital/cmd/logging"
	"github.com/KAsare1/Kodefx-capital/db"
	"github.com/KAsare1/Kodefx-capital/service/capital"
	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/KAsare1/Kodefx-capital/service/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "kodefx",
		Short:        "Signal capital ledger service",
		SilenceUsage: true,
	}
	serve := newServeCmd()
	root.RunE = serve.RunE
	root.AddCommand(serve, newMigrateCmd(), newClearDBCmd())
	return root
}

// setup loads configuration and the root logger shared by every command.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	zerolog.DefaultContextLogger = &log
	return cfg, log, nil
}

func openDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, func(), error) {
	DB, err := db.NewPSQLStorage(db.PSQLOptions{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		Logger:       log,
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
		log.Info().Msg("database connection closed")
	}
	log.Info().Msg("connected to the database")
	return DB, closeFn, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := buildLedger(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			server := api.NewApiServer(":"+cfg.Port, svc.ledger, svc.metrics, []byte(cfg.SecretKey), log)
			return server.Run(ctx, cfg.ShutdownTimeout)
		},
	}
}

type ledgerDeps struct {
	ledger  *ledger.Service
	metrics *metrics.Registry
}

// buildLedger wires the store, locker and metrics the configuration asks for.
func buildLedger(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ledgerDeps, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	seed, err := ledger.ParseSeedPolicy(cfg.SeedPolicy)
	if err != nil {
		return nil, nil, err
	}
	params := capital.Params{
		InvestmentPercentage: cfg.InvestmentPercentage,
		ProfitPercentage:     cfg.ProfitPercentage,
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	clock := ledger.SystemClock{Location: cfg.Location}
	var store ledger.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store, data is lost on exit")
		store = ledger.NewMemoryStore(ledger.WithStoreClock(clock))
	default:
		DB, closeDB, err := openDatabase(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, closeDB)
		store = db.NewStore(DB, db.WithClock(clock))
	}

	reg := metrics.NewRegistry()
	opts := []ledger.Option{
		ledger.WithClock(clock),
		ledger.WithParams(params),
		ledger.WithSeedPolicy(seed),
		ledger.WithObserver(reg),
	}

	if cfg.RedisAddr != "" {
		client, err := db.NewRedisClient(ctx, db.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { client.Close() })
		opts = append(opts, ledger.WithLocker(db.NewRedisLocker(client, db.WithLockLogger(log))))
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis user locks")
	}

	return &ledgerDeps{ledger: ledger.NewService(store, opts...), metrics: reg}, cleanup, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			DB, closeDB, err := openDatabase(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.Migrate(DB, log); err != nil {
				return err
			}
			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func newClearDBCmd() *cobra.Command {
	var (
		tables []string
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "clear-db",
		Short: "Drop ledger tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			if !yes {
				fmt.Fprint(cmd.OutOrStdout(), "Are you sure you want to clear the database? (yes/no): ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					log.Info().Msg("database clearing cancelled")
					return nil
				}
			}

			DB, closeDB, err := openDatabase(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.DropTables(DB, tables, log); err != nil {
				return err
			}
			log.Info().Msg("database cleared successfully")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "comma separated tables to drop (default all)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

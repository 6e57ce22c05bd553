package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ha1tch/hotelmig/pkg/cache"
	"github.com/ha1tch/hotelmig/pkg/config"
	"github.com/ha1tch/hotelmig/pkg/identity"
	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/storage"
	"github.com/ha1tch/hotelmig/pkg/validation"
)

var rootFlags struct {
	dbPath string
	debug  bool
}

var rootCmd = &cobra.Command{
	Use:           "hotelmig",
	Short:         "Migrate a legacy hotel management system into the local store",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.dbPath, "db", "", "local SQLite database (overrides DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "debug logging (overrides DEBUG)")

	rootCmd.AddCommand(serveCmd, profileCmd, migrateCmd, migrateAllCmd, logCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app wires the engine the way every command needs it
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  storage.MigrationStore
	cache  cache.Cache
	ids    *identity.Map
	orch   *migration.Orchestrator
}

func newApp() (*app, error) {
	cfg := config.Default()
	config.LoadFromEnv(cfg)
	if rootFlags.dbPath != "" {
		cfg.DBPath = rootFlags.dbPath
	}
	if rootFlags.debug {
		cfg.Debug = true
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).With().
		Timestamp().
		Logger().
		Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level)

	store, err := storage.NewMigrationStore(cfg.StorageType, map[string]interface{}{
		"db_path": cfg.DBPath,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	if infoProvider, ok := store.(storage.InfoProvider); ok {
		info := infoProvider.Info()
		logger.Debug().
			Str("type", info.Type).
			Str("version", info.Version).
			Str("db_path", cfg.DBPath).
			Bool("supports_transaction", info.SupportsTransaction).
			Msg("Storage initialized")
	}

	c, err := cache.New(cache.Options{
		Type:      cfg.CacheType,
		Size:      cfg.CacheSize,
		TTL:       time.Duration(cfg.CacheTTL) * time.Second,
		RedisHost: cfg.RedisHost,
		RedisPort: cfg.RedisPort,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to connect to Redis, falling back to memory cache")
	}

	ids := identity.New(store, c)
	orch, err := migration.New(migration.Options{
		Store:     store,
		Identity:  ids,
		Validator: validation.NewSchemaValidator(),
		Dialer:    migration.RemoteDialer(time.Duration(cfg.RemoteTimeout)*time.Second, cfg.RemoteRateLimit),
		Settings: migration.Settings{
			DefaultTaxRate:     cfg.DefaultTaxRate,
			DefaultCountryCode: cfg.DefaultCountryCode,
			ExcludedLogins:     cfg.ExcludedLogins,
		},
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, cache: c, ids: ids, orch: orch}, nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	a.store.Close()
}

// profile finds a profile by id or by name
func (a *app) profile(ctx context.Context, ref string) (*models.ConnectionProfile, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return a.store.GetProfile(ctx, id)
	}
	return a.store.GetProfileByName(ctx, ref)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

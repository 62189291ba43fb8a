package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/memeflix/backend/internal/auth"
	"github.com/memeflix/backend/internal/config"
	"github.com/memeflix/backend/internal/database"
	"github.com/memeflix/backend/internal/favorites"
	"github.com/memeflix/backend/internal/history"
	"github.com/memeflix/backend/internal/logging"
	"github.com/memeflix/backend/internal/media"
	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/seed"
	"github.com/memeflix/backend/internal/server"
	"github.com/memeflix/backend/internal/users"
	"github.com/memeflix/backend/internal/votes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenIssuer   = "memeflix-auth"
	tokenAudience = "memeflix-api"
)

var (
	cfgFile string
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "memeflix-api",
		Short: "Memeflix backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Load the meme catalog into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Recompute meme vote counters from the vote ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context())
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().String("media-backend", defaults.GetString("media.backend"), "Media backend (local, minio)")
	cmd.PersistentFlags().String("media-root", defaults.GetString("media.root"), "Directory served by the local media backend")
	cmd.PersistentFlags().String("seed-path", defaults.GetString("seed.path"), "Meme catalog used by the seed command")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "media.backend", "media-backend")
	bindFlag(cmd, "media.root", "media-root")
	bindFlag(cmd, "seed.path", "seed-path")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// openStorage builds the logger and database shared by every command.
func openStorage(appConfig config.AppConfig) (*zap.Logger, *gorm.DB, func(), error) {
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	cleanup := func() {
		_ = sqlDB.Close()
		_ = logger.Sync()
	}
	return logger, db, cleanup, nil
}

func runSeed(ctx context.Context) error {
	appConfig, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return err
	}
	logger, db, cleanup, err := openStorage(appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	loader, err := seed.NewLoader(seed.LoaderConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	report, err := loader.LoadFile(ctx, appConfig.SeedPath)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d memes (%d already present, %d new tags)\n", report.Inserted, report.Skipped, report.TagsCreated)
	return nil
}

func runReconcile(ctx context.Context) error {
	appConfig, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return err
	}
	logger, db, cleanup, err := openStorage(appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	ledger, err := votes.NewLedger(votes.LedgerConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	corrected, err := ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("reconciled vote counters: %d memes corrected\n", corrected)
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, db, cleanup, err := openStorage(appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	memeService, err := memes.NewService(memes.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	ledger, err := votes.NewLedger(votes.LedgerConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	favoriteService, err := favorites.NewService(favorites.ServiceConfig{Database: db, Memes: memeService, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	historyService, err := history.NewService(history.ServiceConfig{Database: db, Memes: memeService, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	mediaStore, err := media.NewStore(appConfig.Media)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokenManager,
		Users:          userService,
		Memes:          memeService,
		Votes:          ledger,
		Favorites:      favoriteService,
		History:        historyService,
		MediaStore:     mediaStore,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("media_backend", appConfig.Media.Backend))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

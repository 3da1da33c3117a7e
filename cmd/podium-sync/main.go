package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/podiumlab/podium/backend/internal/auth"
	"github.com/podiumlab/podium/backend/internal/competition"
	"github.com/podiumlab/podium/backend/internal/config"
	"github.com/podiumlab/podium/backend/internal/database"
	"github.com/podiumlab/podium/backend/internal/identity"
	"github.com/podiumlab/podium/backend/internal/logging"
	"github.com/podiumlab/podium/backend/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "podium-sync",
		Short: "Podium competition synchronization service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

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
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("auth-audience", defaults.GetString("auth.audience"), "Expected ID token audience")
	cmd.PersistentFlags().String("auth-jwks-url", defaults.GetString("auth.jwks_url"), "Identity provider JWKS URL")
	cmd.PersistentFlags().StringSlice("auth-allowed-issuers", defaults.GetStringSlice("auth.allowed_issuers"), "Allowed ID token issuers")
	cmd.PersistentFlags().Int("auth-timeout-seconds", defaults.GetInt("auth.timeout_seconds"), "Credential verification timeout")
	cmd.PersistentFlags().Int("persist-interval-seconds", defaults.GetInt("persist.interval_seconds"), "Periodic persistence interval")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.audience", "auth-audience")
	bindFlag(cmd, "auth.jwks_url", "auth-jwks-url")
	bindFlag(cmd, "auth.allowed_issuers", "auth-allowed-issuers")
	bindFlag(cmd, "auth.timeout_seconds", "auth-timeout-seconds")
	bindFlag(cmd, "persist.interval_seconds", "persist-interval-seconds")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Audience:       appConfig.AuthAudience,
		JWKSURL:        appConfig.AuthJWKSURL,
		AllowedIssuers: appConfig.AuthIssuers,
		Timeout:        appConfig.AuthTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	identityService, err := identity.NewService(identity.ServiceConfig{
		Database: db,
		Verifier: verifier,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	bridge, err := competition.NewBridge(competition.BridgeConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	documentStore, err := competition.NewDocumentStore(competition.DocumentStoreConfig{
		Persistence: bridge,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Identity:       identityService,
		Store:          documentStore,
		Bridge:         bridge,
		Hub:            server.NewHub(),
		Logger:         logger,
		ReadLimitBytes: appConfig.ReadLimitBytes,
		IdleTimeout:    appConfig.IdleTimeout,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(appConfig.PersistInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				documentStore.PersistAll(signalCtx)
			case <-signalCtx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		// Final flush so in-memory merges survive the restart.
		documentStore.PersistAll(shutdownCtx)
		return shutdownErr
	case err := <-errCh:
		return err
	}
}

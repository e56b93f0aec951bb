package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/config"
	"github.com/iliyamo/designer-bridge/internal/database"
	"github.com/iliyamo/designer-bridge/internal/logging"
	"github.com/iliyamo/designer-bridge/internal/repository"
	"github.com/iliyamo/designer-bridge/internal/utils"
)

var logger *zap.Logger

var rootFlags struct {
	envFile string
}

var rootCmd = &cobra.Command{
	Use:   "designer-bridge",
	Short: "Authorization and custom code bridge for designer extensions",
	Long: `designer-bridge completes the platform OAuth flow, stores the resulting
access credentials, issues session tokens to designer extensions and serves
the custom code endpoints they call.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		config.LoadEnv(cmd.Context(), logger, rootFlags.envFile)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// credentialStores is the opened database with its two credential tables.
type credentialStores struct {
	db    *sql.DB
	sites *repository.CredentialRepo
	users *repository.CredentialRepo
}

func openStores(ctx context.Context, cfg config.Config) (*credentialStores, error) {
	db, dialect, err := database.Open(ctx, database.Options{
		Driver: cfg.DBDriver,
		User:   cfg.DBUser,
		Pass:   cfg.DBPass,
		Host:   cfg.DBHost,
		Port:   cfg.DBPort,
		Name:   cfg.DBName,
		Path:   cfg.DBPath,
		URL:    cfg.DBURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sealer, err := utils.NewSealer(cfg.CredentialSealKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credential sealer: %w", err)
	}
	return &credentialStores{
		db:    db,
		sites: repository.NewSiteCredentialRepo(db, dialect, sealer),
		users: repository.NewUserCredentialRepo(db, dialect, sealer),
	}, nil
}

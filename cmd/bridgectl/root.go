package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/client"
	"github.com/iliyamo/designer-bridge/internal/logging"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "bridgectl",
	Short: "Command line client for designer-bridge",
	Long: `bridgectl talks to a designer-bridge server the way a designer extension
does: it trades an identity assertion for a session token, keeps the token in
the user config directory and reuses it until it expires.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

var globalFlags struct {
	server      string
	idToken     string
	siteID      string
	sessionFile string
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.server, "server", getEnv("BRIDGE_URL", "http://localhost:3000"), "designer-bridge base URL")
	pf.StringVar(&globalFlags.idToken, "id-token", os.Getenv("BRIDGE_ID_TOKEN"), "identity assertion issued by the designer")
	pf.StringVar(&globalFlags.siteID, "site", os.Getenv("BRIDGE_SITE_ID"), "site the identity assertion was issued for")
	pf.StringVar(&globalFlags.sessionFile, "session-file", "", "session file (default: user config dir)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// env bundles what every subcommand needs.
type env struct {
	api      *client.APIClient
	store    *client.FileStore
	sessions *client.Manager
}

func newEnv() (*env, error) {
	var store *client.FileStore
	if globalFlags.sessionFile != "" {
		store = client.NewFileStore(globalFlags.sessionFile)
	} else {
		var err error
		if store, err = client.DefaultFileStore(); err != nil {
			return nil, err
		}
	}
	api := client.NewAPIClient(globalFlags.server, nil, logger)
	return &env{
		api:      api,
		store:    store,
		sessions: client.NewManager(store, api, flagAssertion, logger),
	}, nil
}

func flagAssertion(context.Context) (string, string, error) {
	if globalFlags.idToken == "" || globalFlags.siteID == "" {
		return "", "", errors.New("--id-token and --site are required to sign in")
	}
	return globalFlags.idToken, globalFlags.siteID, nil
}

// session returns a usable session record, explaining the logged-out case.
func (e *env) session(ctx context.Context) (client.SessionRecord, error) {
	rec, err := e.sessions.Ensure(ctx)
	if errors.Is(err, client.ErrLoggedOut) {
		return rec, errors.New("logged out; run `bridgectl login` first")
	}
	return rec, err
}

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/quietgrove/backoffice/cmd/boctl/cmd/auth"
	"github.com/quietgrove/backoffice/cmd/boctl/internal/cli"
	"github.com/quietgrove/backoffice/pkg/adminsdk"
	"github.com/quietgrove/backoffice/pkg/slogx"
)

var version = "dev"

var (
	serverURL string
	storeKind string
	envFile   string

	closeStore func() error
)

var rootCmd = &cobra.Command{
	Use:     "boctl",
	Short:   "Back-office admin console CLI",
	Version: version,
	Long: `boctl is the command-line client for the back-office admin API.
It manages the authentication session (login, refresh, logout) and issues
authenticated API calls through the same request pipeline the console uses.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file: %w", err)
			}
		} else {
			_ = godotenv.Load()
		}

		cfg := cli.LoadConfig()
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		if storeKind != "" {
			cfg.Store = storeKind
		}

		slogx.New(slogx.Config{
			Service: "boctl",
			Version: version,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})

		store, closer, err := cli.OpenStore(cfg)
		if err != nil {
			return err
		}
		closeStore = closer

		auth.SetClient(adminsdk.NewClient(adminsdk.ClientConfig{
			BaseURL:  cfg.ServerURL,
			Store:    store,
			Scope:    cfg.Scope,
			Notifier: terminalNotifier{},
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeStore != nil {
			_ = closeStore()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Back-office API base URL (overrides BACKOFFICE_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Credential store driver: file, sealed, memory, redis, sqlite (overrides BACKOFFICE_CRED_STORE)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of ./.env")
	rootCmd.AddCommand(auth.AuthCmd)
}

// terminalNotifier surfaces pipeline failures on the terminal.
type terminalNotifier struct{}

func (terminalNotifier) Failure(err error) {
	pterm.Error.Println(err)
}

func (terminalNotifier) Success(message string) {
	pterm.Success.Println(message)
}

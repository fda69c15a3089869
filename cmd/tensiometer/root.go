package main

import (
	"tensiometer/internal/config"

	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tensiometer",
	Short: "Blood pressure measurement API",
	Long: `Tensiometer serves a JSON API for recording blood pressure readings.

Settings come from the environment (PORT, STORE, DATABASE_URL, MONGODB_URI,
MODE, CORS_ORIGIN, SESSION_TTL, TRUST_FORWARD_AUTH, OIDC_*).

EXAMPLES:

  $ STORE=memory tensiometer                     # Serve with an in-memory store
  $ tensiometer user create --username admin --password 'long secret'`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

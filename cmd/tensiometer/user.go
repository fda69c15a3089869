package main

import (
	"errors"
	"fmt"

	"tensiometer/internal/app"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	createUsername string
	createPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the first user",
	Long: `Create the first user of a fresh installation.

Only succeeds while no user exists. Later users arrive through SSO or a
trusted forward-auth proxy.

EXAMPLES:

  $ tensiometer user create --username admin --password 'long secret'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cfg.OpenStore(cmd.Context())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		auth := app.NewAuthService(store.Users, store.Sessions)
		user, err := auth.CreateInitialUser(cmd.Context(), createUsername, createPassword)
		if errors.Is(err, app.ErrUsersExist) {
			color.Yellow("⚠ A user already exists; setup is complete")
			return err
		}
		if err != nil {
			return err
		}

		color.Green("✓ Created user %s", user.Username)
		fmt.Printf("  %s\n", color.New(color.Faint).Sprintf("id %d", user.ID))
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&createUsername, "username", "", "login name")
	userCreateCmd.Flags().StringVar(&createPassword, "password", "", "password, at least 8 characters")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}

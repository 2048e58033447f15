package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xiaoyuanzhu-com/buildchat/apiclient"
	"github.com/xiaoyuanzhu-com/buildchat/auth"
	"github.com/xiaoyuanzhu-com/buildchat/config"
)

var (
	loginUsername string
	logout        bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a session token and store it in the token file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := auth.NewFileStore(config.Get().TokenFile)
		if logout {
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		}
		if loginUsername == "" {
			return errors.New("--username is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		tok, err := apiclient.New(apiURL).IssueToken(ctx, loginUsername)
		if err != nil {
			return err
		}
		if err := store.Save(tok.Token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (token saved to %s, expires %s)\n",
			loginUsername, store.Path(), tok.ExpiresAt.Local().Format(time.DateTime))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Account name")
	loginCmd.Flags().BoolVar(&logout, "logout", false, "Remove the stored token")
	rootCmd.AddCommand(loginCmd)
}

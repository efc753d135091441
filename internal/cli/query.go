package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mcoot/globalchat/internal/api/response"
)

func newOnlineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "List users currently online",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Online

			if err := a.client.Get(cmd.Context(), "/api/v1/online", &result); err != nil {
				return err
			}

			a.output(cmd).Print(result)
			return nil
		},
	}
}

func newMeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the identity behind the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Token == "" {
				return fmt.Errorf("not logged in: run chatctl login first")
			}

			var result response.Me
			if err := a.client.Get(cmd.Context(), "/api/v1/me", &result); err != nil {
				return err
			}

			a.output(cmd).Print(result)
			return nil
		},
	}
}

func newAccountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "account <username>",
		Short: "Show a registered account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Account

			if err := a.client.Get(cmd.Context(), "/api/v1/accounts/"+url.PathEscape(args[0]), &result); err != nil {
				return err
			}

			a.output(cmd).Print(result)
			return nil
		},
	}
}

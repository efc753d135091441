package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// app carries the resolved settings shared by all subcommands
type app struct {
	cfg    *Config
	client *Client
	origin string
}

func (a *app) output(cmd *cobra.Command) *Output {
	return NewOutput(a.cfg.Output, cmd.OutOrStdout())
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{cfg: DefaultConfig()}

	rootCmd := &cobra.Command{
		Use:   "chatctl",
		Short: "CLI tool for the global chat server",
		Long: `chatctl talks to a global chat server.

It can log in with credentials or as a guest, post to the global channel,
stream channel events and query the read-only REST API.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load token from file if not provided via flag/env
			if err := a.cfg.LoadToken(); err != nil {
				return err
			}

			a.client = NewClient(a.cfg.ServerURL, a.cfg.Token)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.cfg.ServerURL, "server", a.cfg.ServerURL, "Server URL (env: CHATCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&a.cfg.Token, "token", a.cfg.Token, "Chat token (env: CHATCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&a.cfg.TokenFile, "token-file", a.cfg.TokenFile, "Token file path (env: CHATCTL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVar(&a.origin, "origin", "", "Origin header sent on the websocket handshake")
	rootCmd.PersistentFlags().StringVarP(&a.cfg.Output, "output", "o", a.cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&a.cfg.Verbose, "verbose", "v", a.cfg.Verbose, "Verbose output")

	rootCmd.AddCommand(newLoginCmd(a))
	rootCmd.AddCommand(newSayCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newOnlineCmd(a))
	rootCmd.AddCommand(newMeCmd(a))
	rootCmd.AddCommand(newAccountCmd(a))
	rootCmd.AddCommand(newHealthCmd(a))

	return rootCmd
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

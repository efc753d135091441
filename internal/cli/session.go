package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/globalchat/internal/model"
)

// LoginResult is printed after a successful login
type LoginResult struct {
	Username string `json:"username"`
	Guest    bool   `json:"guest"`
	Token    string `json:"token"`
}

// connect dials the gateway and authenticates. The refreshed token is stored.
func (a *app) connect(ctx context.Context, payload model.LoginPayload) (*ChatConn, model.LoginSuccessPayload, error) {
	conn, err := DialChat(ctx, a.cfg.WebSocketURL(), a.origin)
	if err != nil {
		return nil, model.LoginSuccessPayload{}, err
	}

	ok, err := conn.Login(payload)
	if err != nil {
		_ = conn.Close()
		return nil, model.LoginSuccessPayload{}, err
	}

	if ok.Token != "" {
		if err := a.cfg.SaveToken(ok.Token); err != nil {
			_ = conn.Close()
			return nil, model.LoginSuccessPayload{}, fmt.Errorf("failed to save token: %w", err)
		}
	}
	return conn, ok, nil
}

func (a *app) resumePayload() (model.LoginPayload, error) {
	if a.cfg.Token == "" {
		return model.LoginPayload{}, fmt.Errorf("not logged in: run chatctl login first")
	}
	return model.LoginPayload{Token: a.cfg.Token}, nil
}

func newLoginCmd(a *app) *cobra.Command {
	var user, pass string
	var guest bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with credentials or as a guest",
		Long: `Log in to the chat server and store the issued token.

An unknown username is registered on first login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload model.LoginPayload
			switch {
			case guest:
				payload = model.LoginPayload{Guest: true}
			case user != "" && pass != "":
				payload = model.LoginPayload{Username: user, Password: pass}
			default:
				return fmt.Errorf("either --guest or both --user and --pass are required")
			}

			conn, ok, err := a.connect(cmd.Context(), payload)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			a.output(cmd).Print(LoginResult{Username: ok.Username, Guest: ok.Guest, Token: ok.Token})
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username")
	cmd.Flags().StringVar(&pass, "pass", "", "Password")
	cmd.Flags().BoolVar(&guest, "guest", false, "Log in as a guest")
	cmd.MarkFlagsMutuallyExclusive("guest", "user")

	return cmd
}

func newSayCmd(a *app) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Post a message to the global channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("message text is empty")
			}

			payload, err := a.resumePayload()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			conn, ok, err := a.connect(ctx, payload)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			defer conn.closeOnDone(ctx)()

			if err := conn.Send(model.EventSendGlobal, model.SendGlobalPayload{Text: text}); err != nil {
				return err
			}

			for {
				env, err := conn.Next()
				if err != nil {
					if ctx.Err() != nil {
						return fmt.Errorf("message not confirmed within %s", wait)
					}
					return err
				}

				switch env.Event {
				case model.EventGlobalMessage:
					var msg model.GlobalMessagePayload
					if err := json.Unmarshal(env.Data, &msg); err != nil {
						continue
					}
					if msg.User == ok.Username && msg.Text == text {
						a.output(cmd).Print(msg)
						return nil
					}
				case model.EventRateLimited:
					var rl model.RateLimitedPayload
					_ = json.Unmarshal(env.Data, &rl)
					return fmt.Errorf("rate limited: retry in %dms", rl.RetryAfterMs)
				}
			}
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the message to be echoed")

	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var guest bool
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream global channel events",
		Long: `Connect to the chat server and print events as they arrive.

Events include:
  - onlineUsers: the roster changed
  - globalMessage: a message was posted

Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := model.LoginPayload{Guest: true}
			if !guest {
				var err error
				if payload, err = a.resumePayload(); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			conn, ok, err := a.connect(ctx, payload)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			defer conn.closeOnDone(ctx)()

			out := a.output(cmd)
			if a.cfg.Verbose {
				out.PrintMessage(fmt.Sprintf("Connected as %s", ok.Username))
			}

			received := 0
			for count == 0 || received < count {
				env, err := conn.Next()
				if err != nil {
					if ctx.Err() != nil || isNormalClose(err) {
						return nil
					}
					return fmt.Errorf("stream error: %w", err)
				}

				switch env.Event {
				case model.EventOnlineUsers:
					var users model.OnlineUsersPayload
					if err := json.Unmarshal(env.Data, &users); err == nil {
						out.Print(users)
					}
				case model.EventGlobalMessage:
					var msg model.GlobalMessagePayload
					if err := json.Unmarshal(env.Data, &msg); err == nil {
						out.Print(msg)
						received++
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&guest, "guest", false, "Watch as a guest instead of resuming the stored token")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many messages (0 streams until interrupted)")

	return cmd
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure
}

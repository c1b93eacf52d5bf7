package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/chatbot/internal/chat"
	"github.com/capitalize-ai/chatbot/internal/model"
	"github.com/capitalize-ai/chatbot/internal/session"
)

func newListCmd(app *client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your conversations, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}

			view := chat.NewListView(app.gateway, app.log)
			if err := view.Load(cmd.Context()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
			for _, c := range view.Conversations() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Title, c.MessageCount, c.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func newNewCmd(app *client) *cobra.Command {
	return &cobra.Command{
		Use:   "new <title>",
		Short: "Start a new conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}

			view := chat.NewListView(app.gateway, app.log)
			view.SetTitle(strings.Join(args, " "))
			conv, err := view.Create(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
			return nil
		},
	}
}

func newSendCmd(app *client) *cobra.Command {
	return &cobra.Command{
		Use:   "send <conversation-id> <text>",
		Short: "Send a message and print the assistant's reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireSession(); err != nil {
				return err
			}
			ctx := cmd.Context()

			view := chat.NewConversationView(app.gateway, args[0], app.log)
			defer view.Close()

			if err := view.Open(ctx); err != nil {
				return err
			}
			if view.State() == chat.StateNotFound {
				return fmt.Errorf("conversation %s not found", args[0])
			}

			view.SetInput(strings.Join(args[1:], " "))
			if err := view.Send(ctx); err != nil {
				return err
			}

			conv, err := app.gateway.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			if reply, ok := lastAssistant(conv.Messages); ok {
				fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			}
			return nil
		},
	}
}

func newTokenCmd(app *client) *cobra.Command {
	var (
		secret string
		userID string
		ttl    time.Duration
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with the gateway's JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := session.Issue(secret, userID, ttl)
			if err != nil {
				return err
			}
			if !save {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			if err := app.session.Save(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret (defaults to $JWT_SECRET)")
	cmd.Flags().StringVar(&userID, "user", "", "User ID to put in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "Store the token in the token file instead of printing it")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newLogoutCmd(app *client) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.session.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func lastAssistant(msgs []model.Message) (model.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/relay/rpc"
)

type sessionCall func(ctx context.Context, c *rpc.Client, args []string) (map[string]any, error)

func newSessionsCmd() *cobra.Command {
	var (
		addr   string
		offset int
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage sessions of a running relay server",
	}
	cmd.PersistentFlags().StringVar(&addr, "server", "http://localhost:6001", "Relay server base URL")

	run := func(call sessionCall) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			client := rpc.NewClient(&http.Client{Timeout: 10 * time.Second}, addr)
			resp, err := call(cmd.Context(), client, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions in creation order",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *rpc.Client, _ []string) (map[string]any, error) {
			return c.ListSessions(ctx, offset, limit)
		}),
	}
	list.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	list.Flags().IntVar(&limit, "limit", 10, "Records to return (1-50)")

	info := &cobra.Command{
		Use:   "info <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *rpc.Client, args []string) (map[string]any, error) {
			return c.GetSession(ctx, args[0])
		}),
	}

	bind := &cobra.Command{
		Use:   "bind <session-id> <conversation-id>",
		Short: "Bind a conversation to a session",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, c *rpc.Client, args []string) (map[string]any, error) {
			return c.BindSession(ctx, args[0], args[1])
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Drop a session and its binding",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *rpc.Client, args []string) (map[string]any, error) {
			return c.ClearSession(ctx, args[0])
		}),
	}

	find := &cobra.Command{
		Use:   "find <conversation-id>",
		Short: "Find the session bound to a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, c *rpc.Client, args []string) (map[string]any, error) {
			return c.FindSessionByConversation(ctx, args[0])
		}),
	}

	cmd.AddCommand(list, info, bind, clearCmd, find)
	return cmd
}

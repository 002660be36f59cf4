package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/session"
	"github.com/tailored-agentic-units/relay/stream"
)

type chatOptions struct {
	message        string
	sessionID      string
	userID         string
	conversationID string
	stream         bool
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot from the terminal",
		Long: `Chat sends one message with --message, or reads messages from stdin one
per line. All messages share one session, so the conversation continues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configFile, os.LookupEnv)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !root.verbose && cfg.Observer == "slog" {
				cfg.Observer = "noop"
			}

			x, err := exchange.New(&cfg.Config)
			if err != nil {
				return err
			}

			c := &chatter{
				exchange:    x,
				opts:        opts,
				out:         cmd.OutOrStdout(),
				incremental: isTerminal(os.Stdout),
			}
			if opts.sessionID == "" {
				opts.sessionID = session.NewSessionID()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if opts.message != "" {
				return c.send(ctx, opts.message)
			}
			return c.repl(ctx, cmd.InOrStdin())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.message, "message", "m", "", "Send one message and exit")
	flags.StringVarP(&opts.sessionID, "session", "s", "", "Session id (generated when empty)")
	flags.StringVar(&opts.userID, "user", "", "User id sent to the provider")
	flags.StringVar(&opts.conversationID, "conversation", "", "Continue this provider conversation")
	flags.BoolVar(&opts.stream, "stream", false, "Stream the reply as it is generated")
	return cmd
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type chatter struct {
	exchange    *exchange.Exchange
	opts        *chatOptions
	out         io.Writer
	incremental bool
}

func (c *chatter) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if c.incremental {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if err := c.send(ctx, line); err != nil {
			return err
		}
	}
}

func (c *chatter) send(ctx context.Context, message string) error {
	req := exchange.Request{
		SessionID:      c.opts.sessionID,
		UserID:         c.opts.userID,
		Message:        message,
		ConversationID: c.opts.conversationID,
	}
	// an explicit conversation only seeds the first message; later ones
	// follow the session binding
	c.opts.conversationID = ""

	if !c.opts.stream {
		result, err := c.exchange.Send(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, result.Text)
		return nil
	}

	result, err := c.exchange.Stream(ctx, req, func(e exchange.Event) error {
		switch e.Type {
		case stream.EventChunk:
			if c.incremental {
				fmt.Fprint(c.out, e.Content)
			}
		case stream.EventError:
			if e.Err != nil && c.incremental {
				fmt.Fprintf(os.Stderr, "\n[stream] %v\n", e.Err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.incremental {
		fmt.Fprintln(c.out)
	} else {
		fmt.Fprintln(c.out, result.Text)
	}
	return nil
}

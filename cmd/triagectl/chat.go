package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/legal-triage/internal/routing"
	"github.com/wolfman30/legal-triage/internal/session"
)

// chatSessionKey is the persisted transcript key, shared with the web client.
const chatSessionKey = "chat_messages"

func newChatCmd(c *cli) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the triage assistant",
		Long: `Starts an interactive triage conversation. The transcript is saved after every
message and restored on the next run. Type /clear to start over or /quit to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = c.cfg.SessionDir
			}
			return c.runChat(cmd, session.NewFileKV(dir))
		},
	}
	cmd.Flags().StringVar(&dir, "session-dir", "", "directory holding the saved transcript (defaults to SESSION_DIR)")
	return cmd
}

func (c *cli) runChat(cmd *cobra.Command, kv session.KV) error {
	ctx := cmd.Context()
	sess := session.Restore(ctx, kv, chatSessionKey, c.logger)
	for _, m := range sess.Messages() {
		printMessage(c, m)
	}

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := sess.Clear(ctx); err != nil {
				c.logger.Warn("failed to clear saved transcript", "error", err)
			}
			fmt.Fprintln(c.out, "conversation cleared")
			continue
		}

		_, err := c.app.Orchestrator.HandleTurn(ctx, sess, line, routing.WithStream(func(chunk string) error {
			_, err := fmt.Fprint(c.out, chunk)
			return err
		}))
		fmt.Fprintln(c.out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, routing.ErrInference) {
				fmt.Fprintln(c.errOut, "the assistant is unavailable, try again")
			} else {
				fmt.Fprintf(c.errOut, "error: %v\n", err)
			}
		}
	}
}

func printMessage(c *cli, m session.Message) {
	switch m.Role {
	case session.RoleUser:
		fmt.Fprintf(c.out, "> %s\n", m.Content)
	case session.RoleAssistant:
		fmt.Fprintln(c.out, m.Content)
	}
}

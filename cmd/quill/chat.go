package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/quill/internal/app"
	"github.com/efebarandurmaz/quill/internal/chain"
	"github.com/efebarandurmaz/quill/internal/tui"
)

func chatCmd(root *rootFlags) *cobra.Command {
	var (
		template string
		id       string
		slot     string
		inputVar string
		set      map[string]string
		useTUI   bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively; each turn is stored and replayed as history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app.App) error {
				c, err := a.Chain(template)
				if err != nil {
					return err
				}
				store, err := a.History(cmd.Context())
				if err != nil {
					return err
				}
				if id == "" {
					id = uuid.NewString()
				}
				conv := chain.NewConversation(c, store, slot, inputVar, a.Config.History.Limit)

				if useTUI {
					past, err := conv.History(cmd.Context(), id)
					if err != nil {
						return err
					}
					send := func(ctx context.Context, input string) (string, error) {
						res, err := conv.Send(ctx, id, input, set)
						if err != nil {
							return "", err
						}
						return res.Response.Content, nil
					}
					_, err = tui.RunChat(cmd.Context(), template+" · "+id, send, past)
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "conversation %s (empty line or Ctrl-D to quit)\n", id)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for {
					fmt.Fprint(out, "> ")
					if !scanner.Scan() {
						break
					}
					line := strings.TrimSpace(scanner.Text())
					if line == "" {
						break
					}
					res, err := conv.Send(cmd.Context(), id, line, set)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, res.Response.Content)
				}
				fmt.Fprintln(out)
				return scanner.Err()
			})
		},
	}
	cmd.Flags().StringVar(&template, "template", "chat", "Template with a history placeholder")
	cmd.Flags().StringVar(&id, "conversation", "", "Conversation ID to resume (default: new)")
	cmd.Flags().StringVar(&slot, "slot", "history", "Placeholder slot that receives past messages")
	cmd.Flags().StringVar(&inputVar, "input-var", "input", "Variable that carries each user message")
	cmd.Flags().StringToStringVar(&set, "set", nil, "Extra template variable, name=value")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Use the full-screen terminal UI")

	cmd.AddCommand(chatHistoryCmd(root), chatClearCmd(root))
	return cmd
}

func chatHistoryCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history [conversation]",
		Short: "Print a stored conversation, or list conversations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), root, func(a *app.App) error {
				store, err := a.History(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					ids, err := store.Conversations(cmd.Context())
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(out, id)
					}
					return nil
				}
				msgs, err := store.Messages(cmd.Context(), args[0], 0)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
				}
				return nil
			})
		},
	}
}

func chatClearCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <conversation>",
		Short: "Delete a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), root, func(a *app.App) error {
				store, err := a.History(cmd.Context())
				if err != nil {
					return err
				}
				return store.Clear(cmd.Context(), args[0])
			})
		},
	}
}

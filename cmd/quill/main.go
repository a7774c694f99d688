package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/quill/internal/app"
	"github.com/efebarandurmaz/quill/internal/llm"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	provider   string
	model      string
	logLevel   string
}

func main() {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:           "quill",
		Version:       version,
		Short:         "Render role-tagged prompt templates and send them to chat models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&flags.provider, "provider", "", "Override llm.provider")
	rootCmd.PersistentFlags().StringVar(&flags.model, "model", "", "Override llm.model")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level")

	rootCmd.AddCommand(
		renderCmd(&flags),
		invokeCmd(&flags),
		streamCmd(&flags),
		batchCmd(&flags),
		chatCmd(&flags),
		templatesCmd(&flags),
		providersCmd(),
		serveCmd(&flags),
		submitCmd(&flags),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp builds the App, runs fn and flushes traces and stores afterwards.
func withApp(ctx context.Context, flags *rootFlags, fn func(a *app.App) error) error {
	a, err := app.New(ctx, app.Options{
		ConfigPath: flags.configPath,
		Provider:   flags.provider,
		Model:      flags.model,
		LogLevel:   flags.logLevel,
	})
	if err != nil {
		return err
	}
	runErr := fn(a)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		a.Logger.Warn().Err(err).Msg("shutdown")
	}
	return runErr
}

func templatesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List available templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(a *app.App) error {
				out := cmd.OutOrStdout()
				for _, e := range a.Catalog.List() {
					fmt.Fprintf(out, "%-16s %-8s %v\n", e.Name, e.Source, e.Template.InputVariables())
					if e.Description != "" {
						fmt.Fprintf(out, "  %s\n", e.Description)
					}
				}
				return nil
			})
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintln(out, "Available LLM providers:")
			fmt.Fprintln(out)
			for _, name := range names {
				fmt.Fprintf(out, "  %-14s %s\n", name, llm.KnownProviders[name])
			}
			fmt.Fprintln(out, "  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Fprintln(out, "  none           (render only, no model calls)")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configure in quill.yaml, .env or via environment:")
			fmt.Fprintln(out, "  QUILL_LLM_PROVIDER=groq")
			fmt.Fprintln(out, "  QUILL_LLM_API_KEY=gsk_...")
			fmt.Fprintln(out, "  QUILL_LLM_MODEL=llama-3.3-70b-versatile")
		},
	}
}

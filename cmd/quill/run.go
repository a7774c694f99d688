package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/quill/internal/app"
	"github.com/efebarandurmaz/quill/internal/chain"
	"github.com/efebarandurmaz/quill/internal/fewshot"
	"github.com/efebarandurmaz/quill/internal/llm"
	"github.com/efebarandurmaz/quill/internal/prompt"
)

// runFlags are shared by render, invoke and stream.
type runFlags struct {
	set          map[string]string
	messagesFile string
	examplesFile string
	examplesSlot string
	examplesVar  string
	k            int
	jsonOut      bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringToStringVar(&f.set, "set", nil, "Template variable, name=value (repeatable)")
	cmd.Flags().StringVar(&f.messagesFile, "messages", "", "JSON file mapping slot names to message lists")
	cmd.Flags().StringVar(&f.examplesFile, "examples", "", "YAML/JSON file of few-shot examples")
	cmd.Flags().StringVar(&f.examplesSlot, "examples-slot", "examples", "Placeholder slot filled with examples")
	cmd.Flags().StringVar(&f.examplesVar, "examples-input", "input", "Variable whose value selects examples")
	cmd.Flags().IntVar(&f.k, "k", 2, "Number of examples to select")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print JSON instead of text")
}

func (f *runFlags) bindings() prompt.Bindings {
	b := make(prompt.Bindings, len(f.set))
	for k, v := range f.set {
		b[k] = v
	}
	return b
}

func (f *runFlags) renderOptions() ([]prompt.RenderOption, error) {
	if f.messagesFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.messagesFile)
	if err != nil {
		return nil, err
	}
	var slots map[string][]llm.Message
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.messagesFile, err)
	}
	opts := make([]prompt.RenderOption, 0, len(slots))
	for name, msgs := range slots {
		opts = append(opts, prompt.WithMessages(name, msgs))
	}
	return opts, nil
}

// chain builds the chain for name, attaching a few-shot selector when an
// examples file was given.
func (f *runFlags) chain(cmd *cobra.Command, a *app.App, name string) (*chain.Chain, error) {
	if f.examplesFile == "" {
		return a.Chain(name)
	}
	examples, err := fewshot.LoadFile(f.examplesFile)
	if err != nil {
		return nil, err
	}
	provider, err := a.Provider(name)
	if err != nil {
		return nil, err
	}
	sel, err := a.ExampleSelector(cmd.Context(), provider, name, examples, f.k)
	if err != nil {
		return nil, err
	}
	return a.Chain(name, chain.WithFewShot(f.examplesSlot, f.examplesVar, sel))
}

func renderCmd(root *rootFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template into role-tagged messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), root, func(a *app.App) error {
				c, err := f.chain(cmd, a, args[0])
				if err != nil {
					return err
				}
				opts, err := f.renderOptions()
				if err != nil {
					return err
				}
				v, err := c.Render(cmd.Context(), f.bindings(), opts...)
				if err != nil {
					return err
				}
				if f.jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"messages": v.ToMessages()})
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.String())
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func invokeCmd(root *rootFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "invoke <template>",
		Short: "Render a template and send it to the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), root, func(a *app.App) error {
				c, err := f.chain(cmd, a, args[0])
				if err != nil {
					return err
				}
				opts, err := f.renderOptions()
				if err != nil {
					return err
				}
				res, err := c.Invoke(cmd.Context(), f.bindings(), opts...)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res, f.jsonOut)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func streamCmd(root *rootFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "stream <template>",
		Short: "Render a template and stream the model's reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), root, func(a *app.App) error {
				c, err := f.chain(cmd, a, args[0])
				if err != nil {
					return err
				}
				opts, err := f.renderOptions()
				if err != nil {
					return err
				}
				ch, err := c.Stream(cmd.Context(), f.bindings(), opts...)
				if err != nil {
					return err
				}
				return printStream(cmd.OutOrStdout(), ch)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func printStream(out io.Writer, ch <-chan llm.StreamChunk) error {
	for chunk := range ch {
		if chunk.Err != nil {
			fmt.Fprintln(out)
			return chunk.Err
		}
		fmt.Fprint(out, chunk.Content)
	}
	fmt.Fprintln(out)
	return nil
}

func printResult(out io.Writer, res *chain.Result, jsonOut bool) error {
	if jsonOut {
		return writeJSON(out, res)
	}
	switch v := res.Output.(type) {
	case string:
		fmt.Fprintln(out, v)
	default:
		return writeJSON(out, v)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

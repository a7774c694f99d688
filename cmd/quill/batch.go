package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/quill/internal/app"
	"github.com/efebarandurmaz/quill/internal/metrics"
	"github.com/efebarandurmaz/quill/internal/prompt"
	"github.com/efebarandurmaz/quill/internal/temporal"
)

// readBindings reads a JSON array of objects or JSON lines from path, or
// from stdin when path is "-".
func readBindings(path string, stdin io.Reader) ([]prompt.Bindings, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var sets []prompt.Bindings
		if err := json.Unmarshal(data, &sets); err != nil {
			return nil, fmt.Errorf("parse bindings: %w", err)
		}
		return sets, nil
	}

	var sets []prompt.Bindings
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var b prompt.Bindings
		err := dec.Decode(&b)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse bindings line %d: %w", len(sets)+1, err)
		}
		sets = append(sets, b)
	}
	return sets, nil
}

// reportFlags control the run summary shared by batch and submit.
type reportFlags struct {
	summary bool
	path    string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.summary, "stats", false, "Print a run summary to stderr")
	cmd.Flags().StringVar(&f.path, "stats-file", "", "Write the run summary as JSON to this file")
}

func (f *reportFlags) emit(cmd *cobra.Command, m *metrics.BatchMetrics) error {
	m.Finish()
	if f.summary {
		m.PrintSummary(cmd.ErrOrStderr())
	}
	if f.path == "" {
		return nil
	}
	data, err := m.JSON()
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o644)
}

func batchCmd(root *rootFlags) *cobra.Command {
	var (
		input       string
		concurrency int
		jsonOut     bool
		report      reportFlags
	)
	cmd := &cobra.Command{
		Use:   "batch <template>",
		Short: "Invoke a template once per binding set, in parallel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := readBindings(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), root, func(a *app.App) error {
				c, err := a.Chain(args[0])
				if err != nil {
					return err
				}
				m := metrics.New(args[0], "local", concurrency)
				results, err := c.Batch(cmd.Context(), sets, concurrency)
				if err != nil {
					m.Fail(err)
					return errors.Join(err, report.emit(cmd, m))
				}
				m.CollectResults(results)
				if err := report.emit(cmd, m); err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), results)
				}
				for i, res := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s\n", i, res.Response.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "JSON array or JSON lines of bindings (- for stdin)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum calls in flight")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON results")
	report.register(cmd)
	return cmd
}

func submitCmd(root *rootFlags) *cobra.Command {
	var (
		input       string
		concurrency int
		workflowID  string
		wait        bool
		report      reportFlags
	)
	cmd := &cobra.Command{
		Use:   "submit <template>",
		Short: "Run a batch as a durable Temporal workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := readBindings(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), root, func(a *app.App) error {
				if _, err := a.Catalog.Get(args[0]); err != nil {
					return err
				}
				tc := a.Config.Temporal
				c, err := temporalclient.Dial(temporalclient.Options{
					HostPort:  tc.Host,
					Namespace: tc.Namespace,
				})
				if err != nil {
					return fmt.Errorf("temporal client: %w", err)
				}
				defer c.Close()

				if workflowID == "" {
					workflowID = "quill-batch-" + uuid.NewString()
				}
				run, err := temporal.SubmitBatch(cmd.Context(), c, tc.TaskQueue, workflowID, temporal.BatchInput{
					Template:    args[0],
					BindingSets: sets,
					Concurrency: concurrency,
				})
				if err != nil {
					return err
				}
				a.Logger.Info().
					Str("workflow_id", run.GetID()).
					Str("run_id", run.GetRunID()).
					Int("items", len(sets)).
					Msg("batch submitted")

				if !wait {
					fmt.Fprintln(cmd.OutOrStdout(), run.GetID())
					return nil
				}
				m := metrics.New(args[0], "workflow", concurrency)
				var out temporal.BatchOutput
				if err := run.Get(cmd.Context(), &out); err != nil {
					return fmt.Errorf("batch workflow: %w", err)
				}
				m.CollectWorkflow(out)
				if err := report.emit(cmd, m); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "JSON array or JSON lines of bindings (- for stdin)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Items in flight inside the workflow")
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow ID (default: generated)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the workflow and print its result")
	report.register(cmd)
	return cmd
}

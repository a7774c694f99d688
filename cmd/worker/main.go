package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/quill/internal/app"
	"github.com/efebarandurmaz/quill/internal/server"
	temporalmod "github.com/efebarandurmaz/quill/internal/temporal"
)

func main() {
	var (
		configPath string
		healthAddr string
	)
	cmd := &cobra.Command{
		Use:          "quill-worker",
		Short:        "Run the Temporal worker that executes batch workflows",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, healthAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&healthAddr, "health-addr", ":8081", "Health probe listen address (empty disables)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, healthAddr string) error {
	a, err := app.New(ctx, app.Options{ConfigPath: configPath})
	if err != nil {
		return err
	}
	logger := a.Logger

	provider, err := a.Provider("")
	if err != nil {
		return err
	}
	if provider == nil {
		logger.Warn().Msg("no LLM provider configured; completions will fail")
	}

	tc := a.Config.Temporal
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  tc.Host,
		Namespace: tc.Namespace,
	})
	if err != nil {
		return err
	}

	w, err := temporalmod.StartWorker(c, tc.TaskQueue, &temporalmod.Activities{
		Catalog:  a.Catalog,
		Provider: provider,
		Options:  a.Config.LLM.RequestOptions(),
		Logger:   logger,
	})
	if err != nil {
		c.Close()
		return err
	}
	logger.Info().Str("task_queue", tc.TaskQueue).Str("host", tc.Host).Msg("worker started")

	shutdown := server.NewShutdownHandler(30*time.Second, logger)
	shutdown.Register(server.WorkerHook(w.Stop))
	shutdown.Register(server.StorageHook("temporal-client", func() error {
		c.Close()
		return nil
	}))
	shutdown.Register(server.TracingHook(a.Close))

	if healthAddr != "" {
		health := server.NewHealth("")
		health.RegisterCheck("catalog", server.CatalogChecker(a.Catalog))
		health.RegisterCheck("llm", server.ProviderChecker(provider))
		health.RegisterCheck("temporal", server.DependencyChecker("temporal", func(ctx context.Context) error {
			_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
			return err
		}))
		mux := http.NewServeMux()
		health.Mount(mux)
		mux.Handle("GET /metrics", a.Metrics.Handler())
		probe := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		shutdown.Register(server.HTTPServerHook("health", probe.Shutdown))
		go func() {
			if err := probe.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("health server")
			}
		}()
		health.SetReady(true)
	}

	shutdown.Start()
	select {
	case <-ctx.Done():
		shutdown.Shutdown()
	case <-shutdown.Done():
	}
	<-shutdown.Done()
	logger.Info().Msg("worker stopped")
	return errors.Join(shutdown.Errors()...)
}

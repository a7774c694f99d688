package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/quill/internal/app"
	"github.com/efebarandurmaz/quill/internal/server"
)

func serveCmd(root *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the template catalog over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				provider, err := a.Provider("")
				if err != nil {
					return err
				}

				health := server.NewHealth(version)
				health.RegisterCheck("catalog", server.CatalogChecker(a.Catalog))
				health.RegisterCheck("llm", server.ProviderChecker(provider))
				if a.Config.History.Backend != "" && a.Config.History.Backend != "memory" {
					store, err := a.History(cmd.Context())
					if err != nil {
						return err
					}
					health.RegisterCheck("history", server.HistoryChecker(store))
				}

				srv := server.New(server.Options{
					Catalog:        a.Catalog,
					Provider:       provider,
					ProviderFor:    a.Provider,
					RequestOptions: a.Config.LLM.RequestOptions(),
					Logger:         a.Logger,
					Health:         health,
					Metrics:        a.Metrics,
				})
				httpSrv := srv.HTTPServer(addr)

				shutdown := server.NewShutdownHandler(30*time.Second, a.Logger)
				shutdown.Register(server.HTTPServerHook("api", httpSrv.Shutdown))
				shutdown.Register(server.ShutdownHook{
					Name:     "not-ready",
					Priority: 0,
					Fn: func(_ context.Context) error {
						health.SetReady(false)
						return nil
					},
				})
				shutdown.Start()

				errCh := make(chan error, 1)
				go func() { errCh <- httpSrv.ListenAndServe() }()
				health.SetReady(true)
				a.Logger.Info().Str("addr", addr).Int("templates", len(a.Catalog.List())).Msg("serving")

				select {
				case err := <-errCh:
					if !errors.Is(err, http.ErrServerClosed) {
						return err
					}
				case <-cmd.Context().Done():
					shutdown.Shutdown()
				case <-shutdown.Done():
				}
				<-shutdown.Done()
				return errors.Join(shutdown.Errors()...)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}

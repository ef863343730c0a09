package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/xmlhub/internal/bindings"
	"github.com/jacoelho/xmlhub/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(global *globalFlags, stderr io.Writer) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve document dispatch over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, baseDir, err := loadConfig(global)
			if err != nil {
				return failed(err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return failed(err)
			}
			logger := cfg.Log.NewLogger(stderr)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			h, err := server.New(cfg, bindings.NewLoader(baseDir), logger, reg)
			if err != nil {
				return failed(err)
			}
			srv := server.NewHTTPServer(cfg.Server, h.Router())

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				logger.Info("starting xmlhub server", "addr", cfg.Server.Addr, "bindings", len(cfg.Bindings))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil {
				return failed(err)
			}
			logger.Info("xmlhub server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config and XMLHUB_ADDR)")
	return cmd
}

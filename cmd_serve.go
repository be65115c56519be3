package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fmuoria/CV-Analyzer/internal/api"
	"github.com/fmuoria/CV-Analyzer/internal/logging"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API used by the web front-end.

Endpoints:
  POST /api/jd/analyze        Analyze a job description
  GET  /api/requirements      Current requirements and weight sum
  POST /api/cv/score          Score up to max_cv_files PDF CVs
  GET  /api/candidates        Ranked candidates
  GET  /api/report.xlsx       Excel report
  GET  /metrics               Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, files, closeBackend, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			server := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           api.NewServer(session, files, cfg.RequestTimeout()).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Infof("Starting CV Analyzer on port %s (backend: %s)", cfg.Port, session.BackendName())
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logging.Infof("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Port to listen on (overrides config and PORT)")
	return cmd
}

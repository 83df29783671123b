package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/api"
	"github.com/sells-group/retail-insights/internal/config"
	"github.com/sells-group/retail-insights/internal/monitoring"
	"github.com/sells-group/retail-insights/internal/store"
)

var servePort int

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prediction and forecast web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := buildServer(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           env.Server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// serverEnv bundles the server with the resources it must release.
type serverEnv struct {
	Server *api.Server
	Store  store.Store
}

// Close releases the history store.
func (e *serverEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// buildServer loads the artifacts, opens and migrates the history store and
// assembles the API server.
func buildServer(ctx context.Context, c *config.Config) (*serverEnv, error) {
	a, err := loadArtifacts(ctx, c)
	if err != nil {
		return nil, err
	}

	renderer, err := newRenderer(c, 0)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	srv, err := api.New(api.Deps{
		Data:          a.Data,
		Rules:         a.Rules,
		Sales:         a.Sales,
		Forecaster:    renderer,
		ForecastModel: a.ForecastModel,
		Store:         st,
		Config:        c.Server,
	})
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return &serverEnv{Server: srv, Store: st}, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

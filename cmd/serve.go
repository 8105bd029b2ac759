package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions, features, status and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.artifacts(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		addr := a.cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		if a.cfg.Log.Mode == "production" || a.cfg.Log.Mode == "prod" {
			gin.SetMode(gin.ReleaseMode)
		}

		srv := &http.Server{
			Addr: addr,
			Handler: api.NewRouter(api.RouterConfig{
				Handler: api.NewHandler(a.db, store),
				Metrics: a.metrics,
				Log:     a.log,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		fmt.Fprintf(os.Stderr, "[serve] Listening on %s\n", addr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		fmt.Fprintf(os.Stderr, "[serve] Shutting down\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

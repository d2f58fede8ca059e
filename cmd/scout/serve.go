package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/api"
)

const shutdownGrace = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, cfg, log, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					log.Error("shutdown flush failed", "error", err)
				}
			}()

			if cfg.AdminKey == "" {
				log.Warn("admin_key is empty; settings updates and imports are disabled")
			}

			c := cron.New(cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			))
			if _, err := c.AddFunc("@every 10m", func() { rt.Prune() }); err != nil {
				return err
			}
			if _, err := c.AddFunc("@hourly", func() {
				if err := rt.Flush(); err != nil {
					log.Warn("failed to flush zip counts", "error", err)
				}
			}); err != nil {
				return err
			}
			c.Start()
			defer func() { <-c.Stop().Done() }()

			gin.SetMode(gin.ReleaseMode)
			router := api.NewRouter(api.NewHandler(rt.Service, cfg.AdminKey, log))
			srv := &http.Server{
				Addr:              cfg.Server.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/yourname/focustracker/internal/api"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/scheduler"
)

func serveCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without periodic scans")
	return cmd
}

func runServe(ctx context.Context, withScheduler bool) error {
	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              d.cfg.HTTPAddr,
		Handler:           api.NewRouter(d.app(), auth.NewProvider(d.cfg, d.logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	if withScheduler {
		sched := scheduler.New(d.clock, d.logger.With("component", "scheduler"), d.periodicJobs()...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Infof("server listening on %s", d.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			d.logger.Errorf("server failed: %v", err)
			return err
		}
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.logger.Errorf("http shutdown: %v", err)
	}
	wg.Wait()
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/smart-finance-ingest/pkg/cron"
)

func serveCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled sweeps",
		Run: func(cmd *cobra.Command, args []string) {
			run(func(ctx context.Context, d *Dependencies) error {
				return serve(ctx, d, !noScheduler && d.Config.Pipeline.SchedulerEnabled)
			})
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the process and finalize sweeps on a schedule")
	return cmd
}

func serve(ctx context.Context, d *Dependencies, withScheduler bool) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(d.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		if err := d.DB.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	d.IngestHandler.RegisterRoutes(router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   d.Config.Server.AllowedOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(d.Config.Server.Host, strconv.Itoa(d.Config.Server.Port)),
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withScheduler {
		scheduler := cron.NewScheduler(d.IngestService, cron.Config{
			ProcessSchedule:  d.Config.Pipeline.ProcessSchedule,
			FinalizeSchedule: d.Config.Pipeline.FinalizeSchedule,
			Limit:            d.Config.Pipeline.SweepLimit,
		}, d.Logger)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		d.Logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	d.Logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"kline-service/internal/api"
	"kline-service/internal/metrics"
	"kline-service/internal/query"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest loop and the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":5000", "HTTP API listen address")
	serveCmd.Flags().String("metrics-addr", ":9090", "Metrics and health listen address")
	serveCmd.Flags().Duration("interval", time.Minute, "Fetch interval")
	viper.BindPFlag("HTTP_ADDR", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("METRICS_ADDR", serveCmd.Flags().Lookup("metrics-addr"))
	viper.BindPFlag("FETCH_INTERVAL", serveCmd.Flags().Lookup("interval"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var rdb *goredis.Client
	if a.publisher != nil {
		rdb = a.publisher.Client()
	}
	a.health.StartLivenessChecker(ctx, a.store, rdb, 10*time.Second, a.refreshGauges)

	metricsSrv := metrics.NewServer(a.cfg.MetricsAddr, a.health, a.reg)
	metricsSrv.Start()

	qs := query.NewService(a.store, nil, a.log)
	qs.OnQuery = a.observeQuery

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Config{
		Query:   qs,
		Health:  a.health,
		Metrics: a.prom,
		Logger:  a.log,
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := a.ingestor.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err = <-errCh:
		a.log.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Error("http shutdown", "error", serr)
	}
	a.ingestor.Stop()
	if serr := metricsSrv.Stop(shutdownCtx); serr != nil {
		a.log.Error("metrics shutdown", "error", serr)
	}
	a.log.Info("stopped")
	return err
}

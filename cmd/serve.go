package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/microtutor/internal/api"
	"github.com/abhisek/microtutor/internal/logging"
	"github.com/abhisek/microtutor/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := buildServices(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if n, err := st.Subjects().RequeueGenerating(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Info("requeued interrupted curriculum generation", zap.Int64("subjects", n))
	}

	sched := scheduler.New(logger.Named("scheduler"))
	if err := sched.Add(cfg.Scheduler.GenerationSpec,
		scheduler.NewGenerationJob(st, svc.generator, logger.Named("generation"))); err != nil {
		return err
	}
	if err := sched.Add(cfg.Scheduler.NudgeSpec,
		scheduler.NewNudgeJob(st, svc.notifier, cfg.Scheduler.NudgeIdle, cfg.Scheduler.NudgeBatch, logger.Named("nudge"))); err != nil {
		return err
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(api.Deps{
		Store:      st,
		Engine:     svc.engine,
		Tracker:    svc.tracker,
		Aggregator: svc.aggregator,
		Logger:     logger.Named("http"),
	}, api.Config{
		RateLimit:   cfg.HTTP.RateLimit,
		RateBurst:   cfg.HTTP.RateBurst,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		JWTSecret:   cfg.Auth.JWTSecret,
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty; API requests are not authenticated")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched.Start(ctx)
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}

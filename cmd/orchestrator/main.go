package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taxops/season-orchestrator/internal/bootstrap"
	"github.com/taxops/season-orchestrator/internal/config"
	"github.com/taxops/season-orchestrator/internal/observability/logging"
	"github.com/taxops/season-orchestrator/internal/orchestrator"
)

func main() {
	cfg := config.Load()
	logging.New("season-orchestrator", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(cfg, "orchestrator")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: app.Metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	scheduler := orchestrator.NewScheduler(orchestrator.SystemClock{}, app.WorkflowRepo.Orgs, app.Metrics)
	app.Orchestrator.RegisterTasks(scheduler)

	log.Printf("control loop started, tick %s", cfg.SweepTick())
	scheduler.Run(ctx, cfg.SweepTick())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics shutdown error: %v", err)
	}
}

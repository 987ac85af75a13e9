package bootstrap

import (
	"fmt"

	"github.com/taxops/season-orchestrator/internal/config"
	"github.com/taxops/season-orchestrator/internal/core/usecase"
	"github.com/taxops/season-orchestrator/internal/infrastructure/classify/httpapi"
	"github.com/taxops/season-orchestrator/internal/infrastructure/locking"
	natsnotify "github.com/taxops/season-orchestrator/internal/infrastructure/notify/nats"
	"github.com/taxops/season-orchestrator/internal/infrastructure/report/excel"
	"github.com/taxops/season-orchestrator/internal/infrastructure/repository/statestore"
	"github.com/taxops/season-orchestrator/internal/infrastructure/resilience"
	"github.com/taxops/season-orchestrator/internal/infrastructure/rules/yamlrules"
	redisstate "github.com/taxops/season-orchestrator/internal/infrastructure/state/redis"
	"github.com/taxops/season-orchestrator/internal/infrastructure/steps/httpexec"
	"github.com/taxops/season-orchestrator/internal/observability/metrics"
	"github.com/taxops/season-orchestrator/internal/orchestrator"
)

type App struct {
	Config  config.Config
	Metrics *metrics.Metrics

	Workflows  *usecase.WorkflowService
	Scheduler  *usecase.Scheduler
	Engine     *usecase.RuleEngine
	Bulk       *usecase.BulkProcessor
	Continuity *usecase.Continuity
	Dashboard  *usecase.DashboardService

	WorkflowRepo *statestore.WorkflowRepository
	Orchestrator *orchestrator.Orchestrator

	closeFn func()
}

func New(cfg config.Config, service string) (*App, error) {
	m := metrics.New(service)

	executor := resilience.NewExecutor(resilience.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff(),
		MaxBackoff:     cfg.RetryMaxBackoff(),
		Multiplier:     2,

		BreakerEnabled:      true,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.6,
	})

	store := redisstate.New(redisstate.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	locks := locking.NewKeyMutex()
	workflowRepo := statestore.NewWorkflowRepository(store, locks)
	incidentRepo := statestore.NewIncidentRepository(store, locks)
	jobRepo := statestore.NewJobRepository(store, locks)
	runbookRepo := statestore.NewRunbookRepository(store, locks)
	taskRepo := statestore.NewTaskRepository(store)
	alertRepo := statestore.NewAlertRepository(store)

	notifier, err := natsnotify.New(cfg.NATSURL, cfg.NotifySubject, natsnotify.Options{
		Executor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init notifier: %w", err)
	}

	classifier := httpapi.New(cfg.ClassifierURL, cfg.ClassifierTimeout(), executor)
	steps := httpexec.New(cfg.ExecutorURL, cfg.StepTimeout(), executor)

	rules, err := yamlrules.Load(cfg.RulesPath)
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}
	engine := usecase.NewRuleEngine(rules, m, cfg.ActionTimeout())

	scheduler := usecase.NewScheduler(workflowRepo)
	workflows := usecase.NewWorkflowService(workflowRepo, classifier, scheduler, engine, m, cfg.ClassifierTimeout())
	bulk := usecase.NewBulkProcessor(jobRepo, m)
	continuity := usecase.NewContinuity(incidentRepo, runbookRepo, notifier, steps, steps, m, cfg.EscalationRecipient, cfg.StepTimeout())
	dashboard := usecase.NewDashboardService(workflowRepo, incidentRepo, jobRepo.ListByOrg, alertRepo, scheduler)

	usecase.RegisterDefaultActions(engine, workflows, scheduler, taskRepo, notifier, continuity, nil)
	usecase.RegisterDefaultBulkOperations(bulk, workflows, scheduler, notifier, cfg.ActionTimeout())

	orch := orchestrator.New(
		orchestrator.SystemClock{},
		workflowRepo,
		incidentRepo,
		alertRepo,
		notifier,
		engine,
		scheduler,
		bulk,
		dashboard,
		excel.NewWriter(cfg.ReportDir),
		cfg.EscalationRecipient,
	)

	return &App{
		Config:  cfg,
		Metrics: m,

		Workflows:  workflows,
		Scheduler:  scheduler,
		Engine:     engine,
		Bulk:       bulk,
		Continuity: continuity,
		Dashboard:  dashboard,

		WorkflowRepo: workflowRepo,
		Orchestrator: orch,

		closeFn: func() {
			notifier.Close()
			_ = store.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

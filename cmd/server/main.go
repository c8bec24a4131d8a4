package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/nlebrun/docuflow/internal/application/dispatcher"
	"github.com/nlebrun/docuflow/internal/application/service"
	"github.com/nlebrun/docuflow/internal/config"
	"github.com/nlebrun/docuflow/internal/domain/event"
	httpserver "github.com/nlebrun/docuflow/internal/interfaces/http"
	"github.com/nlebrun/docuflow/internal/metrics"
	"github.com/nlebrun/docuflow/internal/repository"
	"github.com/nlebrun/docuflow/internal/roles"
	"github.com/nlebrun/docuflow/internal/worker"
	"github.com/nlebrun/docuflow/pkg/database"
	"github.com/nlebrun/docuflow/pkg/utils"
)

func main() {
	// Local overrides; absence is fine.
	_ = gotenv.Load()

	configPath := os.Getenv("DOCUFLOW_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting document validation workflow engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create data directory", zap.Error(err))
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	templateRepo := repository.NewTemplateRepository(db, logger)
	instanceRepo := repository.NewInstanceRepository(db, logger)
	executionRepo := repository.NewExecutionRepository(db, logger)
	decisionRepo := repository.NewDecisionRepository(db, logger)
	statsRepo := repository.NewStatsRepository(db, logger)
	txManager := repository.NewTxManager(db)

	kv := utils.NewKVLogger(logger)

	// Event dispatch: the audit log handler records every event type.
	events := dispatcher.NewDispatcher(dispatcher.WithLogger(kv))
	defer events.Close()

	auditHandler := dispatcher.NewAuditLogHandler(kv)
	for _, eventType := range []event.Type{
		event.TypeStageEntered,
		event.TypeStageApproved,
		event.TypeStageRejected,
		event.TypeWorkflowCompleted,
		event.TypeStageOverdue,
	} {
		events.SubscribeNamed(eventType, "audit-log", auditHandler)
	}

	directory := roles.NewStaticDirectory(cfg.Roles.Assignments, logger)
	roleService := service.NewRoleService(directory, kv)

	var engineMetrics service.Metrics = service.NopMetrics{}
	var metricsHandler http.Handler
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		engineMetrics = collector
		metricsHandler = collector.Handler()
	}

	workflowService := service.NewWorkflowService(
		templateRepo, instanceRepo, executionRepo, decisionRepo,
		roleService, txManager, events, engineMetrics, kv,
	)
	decisionService := service.NewDecisionService(
		templateRepo, instanceRepo, executionRepo, decisionRepo,
		roleService, workflowService.(service.StageAdvancer), txManager, events, engineMetrics, kv,
	)
	templateService := service.NewTemplateService(templateRepo, txManager, kv)
	statsService := service.NewStatsService(statsRepo, kv)

	// Advisory overdue scan
	if cfg.Scheduler.Enabled {
		var gauge worker.OverdueGauge
		if collector != nil {
			gauge = collector
		}
		scanner := worker.NewOverdueScanner(executionRepo, events, gauge, logger)
		if err := scanner.Start(cfg.Scheduler.OverdueSpec); err != nil {
			logger.Fatal("Failed to start overdue scanner", zap.Error(err))
		}
		defer scanner.Stop()
	}

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		AdminRole:    cfg.Roles.AdminRole,
	}, workflowService, decisionService, templateService, statsService, roleService, metricsHandler, kv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

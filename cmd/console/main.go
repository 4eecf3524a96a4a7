package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/attack"
	"github.com/xela07ax/uav-memtrust/internal/audit"
	"github.com/xela07ax/uav-memtrust/internal/console/handler"
	"github.com/xela07ax/uav-memtrust/internal/console/server"
	"github.com/xela07ax/uav-memtrust/internal/console/service"
	"github.com/xela07ax/uav-memtrust/internal/executor"
	"github.com/xela07ax/uav-memtrust/internal/infra"
	"github.com/xela07ax/uav-memtrust/internal/infra/auth"
	"github.com/xela07ax/uav-memtrust/internal/integrity"
	"github.com/xela07ax/uav-memtrust/internal/memory"
	"github.com/xela07ax/uav-memtrust/internal/metrics"
	"github.com/xela07ax/uav-memtrust/internal/repository/sqlite"
	"github.com/xela07ax/uav-memtrust/internal/supervisor"
	"github.com/xela07ax/uav-memtrust/internal/validator"
)

// cmd/console — интерактивный режим стенда: оператор управляет атаками и
// прогонами миссии через HTTP API вместо одноразового запуска.
func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 1. Хранилище и ключ подписи
	db, err := sqlite.Open(cfg.Memory.Path, logger)
	if err != nil {
		logger.Fatal("failed to open memory store", zap.Error(err))
	}
	defer db.Close()

	key, err := integrity.LoadKey(cfg.Integrity.KeyPath, cfg.Integrity.Passphrase)
	if err != nil {
		logger.Fatal("failed to load integrity key", zap.Error(err))
	}
	integrityMgr := integrity.NewManager(key)

	// 2. RSA ключи консоли (RS256)
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}

	// 3. Метрики + экспортер
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.MetricsPort), nil))
	}()

	// 4. Слои памяти (Dependency Injection)
	episodicRepo := sqlite.NewEpisodicRepo(db)
	semanticRepo := sqlite.NewSemanticRepo(db)
	auditRepo := sqlite.NewAuditRepo(db)

	mem := memory.New(episodicRepo, semanticRepo, integrityMgr, logger, m)

	options := validator.CategoryOptions(cfg.Mission, cfg.Attack.RuleCategory)
	ruleValidator := validator.New(mem, integrityMgr, options, logger, m)

	trail := audit.NewTrail(auditRepo, logger)
	trail.Start()
	defer trail.Stop()

	harness := attack.New(mem, logger, m)

	sitl := executor.NewSITLConnector(cfg.Executor.FailSector)
	safeExecutor := executor.NewReliabilityWrapper(sitl, cfg.Executor)

	sup := supervisor.New(mem, integrityMgr, ruleValidator, safeExecutor, trail, logger, m, supervisor.Options{
		Defense:      cfg.Defense.Enabled,
		Profile:      cfg.Mission,
		RuleCategory: cfg.Attack.RuleCategory,
	})

	// 5. Сервисы и обработчики консоли
	authService := service.NewAuthService(cfg.Auth, privateKey, auth.NewOperatorValidator(publicKey))
	missionService := service.NewMissionService(sup, auditRepo, logger)
	statsService := service.NewStatsService(mem, missionService, cfg.Defense.Enabled)

	srv := server.NewConsoleServer(
		cfg,
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewMemoryHandler(mem),
		handler.NewAttackHandler(harness),
		handler.NewMissionHandler(missionService),
		handler.NewDashboardHandler(statsService),
	)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("console stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}

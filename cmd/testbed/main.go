package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/attack"
	"github.com/xela07ax/uav-memtrust/internal/audit"
	"github.com/xela07ax/uav-memtrust/internal/executor"
	"github.com/xela07ax/uav-memtrust/internal/infra"
	"github.com/xela07ax/uav-memtrust/internal/integrity"
	"github.com/xela07ax/uav-memtrust/internal/memory"
	"github.com/xela07ax/uav-memtrust/internal/metrics"
	"github.com/xela07ax/uav-memtrust/internal/repository/sqlite"
	"github.com/xela07ax/uav-memtrust/internal/supervisor"
	"github.com/xela07ax/uav-memtrust/internal/validator"
)

// cmd/testbed — один прогон эксперимента: конфиг решает, какой яд влить
// перед миссией и включена ли защита; итоговый отчет уходит в stdout.
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

	// Контекст для управления жизненным циклом: SIGTERM отменяет миссию
	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. Хранилище. Битый файл уезжает в карантин, стор поднимается пустым
	db, err := sqlite.Open(cfg.Memory.Path, logger)
	if err != nil {
		logger.Fatal("failed to open memory store", zap.Error(err))
	}
	defer db.Close()

	// 2. Ключ подписи (ENV > файл > passphrase)
	key, err := integrity.LoadKey(cfg.Integrity.KeyPath, cfg.Integrity.Passphrase)
	if err != nil {
		logger.Fatal("failed to load integrity key", zap.Error(err))
	}
	integrityMgr := integrity.NewManager(key)

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

	// 5. Предзапусковая инъекция яда по конфигу эксперимента
	harness := attack.New(mem, logger, m)
	switch cfg.Attack.Mode {
	case infra.AttackEpisodic:
		override := map[string]any{
			"params": map[string]any{"sector": cfg.Attack.TargetSector},
		}
		if _, err := harness.InjectEpisodicPoison(appCtx, "ghost-uav", cfg.Attack.TargetTask, cfg.Attack.Count, override); err != nil {
			logger.Fatal("episodic injection failed", zap.Error(err))
		}
	case infra.AttackSemantic:
		if _, err := harness.InjectSemanticPoison(appCtx, cfg.Attack.RuleContent, cfg.Attack.RuleCategory); err != nil {
			logger.Fatal("semantic injection failed", zap.Error(err))
		}
	case infra.AttackNone:
		// чистый прогон
	default:
		logger.Fatal("unknown attack mode", zap.String("mode", string(cfg.Attack.Mode)))
	}

	// 6. Исполнитель: SITL-мок за оберткой надежности
	sitl := executor.NewSITLConnector(cfg.Executor.FailSector)
	safeExecutor := executor.NewReliabilityWrapper(sitl, cfg.Executor)

	// 7. Супервизор и прогон миссии
	sup := supervisor.New(mem, integrityMgr, ruleValidator, safeExecutor, trail, logger, m, supervisor.Options{
		Defense:      cfg.Defense.Enabled,
		Profile:      cfg.Mission,
		RuleCategory: cfg.Attack.RuleCategory,
	})

	report, err := sup.RunMission(appCtx, "")
	if err != nil {
		// Не Fatal: при аварийном прогоне decision trail нужнее всего,
		// штатный return дает defer'ам дожать буфер и закрыть базу.
		logger.Error("mission run failed", zap.Error(err))
		return
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("failed to encode report", zap.Error(err))
		return
	}
	fmt.Println(string(out))
}

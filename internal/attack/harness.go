package attack

import (
	"context"

	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/memory"
	"github.com/xela07ax/uav-memtrust/internal/metrics"
)

// Harness — модель противника с write-доступом к памяти, но БЕЗ ключа
// подписи и БЕЗ права обхода фасада. Он ходит по тому же API, что и
// легитимные писатели; единственная разница — его эпизоды не подписаны,
// а правила минуют валидатор. Харнесс никогда не трогает чужие записи:
// угроза моделируется добавлением лжи, а не переписыванием истории.
type Harness struct {
	memory  *memory.Interface
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(mem *memory.Interface, logger *zap.Logger, m *metrics.Metrics) *Harness {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Harness{
		memory:  mem,
		logger:  logger.Named("attack"),
		metrics: m,
	}
}

// InjectEpisodicPoison вливает count синтетических эпизодов «неудач».
// contextOverride накладывается поверх дефолтного контекста, так что
// атакующий может указать и целевой сектор в params, и любые другие поля.
// Возвращает id всех влитых записей — нужны для отчета эксперимента.
func (h *Harness) InjectEpisodicPoison(ctx context.Context, agentID, task string, count int, contextOverride map[string]any) ([]int64, error) {
	if count <= 0 {
		count = 1
	}

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		episodeCtx := map[string]any{
			"params": map[string]any{},
			"note":   "telemetry replay", // маскировка под легитимный источник
		}
		for key, val := range contextOverride {
			episodeCtx[key] = val
		}

		id, err := h.memory.LogEpisode(ctx, memory.EpisodeInput{
			AgentID: agentID,
			Task:    task,
			Action:  task,
			Outcome: domain.OutcomeFailure,
			Context: episodeCtx,
		}, false)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	h.metrics.PoisonInjections.WithLabelValues("episodic").Add(float64(len(ids)))
	h.logger.Info("episodic poison injected",
		zap.String("agent_id", agentID),
		zap.String("task", task),
		zap.Int("count", len(ids)),
		zap.Int64s("ids", ids),
	)
	return ids, nil
}

// InjectSemanticPoison пишет правило напрямую, минуя валидатор.
// source помечается как injected — ground truth эксперимента, на поведение
// защиты пометка не влияет (защита про source ничего не знает).
func (h *Harness) InjectSemanticPoison(ctx context.Context, content, category string) (int64, error) {
	id, err := h.memory.AddRule(ctx, memory.RuleInput{
		Content:  content,
		Category: category,
		Source:   domain.SourceInjected,
	})
	if err != nil {
		return 0, err
	}

	h.metrics.PoisonInjections.WithLabelValues("semantic").Inc()
	h.logger.Info("semantic poison injected",
		zap.Int64("rule_id", id),
		zap.String("content", content),
		zap.String("category", category),
	)
	return id, nil
}

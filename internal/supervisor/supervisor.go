package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/audit"
	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/executor"
	"github.com/xela07ax/uav-memtrust/internal/memory"
	"github.com/xela07ax/uav-memtrust/internal/metrics"
)

// Verifier — проверка подписи эпизода (IntegrityManager).
type Verifier interface {
	VerifyEpisode(e *domain.Episode) bool
}

// RuleChecker — ревалидация правила на чтении (SemanticValidator).
type RuleChecker interface {
	ValidateRuleReason(ctx context.Context, content, category string) (bool, string)
}

// DecisionRecorder — асинхронный decision trail.
type DecisionRecorder interface {
	Record(e audit.DecisionEvent)
	Pending() int
}

// Options — режим прогона. Для ядра это непрозрачные входы из конфига:
// супервизор не знает, включили защиту ради эксперимента или навсегда.
type Options struct {
	Defense      bool
	Profile      domain.MissionProfile
	RuleCategory string
}

// Report — итог прогона миссии: планы по этапам и агрегаты для сравнения
// прогонов attack/defense между собой.
type Report struct {
	MissionID string              `json:"mission_id"`
	Plans     []domain.StagePlan  `json:"plans"`
	Stats     domain.MissionStats `json:"stats"`
}

// Supervisor ведет миссию по этапам: на старте каждого этапа один раз
// снимает снапшот памяти, строит план, исполняет его параллельно по
// агентам и ждет всех на барьере. Записи, прилетевшие посреди этапа,
// на текущий план не влияют — только на следующий.
type Supervisor struct {
	memory   *memory.Interface
	verifier Verifier
	rules    RuleChecker
	exec     executor.ActionExecutor
	trail    DecisionRecorder
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func New(mem *memory.Interface, verifier Verifier, rules RuleChecker, exec executor.ActionExecutor, trail DecisionRecorder, logger *zap.Logger, m *metrics.Metrics, opts Options) *Supervisor {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Supervisor{
		memory:   mem,
		verifier: verifier,
		rules:    rules,
		exec:     exec,
		trail:    trail,
		logger:   logger.Named("supervisor"),
		metrics:  m,
		opts:     opts,
	}
}

// agentState — энергобюджет агента. Внутри этапа состояние трогает только
// горутина своего агента, между этапами все стоят на барьере.
type agentState struct {
	id  string
	soc float64
}

// RunMission исполняет весь профиль миссии. Пустой missionID — сгенерируем.
func (s *Supervisor) RunMission(ctx context.Context, missionID string) (*Report, error) {
	if missionID == "" {
		missionID = uuid.NewString()
	}
	report := &Report{MissionID: missionID}

	s.logger.Info("mission started",
		zap.String("mission_id", missionID),
		zap.Bool("defense", s.opts.Defense),
		zap.Int("stages", len(s.opts.Profile.Stages)),
		zap.Strings("agents", s.opts.Profile.Agents),
	)

	states := make([]*agentState, 0, len(s.opts.Profile.Agents))
	for _, id := range s.opts.Profile.Agents {
		states = append(states, &agentState{id: id, soc: 100.0})
	}

	s.runForAll(ctx, states, func(st *agentState) {
		s.performAction(ctx, st, executor.ActionTakeoff, nil, 5.0)
	})

	for idx, stage := range s.opts.Profile.Stages {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		started := time.Now()

		plan, err := s.planStage(ctx, missionID, idx, stage, &report.Stats)
		if err != nil {
			return report, fmt.Errorf("plan stage %d: %w", idx, err)
		}
		report.Plans = append(report.Plans, plan)
		report.Stats.StagesPlanned++
		report.Stats.SubTasksExecuted += len(plan.Keep)
		report.Stats.SubTasksExcluded += len(plan.Exclusions)

		s.executeStage(ctx, idx, plan, states)

		s.metrics.StageDuration.Observe(time.Since(started).Seconds())
		s.metrics.AuditBufferFill.Set(float64(s.trail.Pending()))
	}

	s.runForAll(ctx, states, func(st *agentState) {
		s.performAction(ctx, st, executor.ActionLand, nil, 2.0)
	})

	s.logger.Info("mission finished",
		zap.String("mission_id", missionID),
		zap.Int("executed", report.Stats.SubTasksExecuted),
		zap.Int("excluded", report.Stats.SubTasksExcluded),
	)
	return report, nil
}

// planStage снимает снапшот памяти, прогоняет его через защиту (если
// включена) и строит план этапа. Каждый вердикт уходит в decision trail.
func (s *Supervisor) planStage(ctx context.Context, missionID string, idx int, stage domain.MissionStage, stats *domain.MissionStats) (domain.StagePlan, error) {
	episodes, err := s.memory.RecallEpisodes(ctx, map[string]any{
		"task":    stage.Task,
		"outcome": domain.OutcomeFailure,
	}, 0)
	if err != nil {
		return domain.StagePlan{}, fmt.Errorf("recall failures: %w", err)
	}

	if s.opts.Defense {
		episodes = s.dropUnverified(missionID, idx, stage.Task, episodes, stats)
	}

	rules, err := s.memory.GetRules(ctx, s.opts.RuleCategory, true)
	if err != nil {
		return domain.StagePlan{}, fmt.Errorf("get rules: %w", err)
	}

	if s.opts.Defense {
		rules = s.revalidateRules(ctx, missionID, idx, stage.Task, rules, stats)
	}

	candidates := make([]domain.SubTask, 0, len(stage.Sectors))
	for _, sector := range stage.Sectors {
		candidates = append(candidates, domain.SubTask{Task: stage.Task, Sector: sector})
	}

	plan := ComputeStagePlan(idx, candidates, episodes, rules)

	for _, kept := range plan.Keep {
		s.trail.Record(audit.DecisionEvent{
			ID:        uuid.NewString(),
			MissionID: missionID,
			Stage:     idx,
			Task:      kept.Task,
			Sector:    kept.Sector,
			Verdict:   audit.VerdictKept,
		})
	}
	for _, excl := range plan.Exclusions {
		s.metrics.Exclusions.WithLabelValues(string(excl.Cause)).Inc()
		evidence := excl.EpisodeIDs
		if excl.Cause == domain.CauseSemanticRule {
			evidence = []int64{excl.RuleID}
		}
		s.trail.Record(audit.DecisionEvent{
			ID:        uuid.NewString(),
			MissionID: missionID,
			Stage:     idx,
			Task:      excl.SubTask.Task,
			Sector:    excl.SubTask.Sector,
			Verdict:   audit.VerdictExcluded,
			Reason:    excl.Reason,
			Evidence:  evidence,
		})
		s.logger.Warn("sub-task excluded",
			zap.String("mission_id", missionID),
			zap.Int("stage", idx),
			zap.String("sector", excl.SubTask.Sector),
			zap.String("cause", string(excl.Cause)),
			zap.String("reason", excl.Reason),
		)
	}

	return plan, nil
}

// dropUnverified оставляет только эпизоды с валидной подписью. Без защиты
// этот шаг пропускается целиком — в том и разница экспериментальных режимов.
func (s *Supervisor) dropUnverified(missionID string, stage int, task string, episodes []domain.Episode, stats *domain.MissionStats) []domain.Episode {
	kept := episodes[:0]
	for i := range episodes {
		e := &episodes[i]
		if s.verifier.VerifyEpisode(e) {
			kept = append(kept, *e)
			continue
		}
		reason := "bad_signature"
		if e.Signature() == "" {
			reason = "unsigned"
		}
		stats.DiscardedUnsigned++
		s.metrics.DiscardedEpisodes.WithLabelValues(reason).Inc()
		s.trail.Record(audit.DecisionEvent{
			ID:        uuid.NewString(),
			MissionID: missionID,
			Stage:     stage,
			Task:      task,
			Verdict:   audit.VerdictEvidenceDrop,
			Reason:    reason,
			Evidence:  []int64{e.ID},
		})
	}
	return kept
}

// revalidateRules — defense-in-depth: правило могло попасть в стор до
// включения валидации, поэтому на чтении проверяем еще раз.
func (s *Supervisor) revalidateRules(ctx context.Context, missionID string, stage int, task string, rules []domain.Rule, stats *domain.MissionStats) []domain.Rule {
	kept := rules[:0]
	for i := range rules {
		r := &rules[i]
		ok, reason := s.rules.ValidateRuleReason(ctx, r.Content, r.Category)
		verdict := audit.VerdictRuleAccepted
		if !ok {
			verdict = audit.VerdictRuleRejected
			stats.RejectedRules++
		}
		s.trail.Record(audit.DecisionEvent{
			ID:        uuid.NewString(),
			MissionID: missionID,
			Stage:     stage,
			Task:      task,
			Verdict:   verdict,
			Reason:    reason,
			Evidence:  []int64{r.RuleID},
		})
		if ok {
			kept = append(kept, *r)
		}
	}
	return kept
}

// executeStage раздает оставшиеся в плане подзадачи агентам по кругу и
// ждет всех на барьере. Исход каждого действия возвращается в память
// подписанной записью — легитимный опыт для следующих этапов.
func (s *Supervisor) executeStage(ctx context.Context, idx int, plan domain.StagePlan, states []*agentState) {
	if len(states) == 0 || len(plan.Keep) == 0 {
		return
	}

	assignments := make(map[int][]domain.SubTask)
	for i, task := range plan.Keep {
		slot := i % len(states)
		assignments[slot] = append(assignments[slot], task)
	}

	var wg sync.WaitGroup
	for slot, tasks := range assignments {
		wg.Add(1)
		go func(st *agentState, tasks []domain.SubTask) {
			defer wg.Done()
			for _, sub := range tasks {
				payload, _ := json.Marshal(executor.ScanPayload{Sector: sub.Sector})
				s.performScan(ctx, st, sub, payload)
			}
		}(states[slot], tasks)
	}
	wg.Wait()
}

// performScan исполняет одну подзадачу и логирует исход. Неудача — тоже
// результат: именно честные failure-эпизоды кормят планировщик уликами.
func (s *Supervisor) performScan(ctx context.Context, st *agentState, sub domain.SubTask, payload []byte) {
	res, err := s.exec.Call(ctx, sub.Task, payload)

	outcome := domain.OutcomeSuccess
	energy := 1.0
	episodeCtx := map[string]any{
		"params": map[string]any{"sector": sub.Sector},
	}
	if err != nil {
		outcome = domain.OutcomeFailure
		episodeCtx["error"] = err.Error()
	} else {
		var scan executor.ScanResult
		if jsonErr := json.Unmarshal(res, &scan); jsonErr == nil && scan.EnergyUsed > 0 {
			energy = scan.EnergyUsed
		}
	}

	st.soc -= energy
	episodeCtx["soc"] = st.soc
	episodeCtx["energy_used"] = energy

	if _, logErr := s.memory.LogEpisode(ctx, memory.EpisodeInput{
		AgentID: st.id,
		Task:    sub.Task,
		Action:  sub.Task,
		Outcome: outcome,
		Context: episodeCtx,
	}, true); logErr != nil {
		s.logger.Error("failed to log outcome", zap.Error(logErr), zap.String("agent_id", st.id))
	}
}

// performAction — служебные действия вне плана этапа (взлет/посадка).
func (s *Supervisor) performAction(ctx context.Context, st *agentState, action string, payload []byte, energy float64) {
	_, err := s.exec.Call(ctx, action, payload)
	outcome := domain.OutcomeSuccess
	episodeCtx := map[string]any{"params": map[string]any{}}
	if err != nil {
		outcome = domain.OutcomeFailure
		episodeCtx["error"] = err.Error()
	}
	st.soc -= energy
	episodeCtx["soc"] = st.soc
	episodeCtx["energy_used"] = energy

	if _, logErr := s.memory.LogEpisode(ctx, memory.EpisodeInput{
		AgentID: st.id,
		Task:    action,
		Action:  action,
		Outcome: outcome,
		Context: episodeCtx,
	}, true); logErr != nil {
		s.logger.Error("failed to log outcome", zap.Error(logErr), zap.String("agent_id", st.id))
	}
}

// runForAll — общий барьер: одно действие для каждого агента параллельно.
func (s *Supervisor) runForAll(ctx context.Context, states []*agentState, fn func(st *agentState)) {
	var wg sync.WaitGroup
	for _, st := range states {
		wg.Add(1)
		go func(st *agentState) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			default:
			}
			fn(st)
		}(st)
	}
	wg.Wait()
}

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/metrics"
)

// ErrUnknownFilterKey — fail fast на опечатку в фильтре recall.
// Тихий пустой результат хуже громкой ошибки: аналитик сделает ложный вывод
// «такого в памяти нет», хотя он просто написал agentid вместо agent_id.
var ErrUnknownFilterKey = errors.New("unknown filter key")

// Допустимые поля equality-фильтра. Контекстные ключи сюда не входят
// намеренно: корреляция по params — ответственность супервизора, не стора.
var filterableFields = map[string]struct{}{
	"id":       {},
	"agent_id": {},
	"task":     {},
	"action":   {},
	"outcome":  {},
}

// EpisodicStore / SemanticStore — то, что фасаду нужно от хранилища.
// Реализуются репозиториями SQLite.
type EpisodicStore interface {
	NextID(ctx context.Context) (int64, error)
	Insert(ctx context.Context, e *domain.Episode) error
	Select(ctx context.Context, fields map[string]any, limit int) ([]domain.Episode, error)
	Stats(ctx context.Context) (total, signed int64, err error)
}

type SemanticStore interface {
	NextID(ctx context.Context) (int64, error)
	Insert(ctx context.Context, r *domain.Rule) error
	SelectByCategory(ctx context.Context, category string, activeOnly bool) ([]domain.Rule, error)
	Deactivate(ctx context.Context, ruleID int64) error
	Stats(ctx context.Context) (total, active, injected int64, err error)
}

// Signer — кусочек IntegrityManager, нужный на пути записи.
type Signer interface {
	SignData(record map[string]any) string
}

// EpisodeInput — поля эпизода, задаваемые писателем; id и таймстемпы
// проставляет фасад.
type EpisodeInput struct {
	AgentID string
	Task    string
	Action  string
	Outcome string
	Context map[string]any
}

// RuleInput — поля нового правила. Confidence nil => 1.0, Active nil => true.
type RuleInput struct {
	Content    string
	Category   string
	Source     string
	Confidence *float64
	Active     *bool
}

// Interface — единственные ворота к долговременной памяти. Гарантирует
// уникальность id и durability, но НЕ решает, кому доверять: писательская
// способность (signed) передается флагом рядом с вызовом, а решения о
// доверии принимают читатели. Атакующий ходит через этот же фасад —
// это модель угроз, а не недосмотр.
type Interface struct {
	mu       sync.Mutex // сериализует allocate-id + append + flush
	episodes EpisodicStore
	rules    SemanticStore
	signer   Signer
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(episodes EpisodicStore, rules SemanticStore, signer Signer, logger *zap.Logger, m *metrics.Metrics) *Interface {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Interface{
		episodes: episodes,
		rules:    rules,
		signer:   signer,
		logger:   logger.Named("memory"),
		metrics:  m,
	}
}

// LogEpisode выделяет следующий id, проставляет обе временные метки,
// при signed — подписывает запись целиком, дописывает и флашит до возврата.
// Существующие записи не трогаются никогда.
func (m *Interface) LogEpisode(ctx context.Context, in EpisodeInput, signed bool) (int64, error) {
	if signed && m.signer == nil {
		return 0, errors.New("signed write requested but no signer configured")
	}

	episode := &domain.Episode{
		AgentID: in.AgentID,
		Task:    in.Task,
		Action:  in.Action,
		Outcome: in.Outcome,
		Context: deepCopyContext(in.Context),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.episodes.NextID(ctx)
	if err != nil {
		return 0, err
	}
	episode.ID = id
	episode.StampNow()

	if signed {
		// Подпись считается по полной записи (id и таймстемпы включительно),
		// поэтому любое последующее изменение поля ее инвалидирует.
		episode.Context[domain.SignatureKey] = m.signer.SignData(episode.Record())
	}

	if err := m.episodes.Insert(ctx, episode); err != nil {
		return 0, err
	}

	m.metrics.EpisodesWritten.WithLabelValues(strconv.FormatBool(signed)).Inc()
	m.logger.Debug("episode logged",
		zap.Int64("id", id),
		zap.String("agent_id", in.AgentID),
		zap.String("task", in.Task),
		zap.String("outcome", in.Outcome),
		zap.Bool("signed", signed),
	)
	return id, nil
}

// RecallEpisodes возвращает эпизоды, у которых совпали ВСЕ поля фильтра,
// самые свежие первыми, не более limit (limit <= 0 — без усечения).
// Пустой фильтр — вся последовательность. Неизвестный ключ — ошибка.
func (m *Interface) RecallEpisodes(ctx context.Context, filter map[string]any, limit int) ([]domain.Episode, error) {
	fields := make(map[string]any, len(filter))
	for key, val := range filter {
		if _, ok := filterableFields[key]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFilterKey, key)
		}
		fields[key] = val
	}
	return m.episodes.Select(ctx, fields, limit)
}

// AddRule — та же append/flush дисциплина, что и у эпизодов.
func (m *Interface) AddRule(ctx context.Context, in RuleInput) (int64, error) {
	confidence := 1.0
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	rule := &domain.Rule{
		Content:    in.Content,
		Category:   in.Category,
		Confidence: domain.ClampConfidence(confidence),
		Source:     in.Source,
		Active:     active,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.rules.NextID(ctx)
	if err != nil {
		return 0, err
	}
	rule.RuleID = id

	if err := m.rules.Insert(ctx, rule); err != nil {
		return 0, err
	}

	m.metrics.RulesWritten.WithLabelValues(rule.Source).Inc()
	m.logger.Debug("rule added",
		zap.Int64("rule_id", id),
		zap.String("category", in.Category),
		zap.String("source", in.Source),
	)
	return id, nil
}

// GetRules отдает правила категории; по умолчанию только активные.
func (m *Interface) GetRules(ctx context.Context, category string, activeOnly bool) ([]domain.Rule, error) {
	return m.rules.SelectByCategory(ctx, category, activeOnly)
}

// DeactivateRule — единственное разрешенное «удаление»: правило гаснет,
// но строка остается для аудита.
func (m *Interface) DeactivateRule(ctx context.Context, ruleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules.Deactivate(ctx, ruleID)
}

// Stats собирает срез памяти для дашборда.
func (m *Interface) Stats(ctx context.Context) (domain.MemoryStats, error) {
	var out domain.MemoryStats
	total, signed, err := m.episodes.Stats(ctx)
	if err != nil {
		return out, err
	}
	rTotal, rActive, rInjected, err := m.rules.Stats(ctx)
	if err != nil {
		return out, err
	}
	out.Episodes = total
	out.SignedEpisodes = signed
	out.Rules = rTotal
	out.ActiveRules = rActive
	out.InjectedRules = rInjected
	return out, nil
}

// deepCopyContext изолирует запись от последующих мутаций caller'а и заодно
// нормализует типы значений к json-виду — ровно к тому, в котором контекст
// вернется из стора. Подпись до и после round-trip обязана совпадать.
func deepCopyContext(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return map[string]any{}
	}
	var dst map[string]any
	if err := json.Unmarshal(raw, &dst); err != nil {
		return map[string]any{}
	}
	return dst
}

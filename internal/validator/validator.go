package validator

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/domain"
	"github.com/xela07ax/uav-memtrust/internal/metrics"
)

// Причины отказа. Попадают в лог, метрики и decision trail, поэтому
// значения — стабильные машинные идентификаторы, не свободный текст.
const (
	ReasonOverBroad  = "over_broad_denial"
	ReasonNoEvidence = "no_verified_evidence"
)

// Грамматика запрета: "avoid <resource>", регистр не важен.
// Все, что под нее не попадает, запретительной силы не имеет — такие
// правила пропускаем без проверок.
var avoidPattern = regexp.MustCompile(`(?i)^\s*avoid\s+(.+?)\s*$`)

// Recaller — читательская часть фасада памяти, нужная для поиска улик.
type Recaller interface {
	RecallEpisodes(ctx context.Context, filter map[string]any, limit int) ([]domain.Episode, error)
}

// EpisodeVerifier проверяет подпись эпизода. Улика без валидной подписи —
// не улика: именно на этом держится защита от отравленных правил.
type EpisodeVerifier interface {
	VerifyEpisode(e *domain.Episode) bool
}

// Validator — политика приема семантических правил. Правило, запрещающее
// ресурс, обязано опираться на независимо подтвержденный негативный опыт
// и не имеет права выжигать категорию целиком.
type Validator struct {
	memory   Recaller
	verifier EpisodeVerifier
	options  map[string][]string // категория -> жизнеспособные ресурсы из конфига миссии
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(memory Recaller, verifier EpisodeVerifier, options map[string][]string, logger *zap.Logger, m *metrics.Metrics) *Validator {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Validator{
		memory:   memory,
		verifier: verifier,
		options:  options,
		logger:   logger.Named("validator"),
		metrics:  m,
	}
}

// CategoryOptions строит карту жизнеспособных опций из профиля миссии:
// все сектора всех этапов под одной категорией ограничений.
func CategoryOptions(profile domain.MissionProfile, category string) map[string][]string {
	seen := make(map[string]struct{})
	var sectors []string
	for _, stage := range profile.Stages {
		for _, sector := range stage.Sectors {
			key := strings.ToLower(sector)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			sectors = append(sectors, sector)
		}
	}
	return map[string][]string{category: sectors}
}

// ValidateRule — короткая форма для вызывающих, которым не нужна причина.
func (v *Validator) ValidateRule(ctx context.Context, content, category string) bool {
	ok, _ := v.ValidateRuleReason(ctx, content, category)
	return ok
}

// ValidateRuleReason возвращает вердикт и машинную причину отказа
// (пустая строка при приеме). Сначала дешевая проверка на выжигание
// категории, затем поиск подписанных failure-улик в эпизодической памяти.
func (v *Validator) ValidateRuleReason(ctx context.Context, content, category string) (bool, string) {
	match := avoidPattern.FindStringSubmatch(content)
	if match == nil {
		return true, ""
	}
	resource := match[1]

	if v.isOverBroad(resource, category) {
		v.reject(content, category, ReasonOverBroad)
		return false, ReasonOverBroad
	}

	ok, err := v.hasVerifiedEvidence(ctx, resource)
	if err != nil {
		// Память недоступна — улик нет, fail closed.
		v.logger.Error("evidence lookup failed", zap.Error(err), zap.String("resource", resource))
		v.reject(content, category, ReasonNoEvidence)
		return false, ReasonNoEvidence
	}
	if !ok {
		v.reject(content, category, ReasonNoEvidence)
		return false, ReasonNoEvidence
	}
	return true, ""
}

// isOverBroad — правда, если правило гасит 100% опций категории:
// либо явный тотальный запрет (all/everything), либо в категории ровно
// столько опций, сколько накрывает запрещаемый ресурс.
func (v *Validator) isOverBroad(resource, category string) bool {
	lowered := strings.ToLower(resource)
	if lowered == "all" || lowered == "everything" {
		return true
	}
	options := v.options[category]
	if len(options) == 0 {
		return false
	}
	denied := 0
	for _, opt := range options {
		if strings.EqualFold(opt, resource) {
			denied++
		}
	}
	return denied == len(options)
}

// hasVerifiedEvidence ищет хотя бы один failure-эпизод, упоминающий ресурс
// в context.params и несущий валидную подпись. Неподписанные (в том числе
// влитые харнессом) эпизоды уликами не считаются.
func (v *Validator) hasVerifiedEvidence(ctx context.Context, resource string) (bool, error) {
	episodes, err := v.memory.RecallEpisodes(ctx, map[string]any{"outcome": domain.OutcomeFailure}, 0)
	if err != nil {
		return false, err
	}
	for i := range episodes {
		e := &episodes[i]
		if !paramsMention(e, resource) {
			continue
		}
		if v.verifier.VerifyEpisode(e) {
			return true, nil
		}
	}
	return false, nil
}

func (v *Validator) reject(content, category, reason string) {
	v.metrics.RejectedRules.WithLabelValues(reason).Inc()
	v.logger.Warn("rule rejected",
		zap.String("content", content),
		zap.String("category", category),
		zap.String("reason", reason),
	)
}

// paramsMention — упоминает ли context.params эпизода данный ресурс
// (любое строковое значение, без учета регистра).
func paramsMention(e *domain.Episode, resource string) bool {
	params, ok := e.Context["params"].(map[string]any)
	if !ok {
		return false
	}
	for _, val := range params {
		if s, ok := val.(string); ok && strings.EqualFold(s, resource) {
			return true
		}
	}
	return false
}

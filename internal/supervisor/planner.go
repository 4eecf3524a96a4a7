package supervisor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

// Та же грамматика запрета, что у валидатора: "avoid <resource>".
var avoidPattern = regexp.MustCompile(`(?i)^\s*avoid\s+(.+?)\s*$`)

// ComputeStagePlan — чистая функция планирования этапа: кандидаты против
// снапшота памяти, никакого скрытого состояния. Эпизоды и правила сюда
// приходят УЖЕ отфильтрованными защитой (или нет — если защита выключена);
// планировщик лишь коррелирует улики с секторами и собирает отчет.
// Улики весомее правил: при наличии и того и другого причиной исключения
// считается эпизодический опыт.
func ComputeStagePlan(stage int, candidates []domain.SubTask, episodes []domain.Episode, rules []domain.Rule) domain.StagePlan {
	plan := domain.StagePlan{Stage: stage}

	for _, cand := range candidates {
		evidence := failureEvidence(cand, episodes)
		if len(evidence) > 0 {
			plan.Exclusions = append(plan.Exclusions, domain.Exclusion{
				SubTask:    cand,
				Cause:      domain.CauseEpisodicEvidence,
				EpisodeIDs: evidence,
				Reason:     fmt.Sprintf("%d failure episode(s) for sector %s", len(evidence), cand.Sector),
			})
			continue
		}

		if rule := forbiddingRule(cand.Sector, rules); rule != nil {
			plan.Exclusions = append(plan.Exclusions, domain.Exclusion{
				SubTask: cand,
				Cause:   domain.CauseSemanticRule,
				RuleID:  rule.RuleID,
				Reason:  fmt.Sprintf("rule %d: %s", rule.RuleID, rule.Content),
			})
			continue
		}

		plan.Keep = append(plan.Keep, cand)
	}

	return plan
}

// failureEvidence — id failure-эпизодов той же задачи, упоминающих сектор
// кандидата в context.params.
func failureEvidence(cand domain.SubTask, episodes []domain.Episode) []int64 {
	var ids []int64
	for i := range episodes {
		e := &episodes[i]
		if e.Task != cand.Task || e.Outcome != domain.OutcomeFailure {
			continue
		}
		if paramsMention(e, cand.Sector) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// forbiddingRule — первое активное правило, запрещающее сектор
// (точное совпадение ресурса или тотальный avoid all/everything).
func forbiddingRule(sector string, rules []domain.Rule) *domain.Rule {
	for i := range rules {
		r := &rules[i]
		if !r.Active {
			continue
		}
		match := avoidPattern.FindStringSubmatch(r.Content)
		if match == nil {
			continue
		}
		resource := strings.ToLower(match[1])
		if resource == "all" || resource == "everything" || strings.EqualFold(match[1], sector) {
			return r
		}
	}
	return nil
}

func paramsMention(e *domain.Episode, sector string) bool {
	params, ok := e.Context["params"].(map[string]any)
	if !ok {
		return false
	}
	for _, val := range params {
		if s, ok := val.(string); ok && strings.EqualFold(s, sector) {
			return true
		}
	}
	return false
}

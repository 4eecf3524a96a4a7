package audit

import "time"

// Вердикты решений супервизора и валидатора.
const (
	VerdictKept          = "KEPT"           // подзадача осталась в плане
	VerdictExcluded      = "EXCLUDED"       // выброшена из плана этапа
	VerdictRuleRejected  = "RULE_REJECTED"  // правило не прошло валидатор
	VerdictRuleAccepted  = "RULE_ACCEPTED"  // правило принято валидатором
	VerdictEvidenceDrop  = "EVIDENCE_DROP"  // эпизод отброшен защитой (подпись)
)

// DecisionEvent — одна запись decision trail: что супервизор (или валидатор)
// решил про конкретную подзадачу/правило и на каких уликах.
// Эксперимент attack/defense обязан оставлять проверяемый след решений.
type DecisionEvent struct {
	ID        string    `json:"id"`         // UUID события
	MissionID string    `json:"mission_id"` // Сквозной ID прогона
	Stage     int       `json:"stage"`
	Task      string    `json:"task"`
	Sector    string    `json:"sector"`
	Verdict   string    `json:"verdict"`
	Reason    string    `json:"reason"`
	Evidence  []int64   `json:"evidence,omitempty"` // id эпизодов или правила-улики
	Timestamp time.Time `json:"timestamp"`
}

package domain

// Rule — декларативное правило семантической памяти: стоячая директива,
// ограничивающая будущее планирование ("Avoid Sector C").
// Физического удаления нет: деактивация (active=false) — единственная
// разрешенная форма "delete", строка остается для аудита.
type Rule struct {
	RuleID     int64   `json:"rule_id"`
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"` // в диапазоне [0,1], клампится при записи
	Source     string  `json:"source"`     // system | manual | injected (атакующий волен писать что угодно)
	Active     bool    `json:"active"`
}

// ClampConfidence нормализует уверенность в допустимый диапазон.
// Защита от мусора в хранилище важнее "честной" ошибки: правило с
// confidence=7 все равно уже записано атакующим.
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

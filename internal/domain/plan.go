package domain

// SubTask — кандидатная подзадача этапа миссии: задача, привязанная к
// ресурсу (сектору). Супервизор решает, оставить ее в плане или выкинуть.
type SubTask struct {
	Task   string `json:"task"`   // например scan_sector
	Sector string `json:"sector"` // ресурс, за который идет борьба attack/defense
}

// ExclusionCause — чем именно обоснован выброс подзадачи из плана.
type ExclusionCause string

const (
	CauseEpisodicEvidence ExclusionCause = "episodic_evidence" // подтвержденные failure-эпизоды
	CauseSemanticRule     ExclusionCause = "semantic_rule"     // действующее правило avoid
)

// Exclusion — отчет о выброшенной подзадаче. Обязателен для audit trail:
// эксперимент должен показывать не только ЧТО выкинули, но и ПОЧЕМУ.
type Exclusion struct {
	SubTask    SubTask        `json:"sub_task"`
	Cause      ExclusionCause `json:"cause"`
	EpisodeIDs []int64        `json:"episode_ids,omitempty"` // улики из эпизодической памяти
	RuleID     int64          `json:"rule_id,omitempty"`     // либо сработавшее правило
	Reason     string         `json:"reason"`
}

// StagePlan — результат планирования одного этапа: что выполняем и что
// исключили. Считается один раз на старте этапа от снапшота памяти;
// записи, прилетевшие посреди этапа, план не трогают.
type StagePlan struct {
	Stage      int         `json:"stage"`
	Keep       []SubTask   `json:"keep"`
	Exclusions []Exclusion `json:"exclusions"`
}

// MissionStage — конфигурационное описание этапа: какие сектора сканируем.
type MissionStage struct {
	Task    string   `json:"task" mapstructure:"task"`
	Sectors []string `json:"sectors" mapstructure:"sectors"`
}

// MissionProfile — вся миссия как ее видит супервизор. Ядро трактует профиль
// как непрозрачный вход из конфига.
type MissionProfile struct {
	Agents []string       `json:"agents" mapstructure:"agents"`
	Stages []MissionStage `json:"stages" mapstructure:"stages"`
}

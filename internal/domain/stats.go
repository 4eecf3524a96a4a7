package domain

// MemoryStats — срез состояния памяти для дашборда оператора.
type MemoryStats struct {
	Episodes       int64 `json:"episodes"`
	SignedEpisodes int64 `json:"signed_episodes"`
	Rules          int64 `json:"rules"`
	ActiveRules    int64 `json:"active_rules"`
	InjectedRules  int64 `json:"injected_rules"` // source=injected, т.е. заведомый яд
}

// MissionStats — агрегаты по решениям супервизора за прогон.
type MissionStats struct {
	StagesPlanned     int `json:"stages_planned"`
	SubTasksExecuted  int `json:"sub_tasks_executed"`
	SubTasksExcluded  int `json:"sub_tasks_excluded"`
	DiscardedUnsigned int `json:"discarded_unsigned"` // эпизоды, отброшенные защитой
	RejectedRules     int `json:"rejected_rules"`     // правила, не прошедшие валидатор
}

// DashboardStats — единый ответ /api/v1/dashboard/stats.
type DashboardStats struct {
	DefenseEnabled bool         `json:"defense_enabled"`
	Memory         MemoryStats  `json:"memory"`
	Mission        MissionStats `json:"mission"`
}

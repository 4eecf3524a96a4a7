package domain

import "time"

// Outcome — открытый строковый enum результата действия агента.
// Канонические значения ниже; атакующий может записать любое другое.
type Outcome = string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// SignatureKey — ключ внутри context, под которым лежит HMAC-подпись записи.
// Отсутствует у неподписанных (в том числе отравленных) эпизодов.
const SignatureKey = "_signature"

// Источники записей (provenance). Легитимные писатели выставляют system/manual,
// AttackHarness помечает свой путь записи явно.
const (
	SourceSystem   = "system"
	SourceManual   = "manual"
	SourceInjected = "injected"
)

// Episode — одна запись эпизодической памяти: временная метка, кто, что делал
// и чем закончилось. После записи неизменяема (append-only, без delete/update);
// исправления моделируются новыми записями, чтобы атакующий не мог
// задним числом переписать историю.
type Episode struct {
	ID        int64          `json:"id"`
	Timestamp float64        `json:"timestamp"` // epoch seconds (машинное время)
	ISOTime   string         `json:"iso_time"`  // то же самое для человека, RFC3339 UTC
	AgentID   string         `json:"agent_id"`
	Task      string         `json:"task"`
	Action    string         `json:"action"`
	Outcome   Outcome        `json:"outcome"`
	Context   map[string]any `json:"context"` // произвольные поля: params, soc, energy_used, _signature
}

// Signature достает подпись из context. Пустая строка — записи никто не подписывал.
func (e *Episode) Signature() string {
	if e == nil || e.Context == nil {
		return ""
	}
	sig, _ := e.Context[SignatureKey].(string)
	return sig
}

// Record собирает каноническое представление записи для подписи/проверки:
// все поля эпизода как плоская map. Именно эта форма проходит через
// IntegrityManager, поэтому ее состав менять нельзя без ресайна всех данных.
func (e *Episode) Record() map[string]any {
	return map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp,
		"iso_time":  e.ISOTime,
		"agent_id":  e.AgentID,
		"task":      e.Task,
		"action":    e.Action,
		"outcome":   e.Outcome,
		"context":   e.Context,
	}
}

// StampNow проставляет обе временные метки (redundant dual representation по схеме).
func (e *Episode) StampNow() {
	now := time.Now().UTC()
	e.Timestamp = float64(now.UnixNano()) / 1e9
	e.ISOTime = now.Format(time.RFC3339)
}

package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/uav-memtrust/internal/audit"
)

// AuditRepo — sink для decision trail: пакетная вставка событий одним запросом.
type AuditRepo struct {
	d *DB
}

func NewAuditRepo(d *DB) *AuditRepo {
	return &AuditRepo{d: d}
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.DecisionEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице decision_events
	const numFields = 9
	var sb strings.Builder
	vals := make([]any, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")

		evidence, _ := json.Marshal(e.Evidence)
		vals = append(vals,
			e.ID, e.MissionID, e.Stage, e.Task, e.Sector,
			e.Verdict, e.Reason, string(evidence), e.Timestamp.UTC().Format(time.RFC3339Nano),
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO decision_events (id, mission_id, stage, task, sector, verdict, reason, evidence, created_at) VALUES %s",
		sb.String(),
	)

	_, err := r.d.db.ExecContext(ctx, query, vals...)
	return err
}

// SelectByMission возвращает след решений прогона в порядке записи
// (для /v1/mission/{id}/events и разбора инцидентов).
func (r *AuditRepo) SelectByMission(ctx context.Context, missionID string, from int) ([]audit.DecisionEvent, error) {
	rows, err := r.d.db.QueryContext(ctx, `
		SELECT id, mission_id, stage, task, sector, verdict, reason, evidence, created_at
		  FROM decision_events
		 WHERE mission_id = ?
		 ORDER BY created_at, rowid
		 LIMIT -1 OFFSET ?`, missionID, from)
	if err != nil {
		return nil, fmt.Errorf("select decision events: %w", err)
	}
	defer rows.Close()

	var out []audit.DecisionEvent
	for rows.Next() {
		var (
			e        audit.DecisionEvent
			evidence string
			created  string
		)
		if err := rows.Scan(&e.ID, &e.MissionID, &e.Stage, &e.Task, &e.Sector, &e.Verdict, &e.Reason, &evidence, &created); err != nil {
			return nil, fmt.Errorf("scan decision event: %w", err)
		}
		_ = json.Unmarshal([]byte(evidence), &e.Evidence)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

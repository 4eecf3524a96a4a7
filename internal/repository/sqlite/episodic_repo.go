package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

// EpisodicRepo — append-only лог эпизодов. Никаких UPDATE/DELETE:
// единственная операция записи — INSERT с явным id, выделенным фасадом
// под его write-lock'ом.
type EpisodicRepo struct {
	d *DB
}

func NewEpisodicRepo(d *DB) *EpisodicRepo {
	return &EpisodicRepo{d: d}
}

// NextID возвращает следующий свободный id. Вызывается фасадом строго под
// локом записи, поэтому "max+1" здесь не гонится сам с собой.
func (r *EpisodicRepo) NextID(ctx context.Context) (int64, error) {
	var next int64
	err := r.d.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM episodes`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate episode id: %w", err)
	}
	return next, nil
}

// Insert дописывает эпизод. COMMIT неявный (autocommit) и с synchronous=FULL
// долетает до диска до возврата — требование durability между фазами теста.
func (r *EpisodicRepo) Insert(ctx context.Context, e *domain.Episode) error {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("marshal episode context: %w", err)
	}

	_, err = r.d.db.ExecContext(ctx,
		`INSERT INTO episodes (id, timestamp, iso_time, agent_id, task, action, outcome, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, e.ISOTime, e.AgentID, e.Task, e.Action, e.Outcome, string(ctxJSON),
	)
	if err != nil {
		return fmt.Errorf("append episode: %w", err)
	}
	return nil
}

// Select выбирает эпизоды по equality-фильтру, самые свежие первыми.
// fields уже провалидированы фасадом (whitelist там, не здесь).
// limit <= 0 — без усечения.
func (r *EpisodicRepo) Select(ctx context.Context, fields map[string]any, limit int) ([]domain.Episode, error) {
	query := `SELECT id, timestamp, iso_time, agent_id, task, action, outcome, context FROM episodes`

	var (
		clauses []string
		args    []any
	)
	for col, val := range fields {
		clauses = append(clauses, col+" = ?")
		args = append(args, val)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recall episodes: %w", err)
	}
	defer rows.Close()

	var out []domain.Episode
	for rows.Next() {
		var (
			e       domain.Episode
			ctxJSON string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ISOTime, &e.AgentID, &e.Task, &e.Action, &e.Outcome, &ctxJSON); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(ctxJSON), &e.Context); err != nil {
			// Битый context отдельной строки — не повод ронять выборку:
			// запись остается в результате с пустым контекстом и warning'ом.
			r.d.logger.Warn("episode context unreadable, returning empty context",
				zap.Int64("id", e.ID), zap.Error(err))
			e.Context = map[string]any{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats — счетчики для дашборда: всего эпизодов и сколько из них подписано.
func (r *EpisodicRepo) Stats(ctx context.Context) (total, signed int64, err error) {
	err = r.d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&total)
	if err != nil {
		return 0, 0, fmt.Errorf("count episodes: %w", err)
	}
	// json_extract отдает NULL, если ключа нет — подписанные считаются по его наличию
	err = r.d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM episodes WHERE json_extract(context, '$._signature') IS NOT NULL`,
	).Scan(&signed)
	if err != nil {
		return 0, 0, fmt.Errorf("count signed episodes: %w", err)
	}
	return total, signed, nil
}

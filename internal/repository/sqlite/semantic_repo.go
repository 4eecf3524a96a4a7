package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xela07ax/uav-memtrust/internal/domain"
)

// ErrRuleNotFound возвращается при деактивации несуществующего правила.
var ErrRuleNotFound = errors.New("rule not found")

// SemanticRepo — append-mostly коллекция правил. Единственная мутация —
// сброс флага active (soft-delete): строки живут вечно ради аудита.
type SemanticRepo struct {
	d *DB
}

func NewSemanticRepo(d *DB) *SemanticRepo {
	return &SemanticRepo{d: d}
}

// NextID — следующий rule_id; вызывается под локом записи фасада.
func (r *SemanticRepo) NextID(ctx context.Context) (int64, error) {
	var next int64
	err := r.d.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rule_id), 0) + 1 FROM rules`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate rule id: %w", err)
	}
	return next, nil
}

func (r *SemanticRepo) Insert(ctx context.Context, rule *domain.Rule) error {
	_, err := r.d.db.ExecContext(ctx,
		`INSERT INTO rules (rule_id, content, category, confidence, source, active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rule.RuleID, rule.Content, rule.Category, rule.Confidence, rule.Source, boolToInt(rule.Active),
	)
	if err != nil {
		return fmt.Errorf("append rule: %w", err)
	}
	return nil
}

// SelectByCategory возвращает правила категории, по умолчанию только активные.
func (r *SemanticRepo) SelectByCategory(ctx context.Context, category string, activeOnly bool) ([]domain.Rule, error) {
	query := `SELECT rule_id, content, category, confidence, source, active FROM rules WHERE category = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY rule_id`

	rows, err := r.d.db.QueryContext(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("get rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		var (
			rule   domain.Rule
			active int
		)
		if err := rows.Scan(&rule.RuleID, &rule.Content, &rule.Category, &rule.Confidence, &rule.Source, &active); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Active = active != 0
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Deactivate — единственная разрешенная форма "удаления" правила.
func (r *SemanticRepo) Deactivate(ctx context.Context, ruleID int64) error {
	res, err := r.d.db.ExecContext(ctx, `UPDATE rules SET active = 0 WHERE rule_id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deactivate rule %d: %w", ruleID, ErrRuleNotFound)
	}
	return nil
}

// Stats — счетчики для дашборда.
func (r *SemanticRepo) Stats(ctx context.Context) (total, active, injected int64, err error) {
	row := r.d.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(active), 0),
		       COALESCE(SUM(CASE WHEN source = ? THEN 1 ELSE 0 END), 0)
		  FROM rules`, domain.SourceInjected)
	if err := row.Scan(&total, &active, &injected); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, 0, fmt.Errorf("count rules: %w", err)
	}
	return total, active, injected, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresBackend stores one row per rule in triage_rules, ordered by
// position. Replacement happens inside a single transaction.
type PostgresBackend struct {
	pool pgxQuerier
}

// NewPostgresBackend initializes a backend backed by pgxpool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	if pool == nil {
		panic("rules: pgx pool required")
	}
	return &PostgresBackend{pool: pool}
}

func newPostgresBackendWithQuerier(q pgxQuerier) *PostgresBackend {
	if q == nil {
		panic("rules: querier required")
	}
	return &PostgresBackend{pool: q}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Read(ctx context.Context) (RuleSet, error) {
	query := `
		SELECT conditions, assignee
		FROM triage_rules
		ORDER BY position
	`
	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rules: query rules: %w", err)
	}
	defer rows.Close()

	rs := RuleSet{}
	for rows.Next() {
		var raw []byte
		var rule Rule
		if err := rows.Scan(&raw, &rule.Assignee); err != nil {
			return nil, fmt.Errorf("rules: scan rule: %w", err)
		}
		rule.Conditions = Conditions{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rule.Conditions); err != nil {
				return nil, fmt.Errorf("%w: conditions: %v", ErrCorrupt, err)
			}
		}
		rs = append(rs, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rules: iterate rules: %w", err)
	}
	return rs, nil
}

func (b *PostgresBackend) Write(ctx context.Context, rs RuleSet) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rules: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM triage_rules`); err != nil {
		return fmt.Errorf("rules: clear rules: %w", err)
	}

	insert := `
		INSERT INTO triage_rules (position, conditions, assignee)
		VALUES ($1, $2, $3)
	`
	for i, rule := range rs {
		conds := rule.Conditions
		if conds == nil {
			conds = Conditions{}
		}
		data, err := json.Marshal(conds)
		if err != nil {
			return fmt.Errorf("rules: marshal conditions: %w", err)
		}
		if _, err := tx.Exec(ctx, insert, i, string(data), rule.Assignee); err != nil {
			return fmt.Errorf("rules: insert rule %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("rules: commit: %w", err)
	}
	committed = true
	return nil
}

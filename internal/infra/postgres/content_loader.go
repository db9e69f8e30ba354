package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"vexcel-xp-service/internal/domain"
)

// ContentLoader loads module and challenge-question JSONB from Postgres.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) LoadModule(ctx context.Context, moduleID string) (domain.Module, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM modules WHERE id=$1`, moduleID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Module{}, domain.ErrModuleNotFound
	}
	if err != nil {
		return domain.Module{}, domain.Unavailable("postgres.LoadModule", fmt.Errorf("load module: %w", err))
	}
	var module domain.Module
	if err := json.Unmarshal(raw, &module); err != nil {
		return domain.Module{}, fmt.Errorf("unmarshal module: %w", err)
	}
	return module, nil
}

func (l *ContentLoader) LoadChallengeBank(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT category, data FROM challenge_questions ORDER BY id`)
	if err != nil {
		return nil, domain.Unavailable("postgres.LoadChallengeBank", fmt.Errorf("load challenge bank: %w", err))
	}
	defer rows.Close()

	bank := []domain.Question{}
	for rows.Next() {
		var (
			category string
			raw      []byte
		)
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, domain.Unavailable("postgres.LoadChallengeBank", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		q.Category = category
		bank = append(bank, q)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("postgres.LoadChallengeBank", err)
	}
	return bank, nil
}

package auction

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

func (s *Service) ImportPool(ctx context.Context, rows []PoolImportRow) (PoolImportResult, error) {
	var out PoolImportResult
	if len(rows) == 0 {
		return out, ErrInvalidInput.Withf("players array must not be empty")
	}
	clean := make([]PoolImportRow, 0, len(rows))
	for i, row := range rows {
		n, err := row.normalize()
		if err != nil {
			return out, ErrInvalidInput.Withf("row %d: %s", i, err.Error())
		}
		clean = append(clean, n)
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, row := range clean {
			if row.ExternalCode == nil {
				if _, err := tx.Exec(ctx, `
					INSERT INTO player_pool (name, country, skill, category, base_price, active)
					VALUES ($1, $2, $3, $4, $5, $6)
				`, row.Name, row.Country, row.Skill, row.Category, row.BasePrice, *row.Active); err != nil {
					return fmt.Errorf("insert %s: %w", row.Name, err)
				}
				out.Inserted++
				continue
			}
			var inserted bool
			if err := tx.QueryRow(ctx, `
				INSERT INTO player_pool (external_code, name, country, skill, category, base_price, active)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (external_code) DO UPDATE
				SET name = EXCLUDED.name,
				    country = EXCLUDED.country,
				    skill = EXCLUDED.skill,
				    category = EXCLUDED.category,
				    base_price = EXCLUDED.base_price,
				    active = EXCLUDED.active,
				    updated_at = now()
				RETURNING (xmax = 0)
			`, *row.ExternalCode, row.Name, row.Country, row.Skill, row.Category, row.BasePrice, *row.Active).Scan(&inserted); err != nil {
				return fmt.Errorf("upsert %s: %w", *row.ExternalCode, err)
			}
			if inserted {
				out.Inserted++
			} else {
				out.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return PoolImportResult{}, err
	}
	s.log.Info("player pool imported", "inserted", out.Inserted, "updated", out.Updated)
	return out, nil
}

func (s *Service) ListPool(ctx context.Context, f PoolFilter) ([]PoolPlayer, error) {
	query := `
		SELECT id, external_code, name, country, skill, category, base_price, active, created_at, updated_at
		FROM player_pool
		WHERE 1 = 1
	`
	var args []any
	if f.Skill != nil {
		args = append(args, *f.Skill)
		query += fmt.Sprintf(" AND skill = $%d", len(args))
	}
	if f.Category != nil {
		args = append(args, *f.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR country ILIKE $%d)", len(args), len(args))
	}
	if f.ActiveOnly {
		query += " AND active = true"
	}
	query += " ORDER BY base_price DESC, name"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	players, err := pgx.CollectRows(rows, pgx.RowToStructByName[PoolPlayer])
	if err != nil {
		return nil, err
	}
	if players == nil {
		players = []PoolPlayer{}
	}
	return players, nil
}

package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const pushRuleColumns = `id, session_id, skill, category, remaining_count, priority, active, created_at`

func scanPushRule(row pgx.Row) (PushRule, error) {
	var r PushRule
	err := row.Scan(&r.ID, &r.SessionID, &r.Skill, &r.Category, &r.RemainingCount, &r.Priority, &r.Active, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrRuleNotFound
	}
	return r, err
}

// nextPlayerTx picks the next player to go live and consumes push rules along the way.
// It returns nil when no PENDING or RECLAIMED player is left.
func (s *Service) nextPlayerTx(ctx context.Context, tx pgx.Tx, sessionID int64) (*int64, string, error) {
	ruleRows, err := tx.Query(ctx, `
		SELECT `+pushRuleColumns+`
		FROM push_rules
		WHERE session_id = $1 AND active
		ORDER BY priority, created_at, id
		FOR UPDATE
	`, sessionID)
	if err != nil {
		return nil, "", err
	}
	var rules []PushRule
	for ruleRows.Next() {
		r, err := scanPushRule(ruleRows)
		if err != nil {
			ruleRows.Close()
			return nil, "", err
		}
		rules = append(rules, r)
	}
	ruleRows.Close()
	if err := ruleRows.Err(); err != nil {
		return nil, "", err
	}

	candRows, err := tx.Query(ctx, `
		SELECT sp.id, pp.skill, pp.category, sp.created_at
		FROM session_players sp
		JOIN player_pool pp ON pp.id = sp.pool_player_id
		WHERE sp.session_id = $1 AND sp.status IN ('PENDING', 'RECLAIMED')
		ORDER BY sp.created_at, sp.id
	`, sessionID)
	if err != nil {
		return nil, "", err
	}
	var candidates []candidate
	for candRows.Next() {
		var c candidate
		if err := candRows.Scan(&c.ID, &c.Skill, &c.Category, &c.CreatedAt); err != nil {
			candRows.Close()
			return nil, "", err
		}
		candidates = append(candidates, c)
	}
	candRows.Close()
	if err := candRows.Err(); err != nil {
		return nil, "", err
	}

	plan := planNext(rules, candidates)
	if len(plan.Exhausted) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE push_rules SET active = false WHERE id = ANY($1)
		`, plan.Exhausted); err != nil {
			return nil, "", fmt.Errorf("deactivate exhausted rules: %w", err)
		}
		s.log.Info("push rules exhausted", "session_id", sessionID, "rule_ids", plan.Exhausted)
	}
	if !plan.Found {
		return nil, "", nil
	}

	var applied string
	if plan.RuleID != nil {
		r, err := scanPushRule(tx.QueryRow(ctx, `
			UPDATE push_rules
			SET remaining_count = remaining_count - 1,
			    active = remaining_count - 1 > 0
			WHERE id = $1
			RETURNING `+pushRuleColumns, *plan.RuleID))
		if err != nil {
			return nil, "", fmt.Errorf("consume push rule: %w", err)
		}
		applied = describeRule(r)
	}
	id := plan.PlayerID
	return &id, applied, nil
}

func (s *Service) CreatePushRule(ctx context.Context, in CreatePushRuleInput) (PushRule, error) {
	in, err := in.normalize()
	if err != nil {
		return PushRule{}, err
	}
	sess, err := getSession(ctx, s.db, in.SessionID)
	if err != nil {
		return PushRule{}, err
	}
	if sess.Status.Closed() {
		return PushRule{}, ErrSessionClosed
	}
	r, err := scanPushRule(s.db.QueryRow(ctx, `
		INSERT INTO push_rules (session_id, skill, category, remaining_count, priority, active, created_at)
		VALUES ($1, $2, $3, $4, $5, true, $6)
		RETURNING `+pushRuleColumns,
		in.SessionID, in.Skill, in.Category, in.RemainingCount, in.Priority, s.now()))
	if err != nil {
		return PushRule{}, err
	}
	s.log.Info("push rule created", "session_id", r.SessionID, "rule", describeRule(r), "priority", r.Priority)
	return r, nil
}

func (s *Service) ListPushRules(ctx context.Context, sessionID int64) ([]PushRule, error) {
	if err := sessionExists(ctx, s.db, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+pushRuleColumns+`
		FROM push_rules
		WHERE session_id = $1
		ORDER BY active DESC, priority, created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]PushRule, 0)
	for rows.Next() {
		r, err := scanPushRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Service) DeactivatePushRule(ctx context.Context, sessionID, ruleID int64) (PushRule, error) {
	return scanPushRule(s.db.QueryRow(ctx, `
		UPDATE push_rules SET active = false
		WHERE session_id = $1 AND id = $2
		RETURNING `+pushRuleColumns, sessionID, ruleID))
}

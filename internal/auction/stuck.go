package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

func loadSquad(ctx context.Context, q querier, sessionID int64, userID string) ([]SquadEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT sq.id, sq.session_player_id, pp.name, pp.skill, pp.category, sq.purchase_price, sq.acquired_at
		FROM squad_players sq
		JOIN session_players sp ON sp.id = sq.session_player_id
		JOIN player_pool pp ON pp.id = sp.pool_player_id
		WHERE sq.session_id = $1 AND sq.user_id = $2
		ORDER BY sq.acquired_at, sq.id
	`, sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SquadEntry, 0)
	for rows.Next() {
		var e SquadEntry
		if err := rows.Scan(&e.ID, &e.SessionPlayerID, &e.Name, &e.Skill, &e.Category, &e.PurchasePrice, &e.AcquiredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// resolveStuckTx releases squad players back to the session until userID can fill the
// remaining slots at the minimum player price, or owns nothing.
func (s *Service) resolveStuckTx(ctx context.Context, tx pgx.Tx, sess Session, userID string, now time.Time) (StuckResolution, error) {
	out := StuckResolution{UserID: userID, Released: []Release{}}
	w, err := lockWallet(ctx, tx, sess.ID, userID)
	if err != nil {
		return out, err
	}
	squad, err := loadSquad(ctx, tx, sess.ID, userID)
	if err != nil {
		return out, err
	}
	out.NewBalance, out.SquadSize = w.Balance, len(squad)
	out.WasStuck = IsStuck(w.Balance, sess.Config.MaxSquadSize, len(squad), s.minPlayerPrice)
	if !out.WasStuck {
		return out, nil
	}

	balance := w.Balance
	for _, e := range planReleases(w.Balance, sess.Config.MaxSquadSize, s.minPlayerPrice, squad) {
		if _, err := tx.Exec(ctx, `DELETE FROM squad_players WHERE id = $1`, e.ID); err != nil {
			return out, fmt.Errorf("release squad player: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE session_players
			SET status = 'RECLAIMED',
			    final_bid_amount = NULL,
			    sold_to_user_id = NULL,
			    highest_bid_amount = NULL,
			    highest_bidder_id = NULL,
			    updated_at = $2
			WHERE id = $1
		`, e.SessionPlayerID, now); err != nil {
			return out, fmt.Errorf("reclaim player: %w", err)
		}
		if err := appendLedger(ctx, tx, sess.ID, userID, e.SessionPlayerID, e.PurchasePrice, "RECLAIM_REFUND", now); err != nil {
			return out, err
		}
		balance = balance.Add(e.PurchasePrice)
		out.Released = append(out.Released, Release{SessionPlayerID: e.SessionPlayerID, Refund: e.PurchasePrice})
	}
	if len(out.Released) == 0 {
		return out, nil
	}
	if err := setWalletBalance(ctx, tx, sess.ID, userID, balance, now); err != nil {
		return out, err
	}
	// A released slot means the squad is no longer full.
	if _, err := tx.Exec(ctx, `
		UPDATE participants SET status = 'ACTIVE', updated_at = $3
		WHERE session_id = $1 AND user_id = $2 AND status = 'COMPLETED'
	`, sess.ID, userID, now); err != nil {
		return out, err
	}
	out.NewBalance = balance
	out.SquadSize = len(squad) - len(out.Released)
	s.log.Info("stuck participant liquidated",
		"session_id", sess.ID,
		"user_id", userID,
		"released", len(out.Released),
		"new_balance", balance.StringFixed(2),
	)
	return out, nil
}

// ResolveStuck runs the stuck check for one participant on demand.
func (s *Service) ResolveStuck(ctx context.Context, sessionID int64, userID string) (StuckResolution, error) {
	userID = strings.TrimSpace(userID)
	var out StuckResolution
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status.Closed() {
			return ErrSessionClosed
		}
		out, err = s.resolveStuckTx(ctx, tx, sess, userID, s.now())
		return err
	})
	return out, err
}

package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// terminateIfExhaustedTx ends the session when nothing is left to auction or nobody is left
// to bid. It reports whether the session is ended afterwards; an ended session is left as is.
func terminateIfExhaustedTx(ctx context.Context, tx pgx.Tx, sess Session, now time.Time) (bool, error) {
	if sess.Status.Closed() {
		return true, nil
	}
	var eligible, bidders int
	if err := tx.QueryRow(ctx, `
		SELECT
		    (SELECT COUNT(1) FROM session_players
		     WHERE session_id = $1 AND status IN ('PENDING', 'RECLAIMED')),
		    (SELECT COUNT(1) FROM participants
		     WHERE session_id = $1 AND role = 'PARTICIPANT' AND status = 'ACTIVE')
	`, sess.ID).Scan(&eligible, &bidders); err != nil {
		return false, fmt.Errorf("count remaining: %w", err)
	}
	if !shouldEnd(eligible, bidders) {
		return false, nil
	}
	if err := endSessionTx(ctx, tx, sess, now); err != nil {
		return false, err
	}
	return true, nil
}

// endSessionTx moves a session to ENDED and returns any live player to the queue.
func endSessionTx(ctx context.Context, tx pgx.Tx, sess Session, now time.Time) error {
	if _, err := tx.Exec(ctx, `
		UPDATE session_players
		SET status = 'PENDING', highest_bid_amount = NULL, highest_bidder_id = NULL, updated_at = $2
		WHERE session_id = $1 AND status = 'LIVE'
	`, sess.ID, now); err != nil {
		return fmt.Errorf("return live player: %w", err)
	}
	_, err := tx.Exec(ctx, `
		UPDATE auction_sessions
		SET status = 'ENDED',
		    current_session_player_id = NULL,
		    current_round_started_at = NULL,
		    current_round_ends_at = NULL,
		    paused_remaining_ms = NULL,
		    ended_at = $2,
		    updated_at = $2
		WHERE id = $1
	`, sess.ID, now)
	return err
}

// CheckTermination runs the terminator on its own. Repeated calls leave an ended session unchanged.
func (s *Service) CheckTermination(ctx context.Context, sessionID int64) (bool, error) {
	var ended, changed bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status == SessionNotStarted {
			return nil
		}
		ended, err = terminateIfExhaustedTx(ctx, tx, sess, s.now())
		changed = ended && !sess.Status.Closed()
		return err
	})
	if err == nil && changed {
		s.log.Info("auction session terminated", "session_id", sessionID)
	}
	return ended, err
}

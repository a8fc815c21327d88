package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const recentBidLimit = 10

// startRoundTx is the only path that makes a player LIVE. Any earlier live player is put back in line first.
func startRoundTx(ctx context.Context, tx pgx.Tx, sess Session, sessionPlayerID int64, now time.Time) (time.Time, error) {
	if sess.Status != SessionRunning {
		return time.Time{}, ErrAuctionNotRunning
	}
	p, err := lockSessionPlayer(ctx, tx, sess.ID, sessionPlayerID)
	if err != nil {
		return time.Time{}, err
	}
	if !p.Status.Eligible() {
		return time.Time{}, ErrInvalidTransition.Withf("player %d is %s and cannot go live", p.ID, p.Status)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE session_players
		SET status = 'PENDING', highest_bid_amount = NULL, highest_bidder_id = NULL, updated_at = $3
		WHERE session_id = $1 AND status = 'LIVE' AND id <> $2
	`, sess.ID, sessionPlayerID, now); err != nil {
		return time.Time{}, fmt.Errorf("reset previous live player: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE session_players
		SET status = 'LIVE', highest_bid_amount = NULL, highest_bidder_id = NULL, updated_at = $2
		WHERE id = $1
	`, sessionPlayerID, now); err != nil {
		return time.Time{}, fmt.Errorf("mark player live: %w", err)
	}
	endsAt := now.Add(time.Duration(sess.Config.BidTimerSeconds) * time.Second)
	if _, err := tx.Exec(ctx, `
		UPDATE auction_sessions
		SET current_session_player_id = $2,
		    current_round_started_at = $3,
		    current_round_ends_at = $4,
		    updated_at = $3
		WHERE id = $1
	`, sess.ID, sessionPlayerID, now, endsAt); err != nil {
		return time.Time{}, fmt.Errorf("set live pointer: %w", err)
	}
	return endsAt, nil
}

func (s *Service) PlaceBid(ctx context.Context, in BidInput) (BidResult, error) {
	in.BidderID = strings.TrimSpace(in.BidderID)
	if in.BidderID == "" {
		return BidResult{}, ErrInvalidInput.Withf("bidder id is required")
	}
	if !in.Amount.IsPositive() {
		return BidResult{}, ErrInvalidInput.Withf("amount must be > 0")
	}
	if err := checkMoney("amount", in.Amount); err != nil {
		return BidResult{}, err
	}

	var out BidResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		p, err := lockSessionPlayer(ctx, tx, in.SessionID, in.SessionPlayerID)
		if err != nil {
			return err
		}
		now := s.now()
		check := bidCheck{
			SessionStatus: sess.Status,
			LivePlayerID:  sess.CurrentSessionPlayerID,
			TargetID:      p.ID,
			PlayerStatus:  p.Status,
			RoundEndsAt:   sess.CurrentRoundEndsAt,
			Now:           now,
			BasePrice:     p.BasePrice,
			Highest:       p.HighestBidAmount,
			Increment:     sess.Config.MinBidIncrement,
			Amount:        in.Amount,
		}
		if err := check.validate(); err != nil {
			return err
		}

		var role ParticipantRole
		var status ParticipantStatus
		err = tx.QueryRow(ctx, `
			SELECT role, status FROM participants WHERE session_id = $1 AND user_id = $2
		`, in.SessionID, in.BidderID).Scan(&role, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotParticipant
		}
		if err != nil {
			return err
		}
		if role != RoleParticipant {
			return ErrNotParticipant.Withf("%s participants cannot bid", strings.ToLower(string(role)))
		}
		if status != ParticipantActive {
			return ErrParticipantNotActive
		}
		w, err := lockWallet(ctx, tx, in.SessionID, in.BidderID)
		if err != nil {
			return err
		}
		if in.Amount.GreaterThan(w.Balance) {
			return ErrInsufficientFunds.
				Withf("bid %s exceeds wallet balance %s", in.Amount.StringFixed(2), w.Balance.StringFixed(2)).
				With(map[string]string{"balance": w.Balance.StringFixed(2)})
		}

		bid := Bid{SessionID: in.SessionID, SessionPlayerID: p.ID, BidderID: in.BidderID, Amount: in.Amount}
		if err := tx.QueryRow(ctx, `
			INSERT INTO bids (session_id, session_player_id, bidder_id, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, in.SessionID, p.ID, in.BidderID, in.Amount, now).Scan(&bid.ID, &bid.CreatedAt); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE session_players
			SET highest_bid_amount = $2, highest_bidder_id = $3, updated_at = $4
			WHERE id = $1
		`, p.ID, in.Amount, in.BidderID, now); err != nil {
			return fmt.Errorf("update bid cache: %w", err)
		}

		out = BidResult{
			Bid:        bid,
			MinimumBid: in.Amount.Add(sess.Config.MinBidIncrement),
			EndsAt:     sess.CurrentRoundEndsAt,
		}
		return nil
	})
	if err != nil {
		return BidResult{}, err
	}
	s.log.Debug("bid accepted", "session_id", in.SessionID, "session_player_id", in.SessionPlayerID, "bidder", in.BidderID, "amount", in.Amount.StringFixed(2))
	return out, nil
}

func (s *Service) LiveState(ctx context.Context, sessionID int64) (LiveState, error) {
	sess, err := getSession(ctx, s.db, sessionID)
	if err != nil {
		return LiveState{}, err
	}
	now := s.now()
	out := LiveState{
		SessionID:      sess.ID,
		Status:         sess.Status,
		RoundStartedAt: sess.CurrentRoundStartedAt,
		RoundEndsAt:    sess.CurrentRoundEndsAt,
		RecentBids:     []Bid{},
		ServerTime:     now,
	}
	if sess.CurrentSessionPlayerID == nil {
		return out, nil
	}
	p, err := getSessionPlayer(ctx, s.db, sessionID, *sess.CurrentSessionPlayerID)
	if err != nil {
		return LiveState{}, err
	}
	out.Player = &p
	out.NextMinimumBid = MinimumNextBid(p.BasePrice, p.HighestBidAmount, sess.Config.MinBidIncrement)
	switch {
	case sess.Status == SessionPaused && sess.PausedRemainingMillis != nil:
		out.RemainingMillis = *sess.PausedRemainingMillis
	default:
		out.RemainingMillis = remainingMillis(sess.CurrentRoundEndsAt, now)
	}
	out.RecentBids, err = s.listBids(ctx, sessionID, &p.ID, recentBidLimit)
	if err != nil {
		return LiveState{}, err
	}
	return out, nil
}

// ListBids returns bid history newest first, optionally for one session player.
func (s *Service) ListBids(ctx context.Context, sessionID int64, sessionPlayerID *int64, limit int) ([]Bid, error) {
	if err := sessionExists(ctx, s.db, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.listBids(ctx, sessionID, sessionPlayerID, limit)
}

func (s *Service) listBids(ctx context.Context, sessionID int64, sessionPlayerID *int64, limit int) ([]Bid, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, session_player_id, bidder_id, amount, created_at
		FROM bids
		WHERE session_id = $1 AND ($2::BIGINT IS NULL OR session_player_id = $2)
		ORDER BY id DESC
		LIMIT $3
	`, sessionID, sessionPlayerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Bid, 0)
	for rows.Next() {
		var b Bid
		if err := rows.Scan(&b.ID, &b.SessionID, &b.SessionPlayerID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CloseRound resolves the live round by hand. When expected is set and no longer names the
// live player, the round was already closed and the call changes nothing.
func (s *Service) CloseRound(ctx context.Context, sessionID int64, expected *int64) (RoundResult, error) {
	out := RoundResult{SessionID: sessionID, Outcome: OutcomeSkipped}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		out.SessionStatus = sess.Status
		if sess.Status.Closed() {
			if expected != nil {
				return nil
			}
			return ErrSessionClosed
		}
		if sess.CurrentSessionPlayerID == nil {
			if expected != nil {
				return nil
			}
			return ErrNoLivePlayer
		}
		if expected != nil && *expected != *sess.CurrentSessionPlayerID {
			out.NextPlayerID = sess.CurrentSessionPlayerID
			out.RoundEndsAt = sess.CurrentRoundEndsAt
			return nil
		}
		return s.closeRoundTx(ctx, tx, sess, s.now(), expected == nil, &out)
	})
	if err != nil {
		return RoundResult{}, err
	}
	s.logRound("round closed by admin", out)
	return out, nil
}

// ExpiredSessions lists running sessions whose round deadline has passed or that have no live round.
func (s *Service) ExpiredSessions(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM auction_sessions
		WHERE status = 'RUNNING'
		  AND (current_session_player_id IS NULL OR current_round_ends_at <= $1)
		ORDER BY current_round_ends_at NULLS FIRST, id
	`, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// AdvanceExpired runs close, sequence and advance for one session if its round is still due at now.
// A session a concurrent caller already advanced is left alone and reported as not advanced.
func (s *Service) AdvanceExpired(ctx context.Context, sessionID int64, now time.Time) (RoundResult, bool, error) {
	now = now.UTC()
	out := RoundResult{SessionID: sessionID, Outcome: OutcomeSkipped}
	advanced := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		out.SessionStatus = sess.Status
		if sess.Status != SessionRunning {
			return nil
		}
		if sess.CurrentSessionPlayerID == nil {
			advanced = true
			return s.advanceTx(ctx, tx, sess, now, &out)
		}
		if sess.CurrentRoundEndsAt == nil || now.Before(*sess.CurrentRoundEndsAt) {
			return nil
		}
		advanced = true
		return s.closeRoundTx(ctx, tx, sess, now, true, &out)
	})
	if err != nil {
		return RoundResult{}, false, err
	}
	if advanced {
		s.logRound("round expired", out)
	}
	return out, advanced, nil
}

// closeRoundTx settles the live player, liquidates the winner if they are now stuck,
// then ends the session or puts the next player up. It all commits or rolls back together.
// A live pointer naming a player that is no longer LIVE is dropped and the session moves on
// when repairStale is set; otherwise the call changes nothing.
func (s *Service) closeRoundTx(ctx context.Context, tx pgx.Tx, sess Session, now time.Time, repairStale bool, out *RoundResult) error {
	liveID := *sess.CurrentSessionPlayerID
	p, err := lockSessionPlayer(ctx, tx, sess.ID, liveID)
	if err != nil {
		return err
	}
	if p.Status != PlayerLive {
		if !repairStale {
			out.NextPlayerID = sess.CurrentSessionPlayerID
			out.RoundEndsAt = sess.CurrentRoundEndsAt
			return nil
		}
		s.log.Warn("live pointer names a player that is not live", "session_id", sess.ID, "session_player_id", liveID, "status", p.Status)
		if err := clearRound(ctx, tx, sess.ID, now); err != nil {
			return err
		}
		sess.CurrentSessionPlayerID, sess.CurrentRoundStartedAt, sess.CurrentRoundEndsAt = nil, nil, nil
		return s.advanceTx(ctx, tx, sess, now, out)
	}
	out.ClosedPlayerID = &liveID

	if p.HighestBidderID == nil || !p.HighestBidAmount.Valid {
		if _, err := tx.Exec(ctx, `
			UPDATE session_players SET status = 'UNSOLD', updated_at = $2 WHERE id = $1
		`, p.ID, now); err != nil {
			return fmt.Errorf("mark unsold: %w", err)
		}
		out.Outcome = OutcomeUnsold
	} else {
		winner, price := *p.HighestBidderID, p.HighestBidAmount.Decimal
		if err := s.sellTx(ctx, tx, sess, p, winner, price, now); err != nil {
			return err
		}
		out.Outcome = OutcomeSold
		out.SoldTo = &winner
		out.Price = decimal.NewNullDecimal(price)
	}
	if err := clearRound(ctx, tx, sess.ID, now); err != nil {
		return err
	}
	sess.CurrentSessionPlayerID, sess.CurrentRoundStartedAt, sess.CurrentRoundEndsAt = nil, nil, nil

	if out.SoldTo != nil {
		res, err := s.resolveStuckTx(ctx, tx, sess, *out.SoldTo, now)
		if err != nil {
			return err
		}
		out.Reclaimed = res.Released
	}
	return s.advanceTx(ctx, tx, sess, now, out)
}

func (s *Service) sellTx(ctx context.Context, tx pgx.Tx, sess Session, p SessionPlayer, winner string, price decimal.Decimal, now time.Time) error {
	w, err := lockWallet(ctx, tx, sess.ID, winner)
	if err != nil {
		return err
	}
	if err := setWalletBalance(ctx, tx, sess.ID, winner, w.Balance.Sub(price), now); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO squad_players (session_id, user_id, session_player_id, purchase_price, acquired_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sess.ID, winner, p.ID, price, now); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists.Withf("player %d is already in a squad", p.ID)
		}
		return fmt.Errorf("insert squad player: %w", err)
	}
	if err := appendLedger(ctx, tx, sess.ID, winner, p.ID, price.Neg(), "PURCHASE", now); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE session_players
		SET status = 'SOLD', final_bid_amount = $2, sold_to_user_id = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, price, winner, now); err != nil {
		return fmt.Errorf("mark sold: %w", err)
	}

	size, err := squadSize(ctx, tx, sess.ID, winner)
	if err != nil {
		return err
	}
	if size >= sess.Config.MaxSquadSize {
		if _, err := tx.Exec(ctx, `
			UPDATE participants SET status = 'COMPLETED', updated_at = $3
			WHERE session_id = $1 AND user_id = $2 AND status = 'ACTIVE'
		`, sess.ID, winner, now); err != nil {
			return err
		}
	}
	return nil
}

// advanceTx runs the terminator and, if the session lives on and is running, starts the next round.
func (s *Service) advanceTx(ctx context.Context, tx pgx.Tx, sess Session, now time.Time, out *RoundResult) error {
	ended, err := terminateIfExhaustedTx(ctx, tx, sess, now)
	if err != nil {
		return err
	}
	if ended {
		out.SessionEnded = true
		out.SessionStatus = SessionEnded
		out.NextPlayerID, out.RoundEndsAt = nil, nil
		return nil
	}
	out.SessionStatus = sess.Status
	if sess.Status != SessionRunning {
		return nil
	}
	next, rule, err := s.nextPlayerTx(ctx, tx, sess.ID)
	if err != nil {
		return err
	}
	if next == nil {
		if err := endSessionTx(ctx, tx, sess, now); err != nil {
			return err
		}
		out.SessionEnded = true
		out.SessionStatus = SessionEnded
		return nil
	}
	endsAt, err := startRoundTx(ctx, tx, sess, *next, now)
	if err != nil {
		return err
	}
	out.NextPlayerID, out.RoundEndsAt, out.AppliedRuleName = next, &endsAt, rule
	return nil
}

func (s *Service) logRound(msg string, r RoundResult) {
	attrs := []any{"session_id", r.SessionID, "outcome", r.Outcome, "session_status", r.SessionStatus}
	if r.ClosedPlayerID != nil {
		attrs = append(attrs, "closed_session_player_id", *r.ClosedPlayerID)
	}
	if r.SoldTo != nil {
		attrs = append(attrs, "sold_to", *r.SoldTo, "price", r.Price.Decimal.StringFixed(2))
	}
	if len(r.Reclaimed) > 0 {
		attrs = append(attrs, "reclaimed", len(r.Reclaimed))
	}
	if r.NextPlayerID != nil {
		attrs = append(attrs, "next_session_player_id", *r.NextPlayerID)
	}
	if r.AppliedRuleName != "" {
		attrs = append(attrs, "push_rule", r.AppliedRuleName)
	}
	s.log.Info(msg, attrs...)
}

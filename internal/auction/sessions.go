package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5"
)

func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (Session, error) {
	in, err := in.normalize()
	if err != nil {
		return Session{}, err
	}
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)
	if in.CreatedBy == "" {
		return Session{}, ErrInvalidInput.Withf("created_by is required")
	}
	now := s.now()

	var out Session
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = scanSession(tx.QueryRow(ctx, `
			INSERT INTO auction_sessions
			    (name, slug, status, max_squad_size, min_squad_size, initial_wallet, bid_timer_seconds,
			     min_bid_increment, created_by, created_at, updated_at)
			VALUES ($1, $2, 'NOT_STARTED', $3, $4, $5, $6, $7, $8, $9, $9)
			RETURNING `+sessionColumns,
			in.Name, slug.Make(in.Name), in.MaxSquadSize, *in.MinSquadSize, *in.InitialWallet,
			in.BidTimerSeconds, *in.MinBidIncrement, in.CreatedBy, now))
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if in.AttachPool {
			if _, err := attachPlayersTx(ctx, tx, out.ID, AttachPlayersInput{AllActive: true}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.log.Info("auction session created", "session_id", out.ID, "name", out.Name, "attach_pool", in.AttachPool)
	return out, nil
}

func (s *Service) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.Query(ctx, `SELECT `+sessionColumns+` FROM auction_sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SessionSummary, 0)
	index := make(map[int64]int)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		index[sess.ID] = len(out)
		out = append(out, SessionSummary{Session: sess, PlayerCounts: map[PlayerStatus]int{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cRows, err := s.db.Query(ctx, `
		SELECT session_id, status, COUNT(1)
		FROM session_players
		GROUP BY session_id, status
	`)
	if err != nil {
		return nil, err
	}
	defer cRows.Close()
	for cRows.Next() {
		var sessionID int64
		var status PlayerStatus
		var n int
		if err := cRows.Scan(&sessionID, &status, &n); err != nil {
			return nil, err
		}
		if i, ok := index[sessionID]; ok {
			out[i].PlayerCounts[status] = n
			out[i].TotalPlayers += n
		}
	}
	if err := cRows.Err(); err != nil {
		return nil, err
	}

	pRows, err := s.db.Query(ctx, `SELECT session_id, COUNT(1) FROM participants GROUP BY session_id`)
	if err != nil {
		return nil, err
	}
	defer pRows.Close()
	for pRows.Next() {
		var sessionID int64
		var n int
		if err := pRows.Scan(&sessionID, &n); err != nil {
			return nil, err
		}
		if i, ok := index[sessionID]; ok {
			out[i].ParticipantCount = n
		}
	}
	return out, pRows.Err()
}

func (s *Service) GetSession(ctx context.Context, sessionID int64) (SessionSummary, error) {
	sess, err := getSession(ctx, s.db, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	out := SessionSummary{Session: sess, PlayerCounts: map[PlayerStatus]int{}}
	rows, err := s.db.Query(ctx, `
		SELECT status, COUNT(1) FROM session_players WHERE session_id = $1 GROUP BY status
	`, sessionID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var status PlayerStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return out, err
		}
		out.PlayerCounts[status] = n
		out.TotalPlayers += n
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	err = s.db.QueryRow(ctx, `SELECT COUNT(1) FROM participants WHERE session_id = $1`, sessionID).Scan(&out.ParticipantCount)
	return out, err
}

func (s *Service) AttachPlayers(ctx context.Context, sessionID int64, in AttachPlayersInput) (int, error) {
	if !in.AllActive && len(in.PoolPlayerIDs) == 0 {
		return 0, ErrInvalidInput.Withf("pool_player_ids or all_active is required")
	}
	var added int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case sess.Status.Closed():
			return ErrSessionClosed
		case sess.Status != SessionNotStarted:
			return ErrSessionAlreadyStarted
		}
		added, err = attachPlayersTx(ctx, tx, sessionID, in)
		return err
	})
	return added, err
}

func attachPlayersTx(ctx context.Context, tx pgx.Tx, sessionID int64, in AttachPlayersInput) (int, error) {
	query := `
		INSERT INTO session_players (session_id, pool_player_id, status, base_price)
		SELECT $1, id, 'PENDING', base_price
		FROM player_pool
		WHERE active = true`
	args := []any{sessionID}
	if !in.AllActive {
		args = append(args, in.PoolPlayerIDs)
		query += ` AND id = ANY($2)`
	}
	query += ` ORDER BY id ON CONFLICT (session_id, pool_player_id) DO NOTHING`
	cmd, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("attach players: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *Service) ListSessionPlayers(ctx context.Context, sessionID int64, f SessionPlayerFilter) ([]SessionPlayer, error) {
	if _, err := getSession(ctx, s.db, sessionID); err != nil {
		return nil, err
	}
	query := sessionPlayerSelect + ` WHERE sp.session_id = $1`
	args := []any{sessionID}
	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND sp.status = $%d", len(args))
	}
	if f.Skill != nil {
		args = append(args, *f.Skill)
		query += fmt.Sprintf(" AND pp.skill = $%d", len(args))
	}
	if f.Category != nil {
		args = append(args, *f.Category)
		query += fmt.Sprintf(" AND pp.category = $%d", len(args))
	}
	query += " ORDER BY sp.created_at, sp.id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SessionPlayer, 0)
	for rows.Next() {
		p, err := scanSessionPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RequeueUnsold puts every UNSOLD player of a session back in line.
func (s *Service) RequeueUnsold(ctx context.Context, sessionID int64) (int, error) {
	var n int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status.Closed() {
			return ErrSessionClosed
		}
		cmd, err := tx.Exec(ctx, `
			UPDATE session_players
			SET status = 'PENDING', highest_bid_amount = NULL, highest_bidder_id = NULL, updated_at = $2
			WHERE session_id = $1 AND status = 'UNSOLD'
		`, sessionID, s.now())
		if err != nil {
			return err
		}
		n = int(cmd.RowsAffected())
		return nil
	})
	if err == nil && n > 0 {
		s.log.Info("unsold players requeued", "session_id", sessionID, "count", n)
	}
	return n, err
}

func (s *Service) StartSession(ctx context.Context, sessionID int64) (RoundResult, error) {
	out := RoundResult{SessionID: sessionID, Outcome: OutcomeSkipped}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case sess.Status.Closed():
			return ErrSessionClosed
		case sess.Status != SessionNotStarted:
			return ErrSessionAlreadyStarted
		}
		now := s.now()
		if _, err := tx.Exec(ctx, `
			UPDATE auction_sessions SET status = 'RUNNING', updated_at = $2 WHERE id = $1
		`, sessionID, now); err != nil {
			return err
		}
		sess.Status = SessionRunning

		next, rule, err := s.nextPlayerTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if next == nil {
			return ErrNoPlayersAvailable
		}
		endsAt, err := startRoundTx(ctx, tx, sess, *next, now)
		if err != nil {
			return err
		}
		out.NextPlayerID, out.RoundEndsAt, out.AppliedRuleName = next, &endsAt, rule
		out.SessionStatus = SessionRunning
		return nil
	})
	if err != nil {
		return RoundResult{}, err
	}
	s.log.Info("auction session started", "session_id", sessionID, "first_player", *out.NextPlayerID)
	return out, nil
}

// PauseSession freezes the live round; the time left is restored on resume.
func (s *Service) PauseSession(ctx context.Context, sessionID int64) (Session, error) {
	var out Session
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != SessionRunning {
			return ErrInvalidTransition.Withf("cannot pause a %s session", sess.Status)
		}
		now := s.now()
		var remaining *int64
		if sess.CurrentSessionPlayerID != nil {
			ms := remainingMillis(sess.CurrentRoundEndsAt, now)
			remaining = &ms
		}
		out, err = scanSession(tx.QueryRow(ctx, `
			UPDATE auction_sessions
			SET status = 'PAUSED', paused_remaining_ms = $2, updated_at = $3
			WHERE id = $1
			RETURNING `+sessionColumns, sessionID, remaining, now))
		return err
	})
	return out, err
}

func (s *Service) ResumeSession(ctx context.Context, sessionID int64) (RoundResult, error) {
	out := RoundResult{SessionID: sessionID, Outcome: OutcomeSkipped}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != SessionPaused {
			return ErrInvalidTransition.Withf("cannot resume a %s session", sess.Status)
		}
		now := s.now()
		var endsAt *time.Time
		if sess.CurrentSessionPlayerID != nil {
			var ms int64
			if sess.PausedRemainingMillis != nil {
				ms = *sess.PausedRemainingMillis
			}
			t := now.Add(time.Duration(ms) * time.Millisecond)
			endsAt = &t
		}
		if _, err := tx.Exec(ctx, `
			UPDATE auction_sessions
			SET status = 'RUNNING', paused_remaining_ms = NULL, current_round_ends_at = $2, updated_at = $3
			WHERE id = $1
		`, sessionID, endsAt, now); err != nil {
			return err
		}
		sess.Status = SessionRunning
		sess.CurrentRoundEndsAt = endsAt
		out.SessionStatus = SessionRunning
		out.RoundEndsAt = endsAt
		out.NextPlayerID = sess.CurrentSessionPlayerID
		if sess.CurrentSessionPlayerID == nil {
			return s.advanceTx(ctx, tx, sess, now, &out)
		}
		return nil
	})
	if err != nil {
		return RoundResult{}, err
	}
	return out, nil
}

// EndSession stops the auction by hand. Ending an already ended session is a no-op.
func (s *Service) EndSession(ctx context.Context, sessionID int64) (Session, error) {
	var out Session
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !sess.Status.Closed() {
			if err := endSessionTx(ctx, tx, sess, s.now()); err != nil {
				return err
			}
		}
		out, err = getSession(ctx, tx, sessionID)
		return err
	})
	if err == nil {
		s.log.Info("auction session ended by admin", "session_id", sessionID)
	}
	return out, err
}

// CompleteSession finalizes an ended session.
func (s *Service) CompleteSession(ctx context.Context, sessionID int64) (Session, error) {
	var out Session
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case SessionCompleted:
			out = sess
			return nil
		case SessionEnded:
		default:
			return ErrInvalidTransition.Withf("only ended sessions can be completed (status %s)", sess.Status)
		}
		now := s.now()
		if _, err := tx.Exec(ctx, `
			UPDATE participants SET status = 'COMPLETED', updated_at = $2
			WHERE session_id = $1 AND status = 'ACTIVE'
		`, sessionID, now); err != nil {
			return err
		}
		out, err = scanSession(tx.QueryRow(ctx, `
			UPDATE auction_sessions SET status = 'COMPLETED', updated_at = $2
			WHERE id = $1
			RETURNING `+sessionColumns, sessionID, now))
		return err
	})
	return out, err
}

func sessionExists(ctx context.Context, q querier, sessionID int64) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM auction_sessions WHERE id = $1`, sessionID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	return err
}

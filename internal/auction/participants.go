package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const participantSelect = `
	SELECT p.session_id, p.user_id, p.display_name, p.role, p.status,
	       w.initial_amount, w.current_balance,
	       (SELECT COUNT(1) FROM squad_players sq WHERE sq.session_id = p.session_id AND sq.user_id = p.user_id),
	       p.joined_at
	FROM participants p
	JOIN wallets w ON w.session_id = p.session_id AND w.user_id = p.user_id`

func scanParticipant(row pgx.Row) (Participant, error) {
	var p Participant
	err := row.Scan(&p.SessionID, &p.UserID, &p.DisplayName, &p.Role, &p.Status,
		&p.InitialAmount, &p.CurrentBalance, &p.SquadSize, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrParticipantNotFound
	}
	return p, err
}

func getParticipant(ctx context.Context, q querier, sessionID int64, userID string) (Participant, error) {
	return scanParticipant(q.QueryRow(ctx, participantSelect+`
		WHERE p.session_id = $1 AND p.user_id = $2
	`, sessionID, userID))
}

// RegisterParticipant adds a user to a session and opens their wallet at the session's initial amount.
func (s *Service) RegisterParticipant(ctx context.Context, in RegisterParticipantInput) (Participant, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.UserID == "" {
		return Participant{}, ErrInvalidInput.Withf("user_id is required")
	}
	role, err := ParseRole(string(in.Role))
	if err != nil {
		return Participant{}, err
	}
	if in.DisplayName == "" {
		in.DisplayName = in.UserID
	}

	var out Participant
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		if sess.Status.Closed() {
			return ErrSessionClosed
		}
		now := s.now()
		if _, err := tx.Exec(ctx, `
			INSERT INTO participants (session_id, user_id, display_name, role, status, joined_at, updated_at)
			VALUES ($1, $2, $3, $4, 'ACTIVE', $5, $5)
		`, in.SessionID, in.UserID, in.DisplayName, role, now); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists.Withf("%s already joined session %d", in.UserID, in.SessionID)
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO wallets (session_id, user_id, initial_amount, current_balance, updated_at)
			VALUES ($1, $2, $3, $3, $4)
		`, in.SessionID, in.UserID, sess.Config.InitialWallet, now); err != nil {
			return fmt.Errorf("insert wallet: %w", err)
		}
		out, err = getParticipant(ctx, tx, in.SessionID, in.UserID)
		return err
	})
	if err != nil {
		return Participant{}, err
	}
	s.log.Info("participant registered", "session_id", in.SessionID, "user_id", in.UserID, "role", role)
	return out, nil
}

func (s *Service) ListParticipants(ctx context.Context, sessionID int64) ([]Participant, error) {
	if err := sessionExists(ctx, s.db, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, participantSelect+`
		WHERE p.session_id = $1
		ORDER BY p.joined_at, p.user_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Squad returns the players a participant owns together with the ledger identity check.
func (s *Service) Squad(ctx context.Context, sessionID int64, userID string) (Squad, error) {
	p, err := getParticipant(ctx, s.db, sessionID, strings.TrimSpace(userID))
	if err != nil {
		return Squad{}, err
	}
	players, err := loadSquad(ctx, s.db, sessionID, p.UserID)
	if err != nil {
		return Squad{}, err
	}
	spent := decimal.Zero
	for _, e := range players {
		spent = spent.Add(e.PurchasePrice)
	}
	return Squad{
		Participant: p,
		Players:     players,
		Spent:       spent,
		Balanced:    p.CurrentBalance.Add(spent).Equal(p.InitialAmount),
	}, nil
}

// Exit lets a participant leave once their squad meets the session minimum.
// The current highest bidder has to wait for the round to close.
func (s *Service) Exit(ctx context.Context, sessionID int64, userID string) (Participant, error) {
	userID = strings.TrimSpace(userID)
	var out Participant
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sess, err := lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status.Closed() {
			return ErrSessionClosed
		}
		var status ParticipantStatus
		err = tx.QueryRow(ctx, `
			SELECT status FROM participants WHERE session_id = $1 AND user_id = $2 FOR UPDATE
		`, sessionID, userID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		if status != ParticipantActive {
			return ErrParticipantNotActive
		}
		size, err := squadSize(ctx, tx, sessionID, userID)
		if err != nil {
			return err
		}
		if size < sess.Config.MinSquadSize {
			return ErrSquadBelowMinimum.
				Withf("squad has %d players, %d required to exit", size, sess.Config.MinSquadSize).
				With(map[string]string{"squad_size": fmt.Sprint(size), "min_squad_size": fmt.Sprint(sess.Config.MinSquadSize)})
		}
		if sess.CurrentSessionPlayerID != nil {
			live, err := getSessionPlayer(ctx, tx, sessionID, *sess.CurrentSessionPlayerID)
			if err != nil {
				return err
			}
			if live.HighestBidderID != nil && *live.HighestBidderID == userID {
				return ErrHighestBidderCannotExit
			}
		}
		now := s.now()
		if _, err := tx.Exec(ctx, `
			UPDATE participants SET status = 'EXITED', updated_at = $3
			WHERE session_id = $1 AND user_id = $2
		`, sessionID, userID, now); err != nil {
			return err
		}
		// With a round open the closer runs the terminator; otherwise this exit may be the last bidder leaving.
		if sess.CurrentSessionPlayerID == nil && (sess.Status == SessionRunning || sess.Status == SessionPaused) {
			if _, err := terminateIfExhaustedTx(ctx, tx, sess, now); err != nil {
				return err
			}
		}
		out, err = getParticipant(ctx, tx, sessionID, userID)
		return err
	})
	if err != nil {
		return Participant{}, err
	}
	s.log.Info("participant exited", "session_id", sessionID, "user_id", userID)
	return out, nil
}

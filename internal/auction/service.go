package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type Service struct {
	db             *pgxpool.Pool
	log            *slog.Logger
	clock          clockwork.Clock
	minPlayerPrice decimal.Decimal
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMinPlayerPrice sets the cheapest price a squad slot can be filled at, used to detect stuck participants.
func WithMinPlayerPrice(p decimal.Decimal) Option {
	return func(s *Service) {
		s.minPlayerPrice = p
	}
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:             db,
		log:            logger,
		clock:          clockwork.NewRealClock(),
		minPlayerPrice: DefaultMinPlayerPrice,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// inTx runs fn in a read-committed transaction; any error rolls everything back.
// Row locks taken inside fn serialize work per session.
func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

const sessionColumns = `
	id, name, slug, status, max_squad_size, min_squad_size, initial_wallet, bid_timer_seconds,
	min_bid_increment, current_session_player_id, current_round_started_at, current_round_ends_at,
	paused_remaining_ms, created_by, created_at, ended_at`

func scanSession(row pgx.Row) (Session, error) {
	var out Session
	err := row.Scan(
		&out.ID, &out.Name, &out.Slug, &out.Status,
		&out.Config.MaxSquadSize, &out.Config.MinSquadSize, &out.Config.InitialWallet,
		&out.Config.BidTimerSeconds, &out.Config.MinBidIncrement,
		&out.CurrentSessionPlayerID, &out.CurrentRoundStartedAt, &out.CurrentRoundEndsAt,
		&out.PausedRemainingMillis, &out.CreatedBy, &out.CreatedAt, &out.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrSessionNotFound
	}
	return out, err
}

func getSession(ctx context.Context, q querier, sessionID int64) (Session, error) {
	return scanSession(q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM auction_sessions WHERE id = $1`, sessionID))
}

// lockSession takes the per-session row lock every money or round mutation goes through.
func lockSession(ctx context.Context, tx pgx.Tx, sessionID int64) (Session, error) {
	return scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM auction_sessions WHERE id = $1 FOR UPDATE`, sessionID))
}

const sessionPlayerSelect = `
	SELECT sp.id, sp.session_id, sp.pool_player_id, pp.name, pp.country, pp.skill, pp.category,
	       sp.status, sp.base_price, sp.final_bid_amount, sp.sold_to_user_id,
	       sp.highest_bid_amount, sp.highest_bidder_id, sp.created_at
	FROM session_players sp
	JOIN player_pool pp ON pp.id = sp.pool_player_id`

func scanSessionPlayer(row pgx.Row) (SessionPlayer, error) {
	var p SessionPlayer
	err := row.Scan(
		&p.ID, &p.SessionID, &p.PoolPlayerID, &p.Name, &p.Country, &p.Skill, &p.Category,
		&p.Status, &p.BasePrice, &p.FinalBidAmount, &p.SoldToUserID,
		&p.HighestBidAmount, &p.HighestBidderID, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrPlayerNotFound
	}
	return p, err
}

func getSessionPlayer(ctx context.Context, q querier, sessionID, sessionPlayerID int64) (SessionPlayer, error) {
	return scanSessionPlayer(q.QueryRow(ctx, sessionPlayerSelect+`
		WHERE sp.session_id = $1 AND sp.id = $2
	`, sessionID, sessionPlayerID))
}

func lockSessionPlayer(ctx context.Context, tx pgx.Tx, sessionID, sessionPlayerID int64) (SessionPlayer, error) {
	return scanSessionPlayer(tx.QueryRow(ctx, sessionPlayerSelect+`
		WHERE sp.session_id = $1 AND sp.id = $2
		FOR UPDATE OF sp
	`, sessionID, sessionPlayerID))
}

type walletRow struct {
	Initial decimal.Decimal
	Balance decimal.Decimal
}

func lockWallet(ctx context.Context, tx pgx.Tx, sessionID int64, userID string) (walletRow, error) {
	var w walletRow
	err := tx.QueryRow(ctx, `
		SELECT initial_amount, current_balance
		FROM wallets
		WHERE session_id = $1 AND user_id = $2
		FOR UPDATE
	`, sessionID, userID).Scan(&w.Initial, &w.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, ErrParticipantNotFound
	}
	return w, err
}

func setWalletBalance(ctx context.Context, tx pgx.Tx, sessionID int64, userID string, balance decimal.Decimal, at time.Time) error {
	if balance.IsNegative() {
		return ErrWalletOverdrawn.Withf("wallet of %s would drop to %s", userID, balance.StringFixed(2))
	}
	_, err := tx.Exec(ctx, `
		UPDATE wallets
		SET current_balance = $1, updated_at = $4
		WHERE session_id = $2 AND user_id = $3
	`, balance, sessionID, userID, at)
	return err
}

func squadSize(ctx context.Context, q querier, sessionID int64, userID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COUNT(1) FROM squad_players WHERE session_id = $1 AND user_id = $2
	`, sessionID, userID).Scan(&n)
	return n, err
}

func appendLedger(ctx context.Context, tx pgx.Tx, sessionID int64, userID string, sessionPlayerID int64, delta decimal.Decimal, reason string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallet_ledger (tx_group_id, session_id, user_id, session_player_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), sessionID, userID, sessionPlayerID, delta, reason, at)
	if err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

func clearRound(ctx context.Context, tx pgx.Tx, sessionID int64, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE auction_sessions
		SET current_session_player_id = NULL,
		    current_round_started_at = NULL,
		    current_round_ends_at = NULL,
		    updated_at = $2
		WHERE id = $1
	`, sessionID, at)
	return err
}

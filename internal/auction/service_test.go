package auction

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crickbid/internal/db"
)

// newTestService connects to CRICKBID_TEST_DATABASE_URL, migrates and wipes it.
// These tests are skipped when the variable is not set.
func newTestService(t *testing.T, opts ...Option) (*Service, *clockwork.FakeClock, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("CRICKBID_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CRICKBID_TEST_DATABASE_URL not set")
	}
	require.NoError(t, db.RunMigrations(url))

	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE wallet_ledger, bids, push_rules, squad_players, wallets, participants,
		         session_players, auction_sessions, player_pool
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewService(pool, quietLogger(), opts...), clock, pool
}

type fixture struct {
	svc     *Service
	clock   *clockwork.FakeClock
	pool    *pgxpool.Pool
	session Session
}

func intPtr(v int) *int { return &v }

func decPtr(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

// newFixture builds a session over the given base prices. The minimum player price is 1 so
// that only tests asking for liquidation see it.
func newFixture(t *testing.T, maxSquad int, wallet string, prices ...string) fixture {
	t.Helper()
	return newFixtureWith(t, d("1"), maxSquad, wallet, prices...)
}

func newFixtureWith(t *testing.T, minPrice decimal.Decimal, maxSquad int, wallet string, prices ...string) fixture {
	t.Helper()
	svc, clock, pool := newTestService(t, WithMinPlayerPrice(minPrice))
	ctx := context.Background()

	rows := make([]PoolImportRow, 0, len(prices))
	for i, p := range prices {
		rows = append(rows, PoolImportRow{
			Name:      "Player " + string(rune('A'+i)),
			Skill:     SkillBatsman,
			Category:  CategoryGold,
			BasePrice: d(p),
		})
	}
	_, err := svc.ImportPool(ctx, rows)
	require.NoError(t, err)

	sess, err := svc.CreateSession(ctx, CreateSessionInput{
		Name:          "Test Auction",
		CreatedBy:     "admin",
		MaxSquadSize:  maxSquad,
		MinSquadSize:  intPtr(0),
		InitialWallet: decPtr(wallet),
		AttachPool:    true,
	})
	require.NoError(t, err)
	return fixture{svc: svc, clock: clock, pool: pool, session: sess}
}

func (f fixture) join(t *testing.T, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := f.svc.RegisterParticipant(context.Background(), RegisterParticipantInput{SessionID: f.session.ID, UserID: u})
		require.NoError(t, err)
	}
}

func (f fixture) assertLedger(t *testing.T, user string) {
	t.Helper()
	sq, err := f.svc.Squad(context.Background(), f.session.ID, user)
	require.NoError(t, err)
	assert.True(t, sq.Balanced, "ledger identity broken for %s: balance=%s spent=%s initial=%s",
		user, sq.Participant.CurrentBalance, sq.Spent, sq.Participant.InitialAmount)
	assert.False(t, sq.Participant.CurrentBalance.IsNegative())
}

func (f fixture) liveCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`SELECT COUNT(1) FROM session_players WHERE session_id = $1 AND status = 'LIVE'`, f.session.ID).Scan(&n))
	return n
}

func TestSaleDebitsWalletAndFillsSquad(t *testing.T) {
	f := newFixture(t, 2, "10", "5", "1")
	ctx := context.Background()
	f.join(t, "alice", "bob")

	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, started.NextPlayerID)
	live := *started.NextPlayerID

	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "alice", Amount: d("6")})
	require.NoError(t, err)

	res, err := f.svc.CloseRound(ctx, f.session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSold, res.Outcome)
	require.NotNil(t, res.SoldTo)
	assert.Equal(t, "alice", *res.SoldTo)

	sq, err := f.svc.Squad(ctx, f.session.ID, "alice")
	require.NoError(t, err)
	assert.True(t, sq.Participant.CurrentBalance.Equal(d("4")), "balance %s", sq.Participant.CurrentBalance)
	require.Len(t, sq.Players, 1)
	assert.True(t, sq.Players[0].PurchasePrice.Equal(d("6")))
	assert.True(t, sq.Balanced)

	players, err := f.svc.ListSessionPlayers(ctx, f.session.ID, SessionPlayerFilter{})
	require.NoError(t, err)
	for _, p := range players {
		if p.ID == live {
			assert.Equal(t, PlayerSold, p.Status)
			assert.True(t, p.FinalBidAmount.Decimal.Equal(d("6")))
		}
	}
	assert.LessOrEqual(t, f.liveCount(t), 1)
}

func TestBidBelowIncrementLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, 2, "10", "5")
	ctx := context.Background()
	f.join(t, "alice")

	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)

	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: *started.NextPlayerID, BidderID: "alice", Amount: d("5.2")})
	require.ErrorIs(t, err, ErrBidTooLow)

	state, err := f.svc.LiveState(ctx, f.session.ID)
	require.NoError(t, err)
	assert.False(t, state.Player.HighestBidAmount.Valid)
	assert.True(t, state.NextMinimumBid.Equal(d("5.5")))
	assert.Empty(t, state.RecentBids)
	f.assertLedger(t, "alice")
}

func TestBidRejections(t *testing.T) {
	f := newFixture(t, 3, "10", "5", "5")
	ctx := context.Background()
	f.join(t, "alice")
	_, err := f.svc.RegisterParticipant(ctx, RegisterParticipantInput{SessionID: f.session.ID, UserID: "host", Role: RoleAuctioneer})
	require.NoError(t, err)

	players, err := f.svc.ListSessionPlayers(ctx, f.session.ID, SessionPlayerFilter{})
	require.NoError(t, err)
	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: players[0].ID, BidderID: "alice", Amount: d("6")})
	require.ErrorIs(t, err, ErrAuctionNotRunning)

	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	live := *started.NextPlayerID
	var other int64
	for _, p := range players {
		if p.ID != live {
			other = p.ID
		}
	}

	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: other, BidderID: "alice", Amount: d("6")})
	assert.ErrorIs(t, err, ErrPlayerNotLive)
	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "mallory", Amount: d("6")})
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "host", Amount: d("6")})
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "alice", Amount: d("11")})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	f.clock.Advance(time.Duration(DefaultBidTimerSeconds) * time.Second)
	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "alice", Amount: d("6")})
	assert.ErrorIs(t, err, ErrRoundExpired)
}

func TestBidsAreMonotonic(t *testing.T) {
	f := newFixture(t, 2, "100", "5")
	ctx := context.Background()
	f.join(t, "alice", "bob")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	live := *started.NextPlayerID

	for i, step := range []struct {
		user, amount string
		ok           bool
	}{
		{"alice", "5.5", true},
		{"bob", "5.5", false},
		{"bob", "6", true},
		{"alice", "6.4", false},
		{"alice", "7", true},
	} {
		_, err := f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: step.user, Amount: d(step.amount)})
		if step.ok {
			require.NoError(t, err, "step %d", i)
		} else {
			require.ErrorIs(t, err, ErrBidTooLow, "step %d", i)
		}
	}

	bids, err := f.svc.ListBids(ctx, f.session.ID, &live, 0)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	for i := 0; i+1 < len(bids); i++ {
		assert.True(t, bids[i].Amount.GreaterThanOrEqual(bids[i+1].Amount.Add(d("0.5"))))
	}
}

func TestConcurrentBidsSerialize(t *testing.T) {
	f := newFixture(t, 2, "100", "5")
	ctx := context.Background()
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	f.join(t, users...)
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	live := *started.NextPlayerID

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, _ = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: u, Amount: d("6")})
		}(u)
	}
	wg.Wait()

	bids, err := f.svc.ListBids(ctx, f.session.ID, &live, 0)
	require.NoError(t, err)
	require.Len(t, bids, 1, "only the first of equal concurrent bids may be accepted")

	state, err := f.svc.LiveState(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, bids[0].BidderID, *state.Player.HighestBidderID)
}

func TestUnsoldThenTerminatesWhenPoolExhausted(t *testing.T) {
	f := newFixture(t, 2, "10", "5")
	ctx := context.Background()
	f.join(t, "alice")
	_, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)

	res, err := f.svc.CloseRound(ctx, f.session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsold, res.Outcome)
	assert.True(t, res.SessionEnded)

	sess, err := f.svc.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionEnded, sess.Status)
	assert.Nil(t, sess.CurrentSessionPlayerID)
	assert.Nil(t, sess.CurrentRoundEndsAt)
	assert.Equal(t, 1, sess.PlayerCounts[PlayerUnsold])

	ended, err := f.svc.CheckTermination(ctx, f.session.ID)
	require.NoError(t, err)
	assert.True(t, ended)
	again, err := f.svc.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Session, again.Session)
}

func TestLastSaleWithNoActiveBiddersEndsSession(t *testing.T) {
	f := newFixture(t, 1, "10", "5", "5")
	ctx := context.Background()
	f.join(t, "alice")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)

	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: *started.NextPlayerID, BidderID: "alice", Amount: d("5.5")})
	require.NoError(t, err)
	res, err := f.svc.CloseRound(ctx, f.session.ID, nil)
	require.NoError(t, err)
	assert.True(t, res.SessionEnded)
	assert.Nil(t, res.NextPlayerID)

	parts, err := f.svc.ListParticipants(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, ParticipantCompleted, parts[0].Status)
	assert.Equal(t, 0, f.liveCount(t))
}

func TestStuckWinnerIsLiquidated(t *testing.T) {
	f := newFixtureWith(t, d("5.5"), 3, "12", "5", "1", "1")
	ctx := context.Background()
	f.join(t, "alice", "bob")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	first := *started.NextPlayerID

	// Paying 7 leaves 5 for two open slots at 5.5 each, so the purchase is handed back.
	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: first, BidderID: "alice", Amount: d("7")})
	require.NoError(t, err)
	res, err := f.svc.CloseRound(ctx, f.session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSold, res.Outcome)
	require.Len(t, res.Reclaimed, 1)
	assert.Equal(t, first, res.Reclaimed[0].SessionPlayerID)

	sq, err := f.svc.Squad(ctx, f.session.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, sq.Players)
	assert.True(t, sq.Participant.CurrentBalance.Equal(d("12")))
	f.assertLedger(t, "alice")

	// The reclaimed player is the oldest eligible one, so it goes straight back up.
	require.NotNil(t, res.NextPlayerID)
	assert.Equal(t, first, *res.NextPlayerID)
	state, err := f.svc.LiveState(ctx, f.session.ID)
	require.NoError(t, err)
	assert.False(t, state.Player.FinalBidAmount.Valid)
	assert.Nil(t, state.Player.SoldToUserID)
	assert.False(t, state.Player.HighestBidAmount.Valid)

	var entries int
	var net decimal.Decimal
	require.NoError(t, f.pool.QueryRow(ctx, `
		SELECT COUNT(1), COALESCE(SUM(delta), 0) FROM wallet_ledger WHERE session_id = $1 AND user_id = 'alice'
	`, f.session.ID).Scan(&entries, &net))
	assert.Equal(t, 2, entries)
	assert.True(t, net.IsZero())
}

func TestManualCloseIsIdempotentWithDaemon(t *testing.T) {
	f := newFixture(t, 2, "10", "5", "5", "5")
	ctx := context.Background()
	f.join(t, "alice", "bob")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	first := *started.NextPlayerID

	f.clock.Advance(time.Duration(DefaultBidTimerSeconds) * time.Second)
	dm := NewDaemon(f.svc, quietLogger(), time.Second, f.clock)
	report, err := dm.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Advanced)

	res, err := f.svc.CloseRound(ctx, f.session.ID, &first)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.NotEqual(t, first, *res.NextPlayerID)

	report, err = dm.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, TickReport{}, report)
	assert.Equal(t, 1, f.liveCount(t))
}

func TestPushRulesOrderRounds(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.ImportPool(ctx, []PoolImportRow{
		{Name: "Bat One", Skill: SkillBatsman, Category: CategoryGold, BasePrice: d("2")},
		{Name: "Bowl One", Skill: SkillBowler, Category: CategorySilver, BasePrice: d("2")},
		{Name: "Keeper One", Skill: SkillWicketKeeper, Category: CategoryGold, BasePrice: d("2")},
	})
	require.NoError(t, err)
	sess, err := svc.CreateSession(ctx, CreateSessionInput{Name: "Rules", CreatedBy: "admin", AttachPool: true})
	require.NoError(t, err)
	_, err = svc.RegisterParticipant(ctx, RegisterParticipantInput{SessionID: sess.ID, UserID: "alice"})
	require.NoError(t, err)

	bowler := SkillBowler
	_, err = svc.CreatePushRule(ctx, CreatePushRuleInput{SessionID: sess.ID, Skill: &bowler, RemainingCount: 1, Priority: 1})
	require.NoError(t, err)

	started, err := svc.StartSession(ctx, sess.ID)
	require.NoError(t, err)
	state, err := svc.LiveState(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, SkillBowler, state.Player.Skill)
	assert.NotEmpty(t, started.AppliedRuleName)

	rules, err := svc.ListPushRules(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.False(t, rules[0].Active)
	assert.Equal(t, 0, rules[0].RemainingCount)

	res, err := svc.CloseRound(ctx, sess.ID, nil)
	require.NoError(t, err)
	next, err := svc.LiveState(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, *res.NextPlayerID, next.Player.ID)
	assert.Equal(t, "Bat One", next.Player.Name)
}

func TestPauseFreezesDeadline(t *testing.T) {
	f := newFixture(t, 2, "10", "5")
	ctx := context.Background()
	f.join(t, "alice")
	_, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	paused, err := f.svc.PauseSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, paused.PausedRemainingMillis)
	assert.Equal(t, int64(20_000), *paused.PausedRemainingMillis)

	f.clock.Advance(time.Hour)
	ids, err := f.svc.ExpiredSessions(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)

	res, err := f.svc.ResumeSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, res.RoundEndsAt)
	assert.Equal(t, f.clock.Now().UTC().Add(20*time.Second), res.RoundEndsAt.UTC())
}

func TestExitRules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.ImportPool(ctx, []PoolImportRow{
		{Name: "Solo", Skill: SkillBatsman, Category: CategoryGold, BasePrice: d("1")},
		{Name: "Spare", Skill: SkillBatsman, Category: CategoryGold, BasePrice: d("1")},
	})
	require.NoError(t, err)
	sess, err := svc.CreateSession(ctx, CreateSessionInput{
		Name: "Exit", CreatedBy: "admin", MaxSquadSize: 3, MinSquadSize: intPtr(1), InitialWallet: decPtr("50"), AttachPool: true,
	})
	require.NoError(t, err)
	for _, u := range []string{"alice", "bob"} {
		_, err = svc.RegisterParticipant(ctx, RegisterParticipantInput{SessionID: sess.ID, UserID: u})
		require.NoError(t, err)
	}
	_, err = svc.RegisterParticipant(ctx, RegisterParticipantInput{SessionID: sess.ID, UserID: "alice"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = svc.Exit(ctx, sess.ID, "alice")
	require.ErrorIs(t, err, ErrSquadBelowMinimum)

	started, err := svc.StartSession(ctx, sess.ID)
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, BidInput{SessionID: sess.ID, SessionPlayerID: *started.NextPlayerID, BidderID: "alice", Amount: d("2")})
	require.NoError(t, err)
	_, err = svc.CloseRound(ctx, sess.ID, nil)
	require.NoError(t, err)

	state, err := svc.LiveState(ctx, sess.ID)
	require.NoError(t, err)
	_, err = svc.PlaceBid(ctx, BidInput{SessionID: sess.ID, SessionPlayerID: state.Player.ID, BidderID: "alice", Amount: d("2")})
	require.NoError(t, err)
	_, err = svc.Exit(ctx, sess.ID, "alice")
	require.ErrorIs(t, err, ErrHighestBidderCannotExit)

	_, err = svc.PlaceBid(ctx, BidInput{SessionID: sess.ID, SessionPlayerID: state.Player.ID, BidderID: "bob", Amount: d("3")})
	require.NoError(t, err)
	p, err := svc.Exit(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, ParticipantExited, p.Status)
}

func TestStartWithoutPlayersFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, CreateSessionInput{Name: "Empty", CreatedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "empty", sess.Slug)

	_, err = svc.StartSession(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNoPlayersAvailable)

	after, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionNotStarted, after.Status)

	_, err = svc.GetSession(ctx, sess.ID+100)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubCentBidsAreRejected(t *testing.T) {
	f := newFixture(t, 2, "10", "5")
	ctx := context.Background()
	f.join(t, "alice")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	live := *started.NextPlayerID

	// 5.495 would round up to the 5.50 minimum, and 10.004 down to the 10.00 balance.
	for _, amount := range []string{"5.495", "10.004"} {
		_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "alice", Amount: d(amount)})
		require.ErrorIs(t, err, ErrInvalidInput, amount)
	}
	bids, err := f.svc.ListBids(ctx, f.session.ID, &live, 0)
	require.NoError(t, err)
	assert.Empty(t, bids)

	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "alice", Amount: d("5.500")})
	require.NoError(t, err)
}

func TestDaemonSellsExpiredRound(t *testing.T) {
	f := newFixture(t, 2, "10", "5", "5")
	ctx := context.Background()
	f.join(t, "alice", "bob")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	first := *started.NextPlayerID

	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: first, BidderID: "alice", Amount: d("6")})
	require.NoError(t, err)

	dm := NewDaemon(f.svc, quietLogger(), time.Second, f.clock)
	report, err := dm.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, TickReport{}, report, "round is not due yet")

	f.clock.Advance(time.Duration(DefaultBidTimerSeconds) * time.Second)
	report, err = dm.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, TickReport{Expired: 1, Advanced: 1}, report)

	sq, err := f.svc.Squad(ctx, f.session.ID, "alice")
	require.NoError(t, err)
	require.Len(t, sq.Players, 1)
	assert.Equal(t, first, sq.Players[0].SessionPlayerID)
	assert.True(t, sq.Participant.CurrentBalance.Equal(d("4")))
	f.assertLedger(t, "alice")

	state, err := f.svc.LiveState(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Player)
	assert.NotEqual(t, first, state.Player.ID)
	assert.Equal(t, 1, f.liveCount(t))
}

func TestDaemonMovesPastStaleLivePointer(t *testing.T) {
	f := newFixture(t, 2, "10", "5", "5")
	ctx := context.Background()
	f.join(t, "alice")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	stale := *started.NextPlayerID

	_, err = f.pool.Exec(ctx, `UPDATE session_players SET status = 'SOLD' WHERE id = $1`, stale)
	require.NoError(t, err)

	res, err := f.svc.CloseRound(ctx, f.session.ID, &stale)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	sess, err := f.svc.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentSessionPlayerID)
	assert.Equal(t, stale, *sess.CurrentSessionPlayerID)

	f.clock.Advance(time.Duration(DefaultBidTimerSeconds) * time.Second)
	dm := NewDaemon(f.svc, quietLogger(), time.Second, f.clock)
	report, err := dm.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Advanced)

	sess, err = f.svc.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentSessionPlayerID)
	assert.NotEqual(t, stale, *sess.CurrentSessionPlayerID)
	require.NotNil(t, sess.CurrentRoundEndsAt)
	assert.True(t, sess.CurrentRoundEndsAt.After(f.clock.Now()))
	assert.Equal(t, 1, f.liveCount(t))

	report, err = dm.Tick(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, TickReport{}, report)
}

func TestResumeWithoutLivePlayerStartsNextRound(t *testing.T) {
	f := newFixture(t, 2, "10", "5", "5")
	ctx := context.Background()
	f.join(t, "alice")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	first := *started.NextPlayerID

	_, err = f.svc.PauseSession(ctx, f.session.ID)
	require.NoError(t, err)
	// A round that was settled while paused leaves no live pointer behind.
	_, err = f.pool.Exec(ctx, `UPDATE session_players SET status = 'UNSOLD' WHERE id = $1`, first)
	require.NoError(t, err)
	_, err = f.pool.Exec(ctx, `
		UPDATE auction_sessions
		SET current_session_player_id = NULL, current_round_started_at = NULL, current_round_ends_at = NULL
		WHERE id = $1`, f.session.ID)
	require.NoError(t, err)

	res, err := f.svc.ResumeSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionRunning, res.SessionStatus)
	require.NotNil(t, res.NextPlayerID)
	assert.NotEqual(t, first, *res.NextPlayerID)
	require.NotNil(t, res.RoundEndsAt)
	assert.Equal(t, f.clock.Now().UTC().Add(time.Duration(DefaultBidTimerSeconds)*time.Second), res.RoundEndsAt.UTC())
	assert.Equal(t, 1, f.liveCount(t))
}

func TestEndSessionReturnsLivePlayer(t *testing.T) {
	f := newFixture(t, 2, "10", "5", "5")
	ctx := context.Background()
	f.join(t, "alice")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	live := *started.NextPlayerID
	_, err = f.svc.PlaceBid(ctx, BidInput{SessionID: f.session.ID, SessionPlayerID: live, BidderID: "alice", Amount: d("6")})
	require.NoError(t, err)

	ended, err := f.svc.EndSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionEnded, ended.Status)
	assert.Nil(t, ended.CurrentSessionPlayerID)
	assert.NotNil(t, ended.EndedAt)
	assert.Equal(t, 0, f.liveCount(t))

	pending := PlayerPending
	players, err := f.svc.ListSessionPlayers(ctx, f.session.ID, SessionPlayerFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, players, 2)
	for _, p := range players {
		assert.False(t, p.HighestBidAmount.Valid)
		assert.Nil(t, p.HighestBidderID)
	}
	sq, err := f.svc.Squad(ctx, f.session.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, sq.Players)
	f.assertLedger(t, "alice")

	again, err := f.svc.EndSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, ended, again)
}

func TestRequeueUnsold(t *testing.T) {
	f := newFixture(t, 2, "10", "5", "5")
	ctx := context.Background()
	f.join(t, "alice")
	started, err := f.svc.StartSession(ctx, f.session.ID)
	require.NoError(t, err)
	first := *started.NextPlayerID

	res, err := f.svc.CloseRound(ctx, f.session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnsold, res.Outcome)

	n, err := f.svc.RequeueUnsold(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unsold := PlayerUnsold
	left, err := f.svc.ListSessionPlayers(ctx, f.session.ID, SessionPlayerFilter{Status: &unsold})
	require.NoError(t, err)
	assert.Empty(t, left)

	// The requeued player comes back up after the current round.
	res, err = f.svc.CloseRound(ctx, f.session.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, res.NextPlayerID)
	assert.Equal(t, first, *res.NextPlayerID)

	_, err = f.svc.EndSession(ctx, f.session.ID)
	require.NoError(t, err)
	_, err = f.svc.RequeueUnsold(ctx, f.session.ID)
	require.ErrorIs(t, err, ErrSessionClosed)
}

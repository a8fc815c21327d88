package auction

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "NOT_STARTED"
	SessionRunning    SessionStatus = "RUNNING"
	SessionPaused     SessionStatus = "PAUSED"
	SessionEnded      SessionStatus = "ENDED"
	SessionCompleted  SessionStatus = "COMPLETED"
)

func (s SessionStatus) Closed() bool {
	return s == SessionEnded || s == SessionCompleted
}

type PlayerStatus string

const (
	PlayerPending   PlayerStatus = "PENDING"
	PlayerLive      PlayerStatus = "LIVE"
	PlayerSold      PlayerStatus = "SOLD"
	PlayerUnsold    PlayerStatus = "UNSOLD"
	PlayerReclaimed PlayerStatus = "RECLAIMED"
)

// Eligible reports whether the player may be put up for a round.
func (s PlayerStatus) Eligible() bool {
	return s == PlayerPending || s == PlayerReclaimed
}

type ParticipantRole string

const (
	RoleParticipant ParticipantRole = "PARTICIPANT"
	RoleAdmin       ParticipantRole = "ADMIN"
	RoleAuctioneer  ParticipantRole = "AUCTIONEER"
)

type ParticipantStatus string

const (
	ParticipantActive    ParticipantStatus = "ACTIVE"
	ParticipantCompleted ParticipantStatus = "COMPLETED"
	ParticipantExited    ParticipantStatus = "EXITED"
)

type Skill string

const (
	SkillBatsman      Skill = "BATSMAN"
	SkillBowler       Skill = "BOWLER"
	SkillAllRounder   Skill = "ALL_ROUNDER"
	SkillWicketKeeper Skill = "WICKET_KEEPER"
)

var playerStatuses = []PlayerStatus{PlayerPending, PlayerLive, PlayerSold, PlayerUnsold, PlayerReclaimed}

var skills = []Skill{SkillBatsman, SkillBowler, SkillAllRounder, SkillWicketKeeper}

type Category string

const (
	CategoryPlatinum Category = "PLATINUM"
	CategoryGold     Category = "GOLD"
	CategorySilver   Category = "SILVER"
	CategoryBronze   Category = "BRONZE"
	CategoryEmerging Category = "EMERGING"
)

var categories = []Category{CategoryPlatinum, CategoryGold, CategorySilver, CategoryBronze, CategoryEmerging}

func ParseSkill(v string) (Skill, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	for _, s := range skills {
		if string(s) == v {
			return s, nil
		}
	}
	return "", ErrInvalidInput.Withf("unknown skill %q", v)
}

func ParseCategory(v string) (Category, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, c := range categories {
		if string(c) == v {
			return c, nil
		}
	}
	return "", ErrInvalidInput.Withf("unknown category %q", v)
}

func ParsePlayerStatus(v string) (PlayerStatus, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, st := range playerStatuses {
		if string(st) == v {
			return st, nil
		}
	}
	return "", ErrInvalidInput.Withf("unknown player status %q", v)
}

// moneyScale is the number of decimal places money columns hold.
const moneyScale = 2

// checkMoney rejects amounts finer than the money columns hold.
func checkMoney(field string, v decimal.Decimal) error {
	if !v.Equal(v.Round(moneyScale)) {
		return ErrInvalidInput.Withf("%s must have at most %d decimal places", field, moneyScale)
	}
	return nil
}

func ParseRole(v string) (ParticipantRole, error) {
	switch ParticipantRole(strings.ToUpper(strings.TrimSpace(v))) {
	case "", RoleParticipant:
		return RoleParticipant, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleAuctioneer:
		return RoleAuctioneer, nil
	}
	return "", ErrInvalidInput.Withf("unknown role %q", v)
}

const (
	DefaultMaxSquadSize    = 15
	DefaultMinSquadSize    = 11
	DefaultBidTimerSeconds = 30
)

var (
	DefaultInitialWallet   = decimal.NewFromInt(100)
	DefaultMinBidIncrement = decimal.RequireFromString("0.5")
	DefaultMinPlayerPrice  = decimal.RequireFromString("5.5")
)

// MinimumNextBid is the smallest amount the next bid may carry.
func MinimumNextBid(basePrice decimal.Decimal, highest decimal.NullDecimal, increment decimal.Decimal) decimal.Decimal {
	current := basePrice
	if highest.Valid {
		current = highest.Decimal
	}
	return current.Add(increment)
}

type bidCheck struct {
	SessionStatus SessionStatus
	LivePlayerID  *int64
	TargetID      int64
	PlayerStatus  PlayerStatus
	RoundEndsAt   *time.Time
	Now           time.Time
	BasePrice     decimal.Decimal
	Highest       decimal.NullDecimal
	Increment     decimal.Decimal
	Amount        decimal.Decimal
}

func (c bidCheck) validate() error {
	if c.SessionStatus != SessionRunning {
		return ErrAuctionNotRunning
	}
	if c.LivePlayerID == nil || *c.LivePlayerID != c.TargetID || c.PlayerStatus != PlayerLive {
		return ErrPlayerNotLive
	}
	if c.RoundEndsAt != nil && !c.Now.Before(*c.RoundEndsAt) {
		return ErrRoundExpired
	}
	minBid := MinimumNextBid(c.BasePrice, c.Highest, c.Increment)
	if c.Amount.LessThan(minBid) {
		return ErrBidTooLow.
			Withf("bid %s is below the minimum of %s", c.Amount.StringFixed(2), minBid.StringFixed(2)).
			With(map[string]string{"minimum_bid": minBid.StringFixed(2)})
	}
	return nil
}

// IsStuck reports whether balance can no longer fill the open squad slots at minPrice each.
func IsStuck(balance decimal.Decimal, maxSquadSize, squadSize int, minPrice decimal.Decimal) bool {
	open := maxSquadSize - squadSize
	if open <= 0 {
		return false
	}
	return balance.LessThan(minPrice.Mul(decimal.NewFromInt(int64(open))))
}

// planReleases picks the squad entries to give back, most expensive first (newest on ties),
// until the owner is no longer stuck or owns nothing.
func planReleases(balance decimal.Decimal, maxSquadSize int, minPrice decimal.Decimal, squad []SquadEntry) []SquadEntry {
	owned := make([]SquadEntry, len(squad))
	copy(owned, squad)
	sort.SliceStable(owned, func(i, j int) bool {
		a, b := owned[i], owned[j]
		if !a.PurchasePrice.Equal(b.PurchasePrice) {
			return a.PurchasePrice.GreaterThan(b.PurchasePrice)
		}
		if !a.AcquiredAt.Equal(b.AcquiredAt) {
			return a.AcquiredAt.After(b.AcquiredAt)
		}
		return a.ID > b.ID
	})

	var released []SquadEntry
	size := len(owned)
	for len(owned) > 0 && IsStuck(balance, maxSquadSize, size, minPrice) {
		next := owned[0]
		owned = owned[1:]
		released = append(released, next)
		balance = balance.Add(next.PurchasePrice)
		size--
	}
	return released
}

type candidate struct {
	ID        int64
	Skill     Skill
	Category  Category
	CreatedAt time.Time
}

func (r PushRule) matches(c candidate) bool {
	if r.Skill != nil && *r.Skill != c.Skill {
		return false
	}
	if r.Category != nil && *r.Category != c.Category {
		return false
	}
	return true
}

type sequencePlan struct {
	PlayerID  int64
	Found     bool
	RuleID    *int64
	Exhausted []int64
}

// planNext walks active rules in (priority, created_at, id) order. A rule that finds no
// candidate is spent; the first rule that does find one yields the oldest match. Without a
// matching rule the oldest candidate wins.
func planNext(rules []PushRule, candidates []candidate) sequencePlan {
	ordered := make([]PushRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	fifo := make([]candidate, len(candidates))
	copy(fifo, candidates)
	sort.SliceStable(fifo, func(i, j int) bool {
		if !fifo[i].CreatedAt.Equal(fifo[j].CreatedAt) {
			return fifo[i].CreatedAt.Before(fifo[j].CreatedAt)
		}
		return fifo[i].ID < fifo[j].ID
	})

	var plan sequencePlan
	for _, rule := range ordered {
		if rule.RemainingCount <= 0 {
			plan.Exhausted = append(plan.Exhausted, rule.ID)
			continue
		}
		for _, c := range fifo {
			if rule.matches(c) {
				id := rule.ID
				plan.PlayerID, plan.Found, plan.RuleID = c.ID, true, &id
				return plan
			}
		}
		plan.Exhausted = append(plan.Exhausted, rule.ID)
	}
	if len(fifo) > 0 {
		plan.PlayerID, plan.Found = fifo[0].ID, true
	}
	return plan
}

func shouldEnd(eligiblePlayers, activeBidders int) bool {
	return eligiblePlayers == 0 || activeBidders == 0
}

func remainingMillis(endsAt *time.Time, now time.Time) int64 {
	if endsAt == nil {
		return 0
	}
	left := endsAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left.Milliseconds()
}

func (in CreateSessionInput) normalize() (CreateSessionInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, ErrInvalidInput.Withf("session name is required")
	}
	if len(in.Name) > 120 {
		return in, ErrInvalidInput.Withf("session name too long (max 120 chars)")
	}
	if in.MaxSquadSize == 0 {
		in.MaxSquadSize = DefaultMaxSquadSize
	}
	if in.MinSquadSize == nil {
		minSize := DefaultMinSquadSize
		if minSize > in.MaxSquadSize {
			minSize = in.MaxSquadSize
		}
		in.MinSquadSize = &minSize
	}
	if in.BidTimerSeconds == 0 {
		in.BidTimerSeconds = DefaultBidTimerSeconds
	}
	if in.InitialWallet == nil {
		in.InitialWallet = &DefaultInitialWallet
	}
	if in.MinBidIncrement == nil {
		in.MinBidIncrement = &DefaultMinBidIncrement
	}
	switch {
	case in.MaxSquadSize < 1:
		return in, ErrInvalidInput.Withf("max_squad_size must be >= 1")
	case *in.MinSquadSize < 0 || *in.MinSquadSize > in.MaxSquadSize:
		return in, ErrInvalidInput.Withf("min_squad_size must be between 0 and max_squad_size")
	case in.BidTimerSeconds < 1:
		return in, ErrInvalidInput.Withf("bid_timer_seconds must be >= 1")
	case in.InitialWallet.IsNegative():
		return in, ErrInvalidInput.Withf("initial_wallet must be >= 0")
	case !in.MinBidIncrement.IsPositive():
		return in, ErrInvalidInput.Withf("min_bid_increment must be > 0")
	}
	if err := checkMoney("initial_wallet", *in.InitialWallet); err != nil {
		return in, err
	}
	if err := checkMoney("min_bid_increment", *in.MinBidIncrement); err != nil {
		return in, err
	}
	return in, nil
}

func (row PoolImportRow) normalize() (PoolImportRow, error) {
	row.Name = strings.TrimSpace(row.Name)
	row.Country = strings.TrimSpace(row.Country)
	if row.ExternalCode != nil {
		code := strings.TrimSpace(*row.ExternalCode)
		if code == "" {
			row.ExternalCode = nil
		} else {
			row.ExternalCode = &code
		}
	}
	if row.Name == "" {
		return row, ErrInvalidInput.Withf("player name is required")
	}
	skill, err := ParseSkill(string(row.Skill))
	if err != nil {
		return row, err
	}
	category, err := ParseCategory(string(row.Category))
	if err != nil {
		return row, err
	}
	row.Skill, row.Category = skill, category
	if row.BasePrice.IsNegative() {
		return row, ErrInvalidInput.Withf("base_price must be >= 0 for %s", row.Name)
	}
	if err := checkMoney("base_price", row.BasePrice); err != nil {
		return row, err
	}
	if row.Active == nil {
		active := true
		row.Active = &active
	}
	return row, nil
}

func (in CreatePushRuleInput) normalize() (CreatePushRuleInput, error) {
	if in.Skill != nil {
		s, err := ParseSkill(string(*in.Skill))
		if err != nil {
			return in, err
		}
		in.Skill = &s
	}
	if in.Category != nil {
		c, err := ParseCategory(string(*in.Category))
		if err != nil {
			return in, err
		}
		in.Category = &c
	}
	if in.RemainingCount < 1 {
		return in, ErrInvalidInput.Withf("remaining_count must be >= 1")
	}
	return in, nil
}

func describeRule(r PushRule) string {
	skill, category := "*", "*"
	if r.Skill != nil {
		skill = string(*r.Skill)
	}
	if r.Category != nil {
		category = string(*r.Category)
	}
	return fmt.Sprintf("rule %d (%s/%s x%d)", r.ID, skill, category, r.RemainingCount)
}

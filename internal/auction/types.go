package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

type PoolPlayer struct {
	ID           int64           `json:"id" db:"id"`
	ExternalCode *string         `json:"external_code,omitempty" db:"external_code"`
	Name         string          `json:"name" db:"name"`
	Country      string          `json:"country" db:"country"`
	Skill        Skill           `json:"skill" db:"skill"`
	Category     Category        `json:"category" db:"category"`
	BasePrice    decimal.Decimal `json:"base_price" db:"base_price"`
	Active       bool            `json:"active" db:"active"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

type PoolImportRow struct {
	ExternalCode *string         `json:"external_code"`
	Name         string          `json:"name"`
	Country      string          `json:"country"`
	Skill        Skill           `json:"skill"`
	Category     Category        `json:"category"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Active       *bool           `json:"active"`
}

type PoolImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

type PoolFilter struct {
	Skill      *Skill
	Category   *Category
	Search     string
	ActiveOnly bool
}

type SessionConfig struct {
	MaxSquadSize    int             `json:"max_squad_size"`
	MinSquadSize    int             `json:"min_squad_size"`
	InitialWallet   decimal.Decimal `json:"initial_wallet"`
	BidTimerSeconds int             `json:"bid_timer_seconds"`
	MinBidIncrement decimal.Decimal `json:"min_bid_increment"`
}

type Session struct {
	ID                     int64         `json:"id"`
	Name                   string        `json:"name"`
	Slug                   string        `json:"slug"`
	Status                 SessionStatus `json:"status"`
	Config                 SessionConfig `json:"config"`
	CurrentSessionPlayerID *int64        `json:"current_session_player_id"`
	CurrentRoundStartedAt  *time.Time    `json:"current_round_started_at"`
	CurrentRoundEndsAt     *time.Time    `json:"current_round_ends_at"`
	PausedRemainingMillis  *int64        `json:"paused_remaining_ms,omitempty"`
	CreatedBy              string        `json:"created_by"`
	CreatedAt              time.Time     `json:"created_at"`
	EndedAt                *time.Time    `json:"ended_at,omitempty"`
}

type SessionSummary struct {
	Session
	PlayerCounts     map[PlayerStatus]int `json:"player_counts"`
	TotalPlayers     int                  `json:"total_players"`
	ParticipantCount int                  `json:"participant_count"`
}

type CreateSessionInput struct {
	Name            string
	CreatedBy       string
	MaxSquadSize    int
	MinSquadSize    *int
	InitialWallet   *decimal.Decimal
	BidTimerSeconds int
	MinBidIncrement *decimal.Decimal
	AttachPool      bool
}

type SessionPlayer struct {
	ID               int64               `json:"id"`
	SessionID        int64               `json:"session_id"`
	PoolPlayerID     int64               `json:"pool_player_id"`
	Name             string              `json:"name"`
	Country          string              `json:"country"`
	Skill            Skill               `json:"skill"`
	Category         Category            `json:"category"`
	Status           PlayerStatus        `json:"status"`
	BasePrice        decimal.Decimal     `json:"base_price"`
	FinalBidAmount   decimal.NullDecimal `json:"final_bid_amount"`
	SoldToUserID     *string             `json:"sold_to_user_id"`
	HighestBidAmount decimal.NullDecimal `json:"highest_bid_amount"`
	HighestBidderID  *string             `json:"highest_bidder_id"`
	CreatedAt        time.Time           `json:"created_at"`
}

type SessionPlayerFilter struct {
	Status   *PlayerStatus
	Skill    *Skill
	Category *Category
}

type AttachPlayersInput struct {
	PoolPlayerIDs []int64
	AllActive     bool
}

type Participant struct {
	SessionID      int64             `json:"session_id"`
	UserID         string            `json:"user_id"`
	DisplayName    string            `json:"display_name"`
	Role           ParticipantRole   `json:"role"`
	Status         ParticipantStatus `json:"status"`
	InitialAmount  decimal.Decimal   `json:"initial_amount"`
	CurrentBalance decimal.Decimal   `json:"current_balance"`
	SquadSize      int               `json:"squad_size"`
	JoinedAt       time.Time         `json:"joined_at"`
}

type RegisterParticipantInput struct {
	SessionID   int64
	UserID      string
	DisplayName string
	Role        ParticipantRole
}

type SquadEntry struct {
	ID              int64           `json:"id"`
	SessionPlayerID int64           `json:"session_player_id"`
	Name            string          `json:"name"`
	Skill           Skill           `json:"skill"`
	Category        Category        `json:"category"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	AcquiredAt      time.Time       `json:"acquired_at"`
}

type Squad struct {
	Participant Participant     `json:"participant"`
	Players     []SquadEntry    `json:"players"`
	Spent       decimal.Decimal `json:"spent"`
	// Balanced holds the ledger identity: balance + spent == initial amount.
	Balanced bool `json:"balanced"`
}

type PushRule struct {
	ID             int64     `json:"id"`
	SessionID      int64     `json:"session_id"`
	Skill          *Skill    `json:"skill"`
	Category       *Category `json:"category"`
	RemainingCount int       `json:"remaining_count"`
	Priority       int       `json:"priority"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreatePushRuleInput struct {
	SessionID      int64
	Skill          *Skill
	Category       *Category
	RemainingCount int
	Priority       int
}

type Bid struct {
	ID              int64           `json:"id"`
	SessionID       int64           `json:"session_id"`
	SessionPlayerID int64           `json:"session_player_id"`
	BidderID        string          `json:"bidder_id"`
	Amount          decimal.Decimal `json:"amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

type BidInput struct {
	SessionID       int64
	SessionPlayerID int64
	BidderID        string
	Amount          decimal.Decimal
}

type BidResult struct {
	Bid        Bid             `json:"bid"`
	MinimumBid decimal.Decimal `json:"next_minimum_bid"`
	EndsAt     *time.Time      `json:"round_ends_at"`
}

type LiveState struct {
	SessionID       int64           `json:"session_id"`
	Status          SessionStatus   `json:"status"`
	Player          *SessionPlayer  `json:"player"`
	NextMinimumBid  decimal.Decimal `json:"next_minimum_bid"`
	RoundStartedAt  *time.Time      `json:"round_started_at"`
	RoundEndsAt     *time.Time      `json:"round_ends_at"`
	RemainingMillis int64           `json:"time_remaining_ms"`
	RecentBids      []Bid           `json:"recent_bids"`
	ServerTime      time.Time       `json:"server_time"`
}

type Outcome string

const (
	OutcomeSold    Outcome = "SOLD"
	OutcomeUnsold  Outcome = "UNSOLD"
	OutcomeSkipped Outcome = "SKIPPED"
)

type Release struct {
	SessionPlayerID int64           `json:"session_player_id"`
	Refund          decimal.Decimal `json:"refund"`
}

type StuckResolution struct {
	UserID     string          `json:"user_id"`
	WasStuck   bool            `json:"was_stuck"`
	Released   []Release       `json:"released"`
	NewBalance decimal.Decimal `json:"new_balance"`
	SquadSize  int             `json:"squad_size"`
}

// RoundResult describes what one close-and-advance cycle did.
type RoundResult struct {
	SessionID       int64               `json:"session_id"`
	ClosedPlayerID  *int64              `json:"closed_session_player_id"`
	Outcome         Outcome             `json:"outcome"`
	SoldTo          *string             `json:"sold_to_user_id,omitempty"`
	Price           decimal.NullDecimal `json:"price"`
	Reclaimed       []Release           `json:"reclaimed,omitempty"`
	NextPlayerID    *int64              `json:"next_session_player_id"`
	SessionEnded    bool                `json:"session_ended"`
	SessionStatus   SessionStatus       `json:"session_status"`
	RoundEndsAt     *time.Time          `json:"round_ends_at,omitempty"`
	AppliedRuleName string              `json:"applied_rule,omitempty"`
}

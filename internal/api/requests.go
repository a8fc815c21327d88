package api

import (
	"strings"

	"crickbid/internal/auction"

	"github.com/shopspring/decimal"
)

// Request bodies are decoded strictly and validated here before the engine sees them.

type importPoolRequest struct {
	Players []auction.PoolImportRow `json:"players"`
}

func (r importPoolRequest) validate() error {
	if len(r.Players) == 0 {
		return auction.ErrInvalidInput.Withf("players array must not be empty")
	}
	return nil
}

type createSessionRequest struct {
	Name            string           `json:"name"`
	MaxSquadSize    int              `json:"max_squad_size"`
	MinSquadSize    *int             `json:"min_squad_size"`
	InitialWallet   *decimal.Decimal `json:"initial_wallet"`
	BidTimerSeconds int              `json:"bid_timer_seconds"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment"`
	AttachPool      bool             `json:"attach_pool"`
}

func (r createSessionRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return auction.ErrInvalidInput.Withf("name is required")
	}
	return nil
}

func (r createSessionRequest) input(createdBy string) auction.CreateSessionInput {
	return auction.CreateSessionInput{
		Name:            r.Name,
		CreatedBy:       createdBy,
		MaxSquadSize:    r.MaxSquadSize,
		MinSquadSize:    r.MinSquadSize,
		InitialWallet:   r.InitialWallet,
		BidTimerSeconds: r.BidTimerSeconds,
		MinBidIncrement: r.MinBidIncrement,
		AttachPool:      r.AttachPool,
	}
}

type attachPlayersRequest struct {
	PoolPlayerIDs []int64 `json:"pool_player_ids"`
	AllActive     bool    `json:"all_active"`
}

func (r attachPlayersRequest) validate() error {
	if r.AllActive == (len(r.PoolPlayerIDs) > 0) {
		return auction.ErrInvalidInput.Withf("give either pool_player_ids or all_active")
	}
	return nil
}

type registerParticipantRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (r registerParticipantRequest) validate() error {
	if len(r.DisplayName) > 80 {
		return auction.ErrInvalidInput.Withf("display_name too long (max 80 chars)")
	}
	_, err := auction.ParseRole(r.Role)
	return err
}

type bidRequest struct {
	SessionPlayerID int64           `json:"session_player_id"`
	Amount          decimal.Decimal `json:"amount"`
}

func (r bidRequest) validate() error {
	if r.SessionPlayerID <= 0 {
		return auction.ErrInvalidInput.Withf("session_player_id is required")
	}
	if !r.Amount.IsPositive() {
		return auction.ErrInvalidInput.Withf("amount must be > 0")
	}
	return nil
}

type closeRoundRequest struct {
	SessionPlayerID *int64 `json:"session_player_id"`
}

func (r closeRoundRequest) validate() error {
	if r.SessionPlayerID != nil && *r.SessionPlayerID <= 0 {
		return auction.ErrInvalidInput.Withf("session_player_id must be positive")
	}
	return nil
}

type pushRuleRequest struct {
	Skill          *string `json:"skill"`
	Category       *string `json:"category"`
	RemainingCount int     `json:"remaining_count"`
	Priority       int     `json:"priority"`
}

func (r pushRuleRequest) validate() error {
	if r.RemainingCount < 1 {
		return auction.ErrInvalidInput.Withf("remaining_count must be >= 1")
	}
	return nil
}

func (r pushRuleRequest) input(sessionID int64) (auction.CreatePushRuleInput, error) {
	in := auction.CreatePushRuleInput{SessionID: sessionID, RemainingCount: r.RemainingCount, Priority: r.Priority}
	if r.Skill != nil && strings.TrimSpace(*r.Skill) != "" {
		s, err := auction.ParseSkill(*r.Skill)
		if err != nil {
			return in, err
		}
		in.Skill = &s
	}
	if r.Category != nil && strings.TrimSpace(*r.Category) != "" {
		c, err := auction.ParseCategory(*r.Category)
		if err != nil {
			return in, err
		}
		in.Category = &c
	}
	return in, nil
}

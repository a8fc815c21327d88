package auction

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindIntegrity  ErrorKind = "integrity"
	KindNotFound   ErrorKind = "not_found"
)

// Error is a rejection with a stable Reason clients can switch on.
type Error struct {
	Kind    ErrorKind
	Reason  string
	Msg     string
	Details map[string]string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches on Reason so detailed copies still satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Msg = fmt.Sprintf(format, args...)
	return &cp
}

func (e *Error) With(details map[string]string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

var (
	ErrInvalidInput = &Error{Kind: KindValidation, Reason: "INVALID_INPUT", Msg: "invalid input"}
	ErrBidTooLow    = &Error{Kind: KindValidation, Reason: "BID_TOO_LOW", Msg: "bid is below the minimum increment"}

	ErrAuctionNotRunning       = &Error{Kind: KindConflict, Reason: "AUCTION_NOT_RUNNING", Msg: "auction is not running"}
	ErrPlayerNotLive           = &Error{Kind: KindConflict, Reason: "PLAYER_NOT_LIVE", Msg: "player is not live"}
	ErrRoundExpired            = &Error{Kind: KindConflict, Reason: "ROUND_EXPIRED", Msg: "round deadline has passed"}
	ErrNotParticipant          = &Error{Kind: KindConflict, Reason: "NOT_A_PARTICIPANT", Msg: "user is not a bidding participant in this session"}
	ErrParticipantNotActive    = &Error{Kind: KindConflict, Reason: "PARTICIPANT_NOT_ACTIVE", Msg: "participant is no longer active"}
	ErrInsufficientFunds       = &Error{Kind: KindConflict, Reason: "INSUFFICIENT_FUNDS", Msg: "bid exceeds wallet balance"}
	ErrSessionAlreadyStarted   = &Error{Kind: KindConflict, Reason: "SESSION_ALREADY_STARTED", Msg: "session has already been started"}
	ErrNoPlayersAvailable      = &Error{Kind: KindConflict, Reason: "NO_PLAYERS_AVAILABLE", Msg: "no pending players in session"}
	ErrNoLivePlayer            = &Error{Kind: KindConflict, Reason: "NO_LIVE_PLAYER", Msg: "no live player in session"}
	ErrInvalidTransition       = &Error{Kind: KindConflict, Reason: "INVALID_STATE", Msg: "operation not allowed in current session state"}
	ErrSessionClosed           = &Error{Kind: KindConflict, Reason: "SESSION_CLOSED", Msg: "session has ended"}
	ErrSquadBelowMinimum       = &Error{Kind: KindConflict, Reason: "SQUAD_BELOW_MINIMUM", Msg: "squad is below the minimum size required to exit"}
	ErrHighestBidderCannotExit = &Error{Kind: KindConflict, Reason: "HIGHEST_BIDDER_CANNOT_EXIT", Msg: "current highest bidder cannot exit"}

	ErrAlreadyExists   = &Error{Kind: KindIntegrity, Reason: "ALREADY_EXISTS", Msg: "record already exists"}
	ErrWalletOverdrawn = &Error{Kind: KindIntegrity, Reason: "WALLET_OVERDRAWN", Msg: "wallet balance would go negative"}

	ErrSessionNotFound     = &Error{Kind: KindNotFound, Reason: "SESSION_NOT_FOUND", Msg: "session not found"}
	ErrPlayerNotFound      = &Error{Kind: KindNotFound, Reason: "PLAYER_NOT_FOUND", Msg: "player not found"}
	ErrParticipantNotFound = &Error{Kind: KindNotFound, Reason: "PARTICIPANT_NOT_FOUND", Msg: "participant not found"}
	ErrRuleNotFound        = &Error{Kind: KindNotFound, Reason: "RULE_NOT_FOUND", Msg: "push rule not found"}
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

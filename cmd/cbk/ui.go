package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"crickbid/internal/auction"
	cl "crickbid/internal/cli"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

var reasonText = map[string]string{
	"BID_TOO_LOW":                "Bid too low",
	"AUCTION_NOT_RUNNING":        "The auction is not running",
	"PLAYER_NOT_LIVE":            "That player is no longer up",
	"ROUND_EXPIRED":              "Too late, the round has closed",
	"INSUFFICIENT_FUNDS":         "Not enough in your wallet",
	"NOT_A_PARTICIPANT":          "You are not a bidder in this session",
	"PARTICIPANT_NOT_ACTIVE":     "Your squad is closed for bidding",
	"SESSION_ALREADY_STARTED":    "Session already started",
	"NO_PLAYERS_AVAILABLE":       "No players left to auction",
	"NO_LIVE_PLAYER":             "No live round",
	"SQUAD_BELOW_MINIMUM":        "Squad is below the minimum needed to exit",
	"HIGHEST_BIDDER_CANNOT_EXIT": "You hold the highest bid",
	"FORBIDDEN":                  "Admin only",
}

func describeReason(reason string, err error) string {
	text, ok := reasonText[reason]
	if !ok {
		return err.Error()
	}
	var ae *cl.APIError
	if errors.As(err, &ae) && ae.Details["minimum_bid"] != "" {
		return fmt.Sprintf("%s (minimum %s).", text, ae.Details["minimum_bid"])
	}
	return text + "."
}

func renderPool(players []auction.PoolPlayer) {
	accent.Println("\n== PLAYER POOL ==")
	if len(players) == 0 {
		printInfo("No players found.")
		return
	}
	fmt.Printf("%-6s %-24s %-14s %-9s %10s\n", "ID", "NAME", "SKILL", "CATEGORY", "BASE")
	for _, p := range players {
		fmt.Printf("%-6d %-24s %-14s %-9s %10s\n", p.ID, truncate(p.Name, 24), p.Skill, p.Category, formatMoney(p.BasePrice))
	}
	fmt.Println()
}

func renderSessions(sessions []auction.SessionSummary) {
	accent.Println("\n== SESSIONS ==")
	if len(sessions) == 0 {
		printInfo("No sessions yet.")
		return
	}
	fmt.Printf("%-6s %-24s %-12s %8s %8s %8s\n", "ID", "NAME", "STATUS", "PLAYERS", "SOLD", "BIDDERS")
	for _, s := range sessions {
		fmt.Printf("%-6d %-24s %-12s %8d %8d %8d\n",
			s.ID,
			truncate(s.Name, 24),
			colorizeStatus(s.Status),
			s.TotalPlayers,
			s.PlayerCounts[auction.PlayerSold],
			s.ParticipantCount,
		)
	}
	fmt.Println()
}

func renderSessionDetail(s auction.SessionSummary) {
	accent.Printf("\n== %s (#%d) ==\n", s.Name, s.ID)
	fmt.Printf("Status:     %s\n", colorizeStatus(s.Status))
	fmt.Printf("Squad:      %d-%d players\n", s.Config.MinSquadSize, s.Config.MaxSquadSize)
	fmt.Printf("Wallet:     %s\n", formatMoney(s.Config.InitialWallet))
	fmt.Printf("Timer:      %ds, increment %s\n", s.Config.BidTimerSeconds, formatMoney(s.Config.MinBidIncrement))
	fmt.Printf("Bidders:    %d\n", s.ParticipantCount)
	statuses := []auction.PlayerStatus{auction.PlayerPending, auction.PlayerLive, auction.PlayerSold, auction.PlayerUnsold, auction.PlayerReclaimed}
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, fmt.Sprintf("%s %d", strings.ToLower(string(st)), s.PlayerCounts[st]))
	}
	fmt.Printf("Players:    %s\n\n", strings.Join(parts, ", "))
}

func renderLive(state auction.LiveState) {
	accent.Printf("\n== SESSION %d: %s ==\n", state.SessionID, colorizeStatus(state.Status))
	if state.Player == nil {
		printInfo("No live player.")
		return
	}
	p := state.Player
	fmt.Printf("%s  %s / %s  base %s\n", neutral.Sprint(p.Name), p.Skill, p.Category, formatMoney(p.BasePrice))
	if p.HighestBidAmount.Valid && p.HighestBidderID != nil {
		fmt.Printf("Highest:  %s by %s\n", success.Sprint(formatMoney(p.HighestBidAmount.Decimal)), *p.HighestBidderID)
	} else {
		fmt.Println("Highest:  no bids yet")
	}
	fmt.Printf("Next min: %s\n", formatMoney(state.NextMinimumBid))
	left := time.Duration(state.RemainingMillis) * time.Millisecond
	clock := left.Round(100 * time.Millisecond).String()
	if left <= 5*time.Second {
		clock = danger.Sprint(clock)
	}
	fmt.Printf("Time:     %s\n", clock)
	for _, b := range state.RecentBids {
		fmt.Printf("  %s  %-16s %s\n", b.CreatedAt.Local().Format("15:04:05"), truncate(b.BidderID, 16), formatMoney(b.Amount))
	}
	fmt.Println()
}

func renderRound(r auction.RoundResult) {
	switch r.Outcome {
	case auction.OutcomeSold:
		printSuccess(fmt.Sprintf("Player %d sold to %s for %s.", *r.ClosedPlayerID, *r.SoldTo, formatMoney(r.Price.Decimal)))
	case auction.OutcomeUnsold:
		printWarn(fmt.Sprintf("Player %d went unsold.", *r.ClosedPlayerID))
	}
	for _, rel := range r.Reclaimed {
		printWarn(fmt.Sprintf("Player %d reclaimed, %s refunded.", rel.SessionPlayerID, formatMoney(rel.Refund)))
	}
	switch {
	case r.SessionEnded:
		accent.Println("Auction ended.")
	case r.NextPlayerID != nil:
		printInfo(fmt.Sprintf("Player %d is up.", *r.NextPlayerID))
	}
}

func renderSquad(sq auction.Squad) {
	p := sq.Participant
	accent.Printf("\n== %s (%s) ==\n", p.DisplayName, p.Status)
	fmt.Printf("%-24s %-14s %-9s %10s\n", "NAME", "SKILL", "CATEGORY", "PRICE")
	for _, e := range sq.Players {
		fmt.Printf("%-24s %-14s %-9s %10s\n", truncate(e.Name, 24), e.Skill, e.Category, formatMoney(e.PurchasePrice))
	}
	fmt.Printf("\nSpent %s, balance %s of %s\n", formatMoney(sq.Spent), formatMoney(p.CurrentBalance), formatMoney(p.InitialAmount))
	if !sq.Balanced {
		printError("Ledger mismatch: balance and spend do not add up to the initial wallet.")
	}
	fmt.Println()
}

func colorizeStatus(s auction.SessionStatus) string {
	switch s {
	case auction.SessionRunning:
		return success.Sprint(s)
	case auction.SessionPaused:
		return warn.Sprint(s)
	case auction.SessionEnded, auction.SessionCompleted:
		return danger.Sprint(s)
	default:
		return neutral.Sprint(s)
	}
}

func formatMoney(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

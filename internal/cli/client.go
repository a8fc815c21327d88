package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crickbid/internal/auction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Identity Identity
}

// APIError is a non-2xx response. Reason carries the server's machine-readable code when present.
type APIError struct {
	Status  int
	Reason  string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// ReasonOf returns the server reason behind err, or "".
func ReasonOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

func NewClient(baseURL string, id Identity) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Identity: id,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func sessionPath(sessionID int64, suffix string) string {
	return "/v1/sessions/" + strconv.FormatInt(sessionID, 10) + suffix
}

func (c *Client) ImportPool(ctx context.Context, rows []auction.PoolImportRow) (auction.PoolImportResult, error) {
	var out auction.PoolImportResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/player-pool/import", map[string]any{"players": rows}, &out)
	return out, err
}

func (c *Client) ListPool(ctx context.Context, skill, category, search string) ([]auction.PoolPlayer, error) {
	q := url.Values{}
	if skill != "" {
		q.Set("skill", skill)
	}
	if category != "" {
		q.Set("category", category)
	}
	if search != "" {
		q.Set("q", search)
	}
	path := "/v1/player-pool"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Players []auction.PoolPlayer `json:"players"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Players, err
}

type CreateSessionRequest struct {
	Name            string           `json:"name"`
	MaxSquadSize    int              `json:"max_squad_size,omitempty"`
	MinSquadSize    *int             `json:"min_squad_size,omitempty"`
	InitialWallet   *decimal.Decimal `json:"initial_wallet,omitempty"`
	BidTimerSeconds int              `json:"bid_timer_seconds,omitempty"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment,omitempty"`
	AttachPool      bool             `json:"attach_pool"`
}

func (c *Client) CreateSession(ctx context.Context, in CreateSessionRequest) (auction.Session, error) {
	var out auction.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", in, &out)
	return out, err
}

func (c *Client) ListSessions(ctx context.Context) ([]auction.SessionSummary, error) {
	var out struct {
		Sessions []auction.SessionSummary `json:"sessions"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions", nil, &out)
	return out.Sessions, err
}

func (c *Client) GetSession(ctx context.Context, sessionID int64) (auction.SessionSummary, error) {
	var out auction.SessionSummary
	err := c.jsonRequest(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &out)
	return out, err
}

func (c *Client) StartSession(ctx context.Context, sessionID int64) (auction.RoundResult, error) {
	var out auction.RoundResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(sessionID, "/start"), nil, &out)
	return out, err
}

func (c *Client) ResumeSession(ctx context.Context, sessionID int64) (auction.RoundResult, error) {
	var out auction.RoundResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(sessionID, "/resume"), nil, &out)
	return out, err
}

// SessionAction posts one of pause, end or complete.
func (c *Client) SessionAction(ctx context.Context, sessionID int64, action string) (auction.Session, error) {
	switch action {
	case "pause", "end", "complete":
	default:
		return auction.Session{}, fmt.Errorf("unknown session action %q", action)
	}
	var out auction.Session
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(sessionID, "/"+action), nil, &out)
	return out, err
}

func (c *Client) Join(ctx context.Context, sessionID int64, displayName string) (auction.Participant, error) {
	var out auction.Participant
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(sessionID, "/participants"), map[string]any{
		"display_name": displayName,
	}, &out)
	return out, err
}

func (c *Client) Live(ctx context.Context, sessionID int64) (auction.LiveState, error) {
	var out auction.LiveState
	err := c.jsonRequest(ctx, http.MethodGet, sessionPath(sessionID, "/live"), nil, &out)
	return out, err
}

func (c *Client) Bid(ctx context.Context, sessionID, sessionPlayerID int64, amount decimal.Decimal) (auction.BidResult, error) {
	var out auction.BidResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(sessionID, "/bids"), map[string]any{
		"session_player_id": sessionPlayerID,
		"amount":            amount,
	}, &out)
	return out, err
}

func (c *Client) CloseRound(ctx context.Context, sessionID int64, expected *int64) (auction.RoundResult, error) {
	var body any
	if expected != nil {
		body = map[string]any{"session_player_id": *expected}
	}
	var out auction.RoundResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(sessionID, "/live/close"), body, &out)
	return out, err
}

func (c *Client) Squad(ctx context.Context, sessionID int64, userID string) (auction.Squad, error) {
	if userID == "" {
		userID = "me"
	}
	var out auction.Squad
	err := c.jsonRequest(ctx, http.MethodGet, sessionPath(sessionID, "/participants/"+url.PathEscape(userID)+"/squad"), nil, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.Identity.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+c.Identity.AccessToken)
	case c.Identity.UserID != "":
		req.Header.Set("X-User-ID", c.Identity.UserID)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var payload struct {
			Error   string            `json:"error"`
			Reason  string            `json:"reason"`
			Details map[string]string `json:"details"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message, apiErr.Reason, apiErr.Details = payload.Error, payload.Reason, payload.Details
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"crickbid/internal/auction"
	"crickbid/internal/auth"
	"crickbid/internal/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
}

// Engine is the auction surface the HTTP layer serves. *auction.Service implements it.
type Engine interface {
	ImportPool(ctx context.Context, rows []auction.PoolImportRow) (auction.PoolImportResult, error)
	ListPool(ctx context.Context, f auction.PoolFilter) ([]auction.PoolPlayer, error)

	CreateSession(ctx context.Context, in auction.CreateSessionInput) (auction.Session, error)
	ListSessions(ctx context.Context) ([]auction.SessionSummary, error)
	GetSession(ctx context.Context, sessionID int64) (auction.SessionSummary, error)
	AttachPlayers(ctx context.Context, sessionID int64, in auction.AttachPlayersInput) (int, error)
	ListSessionPlayers(ctx context.Context, sessionID int64, f auction.SessionPlayerFilter) ([]auction.SessionPlayer, error)
	RequeueUnsold(ctx context.Context, sessionID int64) (int, error)
	StartSession(ctx context.Context, sessionID int64) (auction.RoundResult, error)
	PauseSession(ctx context.Context, sessionID int64) (auction.Session, error)
	ResumeSession(ctx context.Context, sessionID int64) (auction.RoundResult, error)
	EndSession(ctx context.Context, sessionID int64) (auction.Session, error)
	CompleteSession(ctx context.Context, sessionID int64) (auction.Session, error)

	RegisterParticipant(ctx context.Context, in auction.RegisterParticipantInput) (auction.Participant, error)
	ListParticipants(ctx context.Context, sessionID int64) ([]auction.Participant, error)
	Squad(ctx context.Context, sessionID int64, userID string) (auction.Squad, error)
	Exit(ctx context.Context, sessionID int64, userID string) (auction.Participant, error)
	ResolveStuck(ctx context.Context, sessionID int64, userID string) (auction.StuckResolution, error)

	CreatePushRule(ctx context.Context, in auction.CreatePushRuleInput) (auction.PushRule, error)
	ListPushRules(ctx context.Context, sessionID int64) ([]auction.PushRule, error)
	DeactivatePushRule(ctx context.Context, sessionID, ruleID int64) (auction.PushRule, error)

	PlaceBid(ctx context.Context, in auction.BidInput) (auction.BidResult, error)
	LiveState(ctx context.Context, sessionID int64) (auction.LiveState, error)
	ListBids(ctx context.Context, sessionID int64, sessionPlayerID *int64, limit int) ([]auction.Bid, error)
	CloseRound(ctx context.Context, sessionID int64, expected *int64) (auction.RoundResult, error)
}

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	auth    auth.Verifier
	auction Engine
	mux     *chi.Mux
}

// New builds the router. With a nil verifier callers identify themselves with X-User-ID,
// which assumes a trusted gateway in front.
func New(cfg config.APIConfig, logger *slog.Logger, verifier auth.Verifier, engine Engine) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		auth:    verifier,
		auction: engine,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/player-pool", s.handlePoolList)
		r.Get("/sessions", s.handleSessionsList)
		r.Get("/sessions/{id}", s.handleSessionDetail)
		r.Get("/sessions/{id}/players", s.handleSessionPlayers)
		r.Post("/sessions/{id}/participants", s.handleRegisterParticipant)
		r.Get("/sessions/{id}/participants", s.handleParticipantsList)
		r.Get("/sessions/{id}/participants/{user_id}/squad", s.handleSquad)
		r.Post("/sessions/{id}/participants/{user_id}/exit", s.handleExit)
		r.Get("/sessions/{id}/live", s.handleLive)
		r.Post("/sessions/{id}/bids", s.handleBid)
		r.Get("/sessions/{id}/bids", s.handleBidsList)
		r.Get("/sessions/{id}/push-rules", s.handlePushRulesList)

		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Post("/player-pool/import", s.handlePoolImport)
			r.Post("/sessions", s.handleCreateSession)
			r.Post("/sessions/{id}/players", s.handleAttachPlayers)
			r.Post("/sessions/{id}/players/requeue-unsold", s.handleRequeueUnsold)
			r.Post("/sessions/{id}/start", s.handleStart)
			r.Post("/sessions/{id}/pause", s.handlePause)
			r.Post("/sessions/{id}/resume", s.handleResume)
			r.Post("/sessions/{id}/end", s.handleEnd)
			r.Post("/sessions/{id}/complete", s.handleComplete)
			r.Post("/sessions/{id}/live/close", s.handleCloseRound)
			r.Post("/sessions/{id}/participants/{user_id}/resolve-stuck", s.handleResolveStuck)
			r.Post("/sessions/{id}/push-rules", s.handleCreatePushRule)
			r.Delete("/sessions/{id}/push-rules/{rule_id}", s.handleDeactivatePushRule)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user UserContext
		if s.auth != nil {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			verified, err := s.auth.VerifyAccessToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
				return
			}
			user = UserContext{UserID: verified.ID, Email: verified.Email}
		} else {
			user = UserContext{UserID: strings.TrimSpace(r.Header.Get("X-User-ID"))}
			if user.UserID == "" {
				writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
				return
			}
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware lets through the configured admin ids. An empty list admits everyone.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !s.isAdmin(user.UserID) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "admin only", Reason: "FORBIDDEN"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdmin(userID string) bool {
	return len(s.cfg.AdminUserIDs) == 0 || slices.Contains(s.cfg.AdminUserIDs, userID)
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handlePoolImport(w http.ResponseWriter, r *http.Request) {
	var in importPoolRequest
	if err := decodeRequest(r, &in); err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.ImportPool(r.Context(), in.Players)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePoolList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := auction.PoolFilter{
		Search:     strings.TrimSpace(q.Get("q")),
		ActiveOnly: queryBool(q.Get("active")),
	}
	if v := q.Get("skill"); v != "" {
		skill, err := auction.ParseSkill(v)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		f.Skill = &skill
	}
	if v := q.Get("category"); v != "" {
		category, err := auction.ParseCategory(v)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		f.Category = &category
	}
	out, err := s.auction.ListPool(r.Context(), f)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": out})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	var in createSessionRequest
	if err := decodeRequest(r, &in); err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.CreateSession(r.Context(), in.input(user.UserID))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.auction.ListSessions(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttachPlayers(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var in attachPlayersRequest
	if err := decodeRequest(r, &in); err != nil {
		s.writeDomainError(w, err)
		return
	}
	n, err := s.auction.AttachPlayers(r.Context(), sessionID, auction.AttachPlayersInput{
		PoolPlayerIDs: in.PoolPlayerIDs,
		AllActive:     in.AllActive,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attached": n})
}

func (s *Server) handleSessionPlayers(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	q := r.URL.Query()
	var f auction.SessionPlayerFilter
	if v := q.Get("status"); v != "" {
		status, err := auction.ParsePlayerStatus(v)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		f.Status = &status
	}
	if v := q.Get("skill"); v != "" {
		skill, err := auction.ParseSkill(v)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		f.Skill = &skill
	}
	if v := q.Get("category"); v != "" {
		category, err := auction.ParseCategory(v)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		f.Category = &category
	}
	out, err := s.auction.ListSessionPlayers(r.Context(), sessionID, f)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": out})
}

func (s *Server) handleRequeueUnsold(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	n, err := s.auction.RequeueUnsold(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": n})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.StartSession(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.sessionTransition(w, r, s.auction.PauseSession)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s.sessionTransition(w, r, s.auction.EndSession)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.sessionTransition(w, r, s.auction.CompleteSession)
}

func (s *Server) sessionTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (auction.Session, error)) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := fn(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.ResumeSession(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRegisterParticipant lets a user join as a bidder. Registering someone else
// or a non-bidding role needs admin rights.
func (s *Server) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var in registerParticipantRequest
	if err := decodeRequest(r, &in); err != nil {
		s.writeDomainError(w, err)
		return
	}
	role, _ := auction.ParseRole(in.Role)
	target := strings.TrimSpace(in.UserID)
	if target == "" {
		target = user.UserID
	}
	if (target != user.UserID || role != auction.RoleParticipant) && !s.isAdmin(user.UserID) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "only admins can register other users or staff roles", Reason: "FORBIDDEN"})
		return
	}
	out, err := s.auction.RegisterParticipant(r.Context(), auction.RegisterParticipantInput{
		SessionID:   sessionID,
		UserID:      target,
		DisplayName: in.DisplayName,
		Role:        role,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleParticipantsList(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.ListParticipants(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": out})
}

func (s *Server) handleSquad(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.Squad(r.Context(), sessionID, s.targetUser(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	target := s.targetUser(r)
	if target != user.UserID && !s.isAdmin(user.UserID) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "participants can only exit themselves", Reason: "FORBIDDEN"})
		return
	}
	out, err := s.auction.Exit(r.Context(), sessionID, target)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolveStuck(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.ResolveStuck(r.Context(), sessionID, s.targetUser(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// targetUser reads {user_id}; "me" names the caller.
func (s *Server) targetUser(r *http.Request) string {
	id := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if id == "me" {
		user, _ := userFromContext(r.Context())
		return user.UserID
	}
	return id
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.LiveState(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var in bidRequest
	if err := decodeRequest(r, &in); err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.PlaceBid(r.Context(), auction.BidInput{
		SessionID:       sessionID,
		SessionPlayerID: in.SessionPlayerID,
		BidderID:        user.UserID,
		Amount:          in.Amount,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleBidsList(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	q := r.URL.Query()
	var playerID *int64
	if v := q.Get("session_player_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			s.writeDomainError(w, auction.ErrInvalidInput.Withf("invalid session_player_id"))
			return
		}
		playerID = &id
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	out, err := s.auction.ListBids(r.Context(), sessionID, playerID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": out})
}

func (s *Server) handleCloseRound(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var in closeRoundRequest
	if err := decodeOptionalRequest(r, &in); err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.CloseRound(r.Context(), sessionID, in.SessionPlayerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePushRule(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	var in pushRuleRequest
	if err := decodeRequest(r, &in); err != nil {
		s.writeDomainError(w, err)
		return
	}
	rule, err := in.input(sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.CreatePushRule(r.Context(), rule)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handlePushRulesList(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.ListPushRules(r.Context(), sessionID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"push_rules": out})
}

func (s *Server) handleDeactivatePushRule(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	ruleID, err := pathID(r, "rule_id")
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out, err := s.auction.DeactivatePushRule(r.Context(), sessionID, ruleID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Error   string            `json:"error"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func statusForKind(kind auction.ErrorKind) int {
	switch kind {
	case auction.KindValidation, auction.KindConflict:
		return http.StatusBadRequest
	case auction.KindIntegrity:
		return http.StatusConflict
	case auction.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var ae *auction.Error
	if errors.As(err, &ae) {
		writeJSON(w, statusForKind(ae.Kind), errorBody{Error: ae.Msg, Reason: ae.Reason, Details: ae.Details})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request timed out", Reason: "TIMEOUT"})
		return
	}
	s.log.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Reason: "INTERNAL"})
}

type validator interface {
	validate() error
}

// decodeRequest decodes a JSON body strictly and runs its validate method.
func decodeRequest(r *http.Request, out validator) error {
	if err := decodeJSON(r, out); err != nil {
		return auction.ErrInvalidInput.Withf("invalid request body: %v", err)
	}
	return out.validate()
}

// decodeOptionalRequest is decodeRequest for endpoints whose body may be empty.
func decodeOptionalRequest(r *http.Request, out validator) error {
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return auction.ErrInvalidInput.Withf("invalid request body: %v", err)
	}
	return out.validate()
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: strings.TrimSpace(message)})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, auction.ErrInvalidInput.Withf("invalid %s", strings.ReplaceAll(name, "_", " "))
	}
	return id, nil
}

func queryBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

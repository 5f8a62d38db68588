package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pazaak/internal/game"
	"pazaak/internal/game/pazaak"
	"pazaak/internal/session"
	"pazaak/internal/storage"
)

// MatchLog is the read side of the match journal.
type MatchLog interface {
	GetMatch(ctx context.Context, id string) (*storage.MatchRow, error)
	ListMatches(ctx context.Context, limit int) ([]storage.MatchRow, error)
	ListRounds(ctx context.Context, matchID string) ([]storage.RoundRow, error)
}

// Server is the HTTP surface of a hosting peer: the websocket endpoint
// followers dial plus read-only JSON views of the authority.
type Server struct {
	router chi.Router
	host   *session.Authority
	peers  http.Handler
	log    MatchLog
	logger *zap.Logger
	now    func() time.Time
}

// New creates a server with all routes. peers serves websocket upgrades
// and log may be nil when no journal is configured.
func New(host *session.Authority, peers http.Handler, log MatchLog, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router: chi.NewRouter(),
		host:   host,
		peers:  peers,
		log:    log,
		logger: logger,
		now:    time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/ws", s.peers)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleGetSession)
		r.Get("/state", s.handleGetState)
		r.Post("/start", s.handleStart)
		r.Post("/new-game", s.handleNewGame)
		r.Get("/matches", s.handleListMatches)
		r.Get("/matches/{id}", s.handleGetMatch)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Info())
}

type stateResponse struct {
	Version uint64             `json:"version"`
	State   *pazaak.MatchState `json:"state"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, version := s.host.Snapshot()
	if state == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no match in progress"})
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Version: version, State: state})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.host.StartGame(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	if err := s.host.NewGame(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}

type matchResponse struct {
	ID         string     `json:"id"`
	Players    []string   `json:"players"`
	StartedAt  time.Time  `json:"startedAt"`
	StartedAgo string     `json:"startedAgo"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Winner     string     `json:"winner,omitempty"`
	Rounds     []roundRow `json:"rounds,omitempty"`
}

type roundRow struct {
	Label  string         `json:"label"`
	Round  int            `json:"round"`
	Winner string         `json:"winner,omitempty"`
	Void   bool           `json:"void"`
	Scores map[string]int `json:"scores"`
}

func (s *Server) matchView(m storage.MatchRow) matchResponse {
	return matchResponse{
		ID:         m.ID,
		Players:    m.Players,
		StartedAt:  m.StartedAt,
		StartedAgo: humanize.RelTime(m.StartedAt, s.now(), "ago", "from now"),
		EndedAt:    m.EndedAt,
		Winner:     m.Winner,
	}
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	rows, err := s.log.ListMatches(r.Context(), limit)
	if err != nil {
		s.logger.Error("list matches", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
		return
	}
	out := make([]matchResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, s.matchView(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	id := chi.URLParam(r, "id")
	m, err := s.log.GetMatch(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "match not found"})
		return
	}
	if err != nil {
		s.logger.Error("get match", zap.String("match", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
		return
	}
	rounds, err := s.log.ListRounds(r.Context(), id)
	if err != nil {
		s.logger.Error("list rounds", zap.String("match", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
		return
	}
	view := s.matchView(*m)
	for _, rr := range rounds {
		view.Rounds = append(view.Rounds, roundRow{
			Label:  humanize.Ordinal(rr.RoundNumber) + " round",
			Round:  rr.RoundNumber,
			Winner: rr.WinnerID,
			Void:   rr.IsVoid,
			Scores: rr.Scores,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// writeError maps engine rejections to 409 and anything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, game.ErrIllegalAction) || errors.Is(err, game.ErrInvalidSelection) {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

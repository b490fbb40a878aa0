package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nathanbos/mixed-motive-games/server/agent"
	"github.com/nathanbos/mixed-motive-games/server/game"
	"github.com/nathanbos/mixed-motive-games/server/llm"
	"github.com/nathanbos/mixed-motive-games/server/store"
)

const sessionCookie = "session_id"

type server struct {
	db     *store.DB
	logger *log.Logger
}

func Router(db *store.DB, logger *log.Logger) http.Handler {
	s := &server{db: db, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/setup", s.handleSetup)
	r.Post("/api/games", s.handleStartGame)
	r.Get("/api/games/current", s.handleCurrent)
	r.Post("/api/games/actions", s.handleAction)
	r.Post("/api/games/advance", s.handleAdvance)
	r.Get("/api/games/results", s.handleResults)
	r.Get("/api/leaderboard", s.handleLeaderboard)
	r.Get("/download/{gameID}", s.handleDownload)
	return r
}

// handleSetup returns everything the setup page needs: the persistent roster
// and the personality presets.
func (s *server) handleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	players, err := s.db.ListPlayers(ctx)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	personalities, err := s.db.ListPersonalities(ctx)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	roster := make([]game.ParticipantSnapshot, 0, len(players))
	for _, p := range players {
		roster = append(roster, participantView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"players":       roster,
		"personalities": personalities,
	})
}

type startGameRequest struct {
	Rounds     int     `json:"rounds"`
	Ceiling    float64 `json:"ceiling"`
	Multiplier float64 `json:"multiplier"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	// Slots: "human", "persistent:<player id>", or "personality:<preset name>".
	Slots []string `json:"slots"`
}

// handleStartGame builds the participant list from the requested slots and
// creates the game. All-AI games run to completion here and come back
// finished (observer mode); games with a human seat come back awaiting the
// first investment.
func (s *server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	cfg := game.DefaultConfig()
	if req.Rounds > 0 {
		cfg.Rounds = req.Rounds
	}
	if req.Ceiling > 0 {
		cfg.Ceiling = req.Ceiling
	}
	if req.Multiplier > 0 {
		cfg.Multiplier = req.Multiplier
	}

	personalities, err := s.db.ListPersonalities(ctx)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	players, err := s.buildParticipants(ctx, req, cfg, personalities)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	g, err := game.New(game.NewID(), players, cfg)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	g.SetSink(s.db)
	g.SetLogger(s.logger)

	if err := s.db.InsertGame(ctx, g.Snapshot()); err != nil {
		s.logger.Warn("game row insert failed", "game", g.ID, "err", err)
	}

	if g.ExternalPlayer() == nil {
		s.logger.Info("running unattended simulation", "game", g.ID, "players", len(players), "rounds", cfg.Rounds)
		if err := runFullSimulation(ctx, g); err != nil {
			s.fail(w, http.StatusInternalServerError, err)
			return
		}
		s.persistFinalBanks(ctx, g)
	}

	if err := s.saveSession(w, r, g); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, g.Snapshot())
}

func (s *server) buildParticipants(ctx context.Context, req startGameRequest, cfg game.Config, personalities []store.Personality) ([]*game.Participant, error) {
	byName := make(map[string]store.Personality, len(personalities))
	for _, p := range personalities {
		byName[p.Name] = p
	}

	var players []*game.Participant
	for _, slot := range req.Slots {
		slot = strings.TrimSpace(slot)
		if slot == "" {
			continue
		}
		kind, arg, _ := strings.Cut(slot, ":")
		switch kind {
		case "human":
			players = append(players, &game.Participant{
				ID:   uuid.NewString(),
				Name: fmt.Sprintf("Human_%d", len(players)+1),
				Kind: game.KindHuman,
				Bank: cfg.StartBank,
			})
		case "persistent":
			p, err := s.db.GetPlayer(ctx, arg)
			if err != nil {
				return nil, fmt.Errorf("slot %q: %w", slot, err)
			}
			// Refresh strategy from the presets in case it was updated.
			if preset, ok := byName[p.Personality]; ok {
				p.Strategy = preset.Strategy
			}
			if p.Provider == "" {
				p.Provider = req.Provider
			}
			if p.Model == "" {
				p.Model = req.Model
			}
			src, err := llm.NewAgent(p.Provider, p.Model, p.Name, p.Personality, p.Strategy, cfg.Ceiling, s.logger)
			if err != nil {
				return nil, fmt.Errorf("slot %q: %w", slot, err)
			}
			p.AttachSource(src)
			players = append(players, p)
		case "personality":
			preset, ok := byName[arg]
			if !ok {
				return nil, fmt.Errorf("slot %q: unknown personality", slot)
			}
			p := &game.Participant{
				ID:          uuid.NewString(),
				Name:        fmt.Sprintf("%s_%d", preset.Name, len(players)+1),
				Kind:        game.KindLLM,
				Bank:        cfg.StartBank,
				Personality: preset.Name,
				Strategy:    preset.Strategy,
				Provider:    req.Provider,
				Model:       req.Model,
			}
			src, err := llm.NewAgent(p.Provider, p.Model, p.Name, p.Personality, p.Strategy, cfg.Ceiling, s.logger)
			if err != nil {
				return nil, fmt.Errorf("slot %q: %w", slot, err)
			}
			p.AttachSource(src)
			players = append(players, p)
		default:
			return nil, fmt.Errorf("unknown slot kind %q", slot)
		}
	}
	if len(players) == 0 {
		return nil, errors.New("no participant slots given")
	}
	return players, nil
}

func (s *server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := s.sessionSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type actionRequest struct {
	Investment *float64 `json:"investment,omitempty"`
	Statement  *string  `json:"statement,omitempty"`
}

// handleAction applies the human player's form submission and advances one
// phase: an investment during INVESTMENT, a statement during DISCUSSION.
func (s *server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	s.advance(w, r, req)
}

// handleAdvance steps an observer-mode game one phase with no overrides.
func (s *server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.advance(w, r, actionRequest{})
}

func (s *server) advance(w http.ResponseWriter, r *http.Request, req actionRequest) {
	ctx := r.Context()

	g, token, ok := s.sessionGame(w, r)
	if !ok {
		return
	}

	var err error
	switch g.Phase {
	case game.PhaseInvestment:
		err = g.RunInvestmentPhase(ctx, req.Investment)
	case game.PhaseDiscussion:
		var stmt *string
		if req.Statement != nil {
			v := agent.SanitizeStatement(*req.Statement)
			stmt = &v
		}
		err = g.RunDiscussionPhase(ctx, stmt)
	default:
		err = game.ErrGameOver
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, game.ErrGameOver) || errors.Is(err, game.ErrWrongPhase) || errors.Is(err, game.ErrNoExternal) {
			status = http.StatusConflict
		}
		s.fail(w, status, err)
		return
	}

	if g.Phase == game.PhaseGameOver {
		s.persistFinalBanks(ctx, g)
	}
	if err := s.db.SaveSession(ctx, token, g.Snapshot()); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

func (s *server) handleResults(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := s.sessionSnapshot(w, r)
	if !ok {
		return
	}
	if snap.Phase != game.PhaseGameOver {
		s.fail(w, http.StatusConflict, fmt.Errorf("game %s is still in %s", snap.ID, snap.Phase))
		return
	}

	type standing struct {
		Name     string    `json:"name"`
		Kind     game.Kind `json:"kind"`
		Earnings float64   `json:"earnings"`
		Bank     float64   `json:"bank"`
	}
	standings := make([]standing, 0, len(snap.Players))
	for _, p := range snap.Players {
		standings = append(standings, standing{
			Name:     p.Name,
			Kind:     p.Kind,
			Earnings: snap.Earnings[p.ID],
			Bank:     p.Bank,
		})
	}
	sort.Slice(standings, func(i, j int) bool { return standings[i].Earnings > standings[j].Earnings })

	writeJSON(w, http.StatusOK, map[string]any{
		"game":      snap,
		"standings": standings,
	})
}

// handleLeaderboard orders the durable roster by bank.
func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	players, err := s.db.ListPlayers(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Bank > players[j].Bank })
	out := make([]game.ParticipantSnapshot, 0, len(players))
	for _, p := range players {
		out = append(out, participantView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": out})
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	path, err := store.FindGameCSV(s.db.RecordsDir, gameID)
	if err != nil {
		s.fail(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gameID+".csv"))
	http.ServeFile(w, r, path)
}

/* -----------------------------
   Session plumbing
------------------------------*/

func (s *server) saveSession(w http.ResponseWriter, r *http.Request, g *game.Game) error {
	token := ""
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		token = c.Value
	}
	if token == "" {
		token = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(24 * time.Hour),
		})
	}
	return s.db.SaveSession(r.Context(), token, g.Snapshot())
}

func (s *server) sessionSnapshot(w http.ResponseWriter, r *http.Request) (game.Snapshot, string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		s.fail(w, http.StatusNotFound, errors.New("no active game session"))
		return game.Snapshot{}, "", false
	}
	snap, err := s.db.LoadSession(r.Context(), c.Value)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.fail(w, status, err)
		return game.Snapshot{}, "", false
	}
	return snap, c.Value, true
}

// sessionGame restores the session's game with live decision sources.
func (s *server) sessionGame(w http.ResponseWriter, r *http.Request) (*game.Game, string, bool) {
	snap, token, ok := s.sessionSnapshot(w, r)
	if !ok {
		return nil, "", false
	}
	g, err := game.Restore(snap, s.sourceFactory())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return nil, "", false
	}
	g.SetSink(s.db)
	g.SetLogger(s.logger)
	return g, token, true
}

func (s *server) sourceFactory() game.SourceFactory {
	return func(p *game.Participant, cfg game.Config) (game.DecisionSource, error) {
		return llm.NewAgent(p.Provider, p.Model, p.Name, p.Personality, p.Strategy, cfg.Ceiling, s.logger)
	}
}

func (s *server) persistFinalBanks(ctx context.Context, g *game.Game) {
	banks := make(map[string]float64, len(g.Players))
	for _, p := range g.Players {
		banks[p.ID] = p.Bank
	}
	if err := s.db.SaveFinalBanks(ctx, banks); err != nil {
		s.logger.Warn("final bank write-back failed", "game", g.ID, "err", err)
	}
}

// runFullSimulation drives an all-AI game to completion, one phase per step.
func runFullSimulation(ctx context.Context, g *game.Game) error {
	for g.Phase != game.PhaseGameOver {
		var err error
		switch g.Phase {
		case game.PhaseInvestment:
			err = g.RunInvestmentPhase(ctx, nil)
		case game.PhaseDiscussion:
			err = g.RunDiscussionPhase(ctx, nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

/* -----------------------------
   Helpers
------------------------------*/

func participantView(p *game.Participant) game.ParticipantSnapshot {
	return game.ParticipantSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Kind:        p.Kind,
		Bank:        p.Bank,
		Personality: p.Personality,
		Strategy:    p.Strategy,
		Provider:    p.Provider,
		Model:       p.Model,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) fail(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

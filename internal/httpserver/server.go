// apps/go-server/internal/httpserver/server.go
//
// HTTP server wiring for the Memory Match backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/leaderboard".
//   - Game endpoints (optional auth): POST /game/new, /game/select,
//     /game/hint, /game/restart, /game/quit; GET /game/state, /game/ws.
//   - Daily Deal endpoints (optional auth): mounted under /daily.
//   - Auth + profile/stat endpoints (require auth): /auth/*, /stats/me, /games/mine.
//   - JWT + cookie handling, anonymous session cookie, user CRUD helpers.
//   - Database persistence for games and user stats.
//
// Notes:
//   - CORS is origin‑aware and credentials‑enabled (so cookies work).
//   - Optional auth decorates requests with user context when a valid token is present;
//     routes can still run for guests.
//   - Require‑auth middleware enforces presence and validity of a JWT.
//   - Live engines are registered in the store; ownership and the event
//     hub for each session live in the meta map until process exit.

package httpserver

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	mrand "math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/memory/apps/go-server/internal/daily"
	"github.com/robalobadob/memory/apps/go-server/internal/game"
	"github.com/robalobadob/memory/apps/go-server/internal/store"
	"github.com/robalobadob/memory/apps/go-server/internal/symbols"
)

// Server bundles router, live session registry, and DB handle.
type Server struct {
	r     *chi.Mux
	store store.Store
	db    *sql.DB
	daily *daily.Store

	mu   sync.Mutex              // guards meta
	meta map[string]*sessionMeta // ownership + event hub per live session
}

// sessionMeta carries what the engine itself does not know about a
// session: who owns it, its event hub, and whether it is a daily deal.
type sessionMeta struct {
	hub        *hub
	userID     string // empty for guests
	anonID     string // empty for logged-in owners
	difficulty string
	daily      *dailyMeta // non-nil for daily deals
}

// dailyMeta marks a session as the daily deal for a date.
type dailyMeta struct {
	date string
	seed int64
}

// ownerID returns the stable identifier results are recorded under.
func (m *sessionMeta) ownerID() string {
	if m.userID != "" {
		return m.userID
	}
	return m.anonID
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, db *sql.DB) *Server {
	s := &Server{
		r:     chi.NewRouter(),
		store: st,
		db:    db,
		daily: daily.NewStore(db),
		meta:  make(map[string]*sessionMeta),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(corsFromEnv)                     // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"memory-go","endpoints":["/health","POST /game/new","POST /game/select","GET /leaderboard","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Game endpoints — OPTIONAL AUTH (guests can play)
	gameRoutes := s.r.With(s.withOptionalAuth())
	gameRoutes.Post("/game/new", s.handleNewGame)
	gameRoutes.Post("/game/select", s.handleSelect)
	gameRoutes.Post("/game/hint", s.handleHint)
	gameRoutes.Post("/game/restart", s.handleRestart)
	gameRoutes.Post("/game/quit", s.handleQuit)
	gameRoutes.Get("/game/state", s.handleState)
	gameRoutes.Get("/game/ws", s.handleWS)

	// All-time leaderboard (public)
	s.r.Get("/leaderboard", s.handleLeaderboard)

	// Daily Deal — OPTIONAL AUTH (guests can play; result persisted on win)
	s.mountDaily(s.r.With(s.withOptionalAuth()))

	// Auth + profile/stats (require auth)
	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	// Debug: symbol alphabet size
	s.r.Get("/debug/symbols", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"symbols": symbols.Count()})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// sessionMeta looks up the meta record for a live session.
func (s *Server) sessionMeta(gameID string) *sessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[gameID]
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ GAME ---------------------------------------

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Difficulty string `json:"difficulty"` // "easy" | "medium" | "hard"
}
type newGameRes struct {
	GameID string        `json:"gameId"`
	State  game.Snapshot `json:"state"`
}

// handleNewGame creates a new in-memory session and persists a DB "owner" row
// (either user_id or anonymous_id) for history/stats.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Difficulty == "" {
		req.Difficulty = "easy"
	}

	userID, anonID := s.ownerFrom(w, r)
	eng, err := s.createSession(userID, anonID, req.Difficulty, nil)
	if err != nil {
		switch {
		case errors.Is(err, game.ErrInvalidDifficulty):
			http.Error(w, `{"error":"invalid_difficulty"}`, http.StatusBadRequest)
		case errors.Is(err, game.ErrInsufficientSymbols):
			log.Error().Err(err).Msg("symbol alphabet too small for preset")
			http.Error(w, `{"error":"server_misconfigured"}`, http.StatusInternalServerError)
		default:
			log.Error().Err(err).Msg("create session")
			http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		}
		return
	}

	_ = json.NewEncoder(w).Encode(newGameRes{GameID: eng.ID(), State: eng.Snapshot()})
}

// ownerFrom resolves the session owner exactly once per request:
// the authenticated user if present, otherwise the (possibly freshly
// minted) anonymous cookie id. Callers must not call ensureAnonID
// again afterwards — a cookie set on the response is not visible on
// the same request.
func (s *Server) ownerFrom(w http.ResponseWriter, r *http.Request) (userID, anonID string) {
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		return me.ID, ""
	}
	return "", s.ensureAnonID(w, r)
}

// createSession builds an engine + hub, starts it, registers it, and
// inserts the games ownership row. A non-nil dailyMeta seeds the deal
// deterministically and routes the win into daily_results.
func (s *Server) createSession(userID, anonID, difficulty string, dm *dailyMeta) (*game.Engine, error) {
	meta := &sessionMeta{hub: newHub(), userID: userID, anonID: anonID, difficulty: difficulty, daily: dm}

	cfg := game.Config{Sink: meta.hub}
	if dm != nil {
		cfg.Rand = mrand.New(mrand.NewSource(dm.seed))
	}
	eng := game.New(cfg)
	meta.hub.onWon = func(res game.Result) { s.gameWon(eng.ID(), meta, res) }

	if err := eng.Start(difficulty); err != nil {
		return nil, err
	}
	if err := s.store.Save(context.Background(), eng); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.meta[eng.ID()] = meta
	s.mu.Unlock()

	// Persist owner row; the deck itself never touches the DB
	now := time.Now().UTC().Format(time.RFC3339)
	var err error
	if meta.userID != "" {
		_, err = s.db.Exec(`INSERT INTO games (id, user_id, difficulty, status, moves, started_at)
		                    VALUES (?,?,?,?,0,?)`, eng.ID(), meta.userID, difficulty, "playing", now)
	} else {
		_, err = s.db.Exec(`INSERT INTO games (id, anonymous_id, difficulty, status, moves, started_at)
		                    VALUES (?,?,?,?,0,?)`, eng.ID(), meta.anonID, difficulty, "playing", now)
	}
	if err != nil {
		log.Warn().Err(err).Str("gameId", eng.ID()).Msg("insert game row")
	}
	return eng, nil
}

// gameWon persists a finished session: closes the games row, bumps the
// owner's stats, and records the daily result when applicable.
// Runs from the engine's event path, so it uses a background context
// and treats every write as best effort.
func (s *Server) gameWon(gameID string, meta *sessionMeta, res game.Result) {
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("won: begin tx")
		return
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE games SET status='won', moves=?, elapsed_seconds=?, score=?, finished_at=?
	                      WHERE id=? AND status='playing'`,
		res.Moves, res.ElapsedSeconds, res.Score, now, gameID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("won: finish game")
	}
	if meta.userID != "" {
		if err := s.bumpStats(tx, meta.userID, true, res.Score); err != nil {
			log.Warn().Err(err).Str("user", meta.userID).Msg("won: bump stats")
		}
	}
	if err := tx.Commit(); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("won: commit")
	}

	if meta.daily != nil {
		err := s.daily.InsertResult(ctx, daily.Result{
			UserID:         meta.ownerID(),
			Date:           meta.daily.date,
			Seed:           meta.daily.seed,
			Moves:          res.Moves,
			ElapsedSeconds: res.ElapsedSeconds,
			Score:          res.Score,
		})
		if err != nil {
			log.Warn().Err(err).Str("gameId", gameID).Msg("won: insert daily result")
		}
	}
}

// selectReq is the payload for POST /game/select.
type selectReq struct {
	GameID string `json:"gameId"`
	CardID int    `json:"cardId"`
}

// stateRes wraps a snapshot for the request/response endpoints.
type stateRes struct {
	State game.Snapshot `json:"state"`
}

// handleSelect reveals a card. The response snapshot reflects the
// immediate outcome; a mismatch flips back asynchronously and is
// observable over /game/ws or a later /game/state.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	eng, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if err := eng.SelectCard(req.CardID); err != nil {
		http.Error(w, `{"error":"invalid_card"}`, http.StatusBadRequest)
		return
	}
	snap := eng.Snapshot()

	// Mirror the move counter onto the history row (best effort)
	if _, err := s.db.Exec(`UPDATE games SET moves=?, elapsed_seconds=? WHERE id=?`,
		snap.Moves, snap.ElapsedSeconds, req.GameID); err != nil {
		log.Warn().Err(err).Msg("update moves")
	}

	_ = json.NewEncoder(w).Encode(stateRes{State: snap})
}

// hintReq/Res payloads for POST /game/hint.
type hintReq struct {
	GameID string `json:"gameId"`
}
type hintRes struct {
	OK      bool          `json:"ok"`
	CardIDs []int         `json:"cardIds,omitempty"`
	State   game.Snapshot `json:"state"`
}

// handleHint asks the engine for a hint pair. OK=false means the
// engine declined (no hints left, session over, or nothing hidden to
// hint at) — that is not an error.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req hintReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	eng, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	a, b, ok := eng.RequestHint()
	res := hintRes{OK: ok, State: eng.Snapshot()}
	if ok {
		res.CardIDs = []int{a, b}
	}
	_ = json.NewEncoder(w).Encode(res)
}

// restartReq is shared by POST /game/restart and /game/quit.
type restartReq struct {
	GameID string `json:"gameId"`
}

// handleRestart re-deals the session in place and resets its history row.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	eng, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if err := eng.Restart(); err != nil {
		http.Error(w, `{"error":"restart_failed"}`, http.StatusBadRequest)
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(`UPDATE games SET status='playing', moves=0, elapsed_seconds=0, score=NULL, started_at=?, finished_at=NULL WHERE id=?`,
		now, req.GameID); err != nil {
		log.Warn().Err(err).Msg("reset game row")
	}
	_ = json.NewEncoder(w).Encode(stateRes{State: eng.Snapshot()})
}

// handleQuit ends the session; the final board stays readable for a
// post-mortem screen. A quit counts as a played (not won) game for
// logged-in owners.
func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	var req restartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	eng, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	wasActive := eng.Snapshot().Active
	eng.Quit()

	if wasActive {
		now := time.Now().UTC().Format(time.RFC3339)
		tx, err := s.db.Begin()
		if err != nil {
			log.Warn().Err(err).Msg("quit game: begin tx")
			_ = json.NewEncoder(w).Encode(stateRes{State: eng.Snapshot()})
			return
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.Exec(`UPDATE games SET status='quit', finished_at=? WHERE id=? AND status='playing'`,
			now, req.GameID); err != nil {
			log.Warn().Err(err).Msg("quit game")
		}
		if meta := s.sessionMeta(req.GameID); meta != nil && meta.userID != "" {
			if err := s.bumpStats(tx, meta.userID, false, 0); err != nil {
				log.Warn().Err(err).Str("user", meta.userID).Msg("quit: bump stats")
			}
		}
		_ = tx.Commit()
	}

	_ = json.NewEncoder(w).Encode(stateRes{State: eng.Snapshot()})
}

// handleState returns the current snapshot for GET /game/state?gameId=.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		http.Error(w, `{"error":"missing_game_id"}`, http.StatusBadRequest)
		return
	}
	eng, err := s.store.Get(r.Context(), gameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(stateRes{State: eng.Snapshot()})
}

// --------------------------- LEADERBOARD -----------------------------------

// lbEntry is one all-time leaderboard row.
type lbEntry struct {
	Player         string `json:"player"`
	Difficulty     string `json:"difficulty"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Moves          int    `json:"moves"`
	Score          int    `json:"score"`
}

// handleLeaderboard returns the top 10 won games, optionally filtered
// by ?difficulty=easy|medium|hard (anything else means all).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	difficulty := r.URL.Query().Get("difficulty")

	q := `SELECT COALESCE(u.username, 'guest'), g.difficulty, g.elapsed_seconds, g.moves, g.score
	      FROM games g LEFT JOIN users u ON u.id = g.user_id
	      WHERE g.status='won'`
	args := []any{}
	switch difficulty {
	case "easy", "medium", "hard":
		q += ` AND g.difficulty=?`
		args = append(args, difficulty)
	}
	q += ` ORDER BY g.score DESC, g.elapsed_seconds ASC LIMIT 10`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	out := []lbEntry{}
	for rows.Next() {
		var e lbEntry
		if err := rows.Scan(&e.Player, &e.Difficulty, &e.ElapsedSeconds, &e.Moves, &e.Score); err == nil {
			out = append(out, e)
		}
	}
	_ = json.NewEncoder(w).Encode(out)
}

// ------------------------------- AUTH --------------------------------------

// Request payloads for signup/login.
type signupReq struct{ Username, Password string }
type loginReq struct{ Username, Password string }

// authUser is placed into request context by auth middleware.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// mountAuthRoutes registers authentication + gated routes (/auth/*, /stats/me, /games/mine).
func (s *Server) mountAuthRoutes() {
	s.r.Post("/auth/signup", s.handleSignup)
	s.r.Post("/auth/login", s.handleLogin)
	s.r.Post("/auth/logout", s.handleLogout)

	// Current user (gated)
	s.r.With(s.requireAuth()).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
		if me == nil {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(me)
	})

	// Stats (gated)
	s.r.With(s.requireAuth()).Get("/stats/me", func(w http.ResponseWriter, r *http.Request) {
		me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
		if me == nil {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		u, err := s.findUserByID(me.ID)
		if err != nil {
			http.Error(w, `{"error":"not_found"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          u.ID,
			"gamesPlayed": u.GamesPlayed,
			"wins":        u.Wins,
			"streak":      u.Streak,
			"bestScore":   u.BestScore,
		})
	})

	// Recent games (gated)
	s.r.With(s.requireAuth()).Get("/games/mine", func(w http.ResponseWriter, r *http.Request) {
		me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
		if me == nil {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		rows, err := s.db.Query(`SELECT id, difficulty, status, moves, COALESCE(score,0), started_at, COALESCE(finished_at,'')
		                         FROM games WHERE user_id=? ORDER BY started_at DESC LIMIT 50`, me.ID)
		if err != nil {
			http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		type gameRow struct {
			ID         string `json:"id"`
			Difficulty string `json:"difficulty"`
			Status     string `json:"status"`
			Moves      int    `json:"moves"`
			Score      int    `json:"score"`
			StartedAt  string `json:"startedAt"`
			FinishedAt string `json:"finishedAt,omitempty"`
		}
		out := []gameRow{}
		for rows.Next() {
			var gr gameRow
			if err := rows.Scan(&gr.ID, &gr.Difficulty, &gr.Status, &gr.Moves, &gr.Score, &gr.StartedAt, &gr.FinishedAt); err == nil {
				out = append(out, gr)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
}

// handleSignup creates a new user, signs a JWT, sets auth cookie, and claims anon history.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body signupReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.createUser(body.Username, body.Password)
	if err != nil {
		if err.Error() == "username taken" {
			http.Error(w, `{"error":"Username taken"}`, http.StatusConflict)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	tok, exp, err := s.signJWT(u.ID, u.Username)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	s.setAuthCookie(w, tok, exp)
	// Attach any anonymous games to the new account
	s.claimAnonGames(s.ensureAnonID(w, r), u.ID)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "username": u.Username, "createdAt": u.CreatedAt})
}

// handleLogin authenticates user, sets cookie, and claims anon history.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.findUserByUsername(strings.TrimSpace(body.Username))
	if err != nil || !checkPassword(u.PasswordHash, body.Password) {
		http.Error(w, `{"error":"Invalid username or password"}`, http.StatusUnauthorized)
		return
	}
	tok, exp, err := s.signJWT(u.ID, u.Username)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	s.setAuthCookie(w, tok, exp)
	s.claimAnonGames(s.ensureAnonID(w, r), u.ID)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "username": u.Username})
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearAuthCookie(w)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// --------------------------- optional auth ---------------------------------

// withOptionalAuth decorates requests with user context if a valid JWT is present.
// It never 401s; used for routes where guests are allowed.
func (s *Server) withOptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := bearerOrCookie(r); tok != "" {
				claims := jwt.MapClaims{}
				if t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
					return []byte(getEnv("JWT_SECRET", "dev_secret_change_me")), nil
				}); err == nil && t.Valid {
					if id, _ := claims["id"].(string); id != "" {
						if u, err := s.findUserByID(id); err == nil {
							ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: u.ID, Username: u.Username})
							r = r.WithContext(ctx)
						}
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

const anonCookieName = "memory_anon"

// ensureAnonID returns an existing anon cookie or sets a new one.
// Used to associate guest games with a stable identifier.
func (s *Server) ensureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := genID()
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   os.Getenv("NODE_ENV") == "production",
		SameSite: func() http.SameSite {
			if os.Getenv("NODE_ENV") == "production" {
				return http.SameSiteNoneMode
			}
			return http.SameSiteLaxMode
		}(),
		Expires: time.Now().Add(180 * 24 * time.Hour),
	})
	return id
}

// claimAnonGames transfers any anonymous games to a user account after auth.
func (s *Server) claimAnonGames(anonID, userID string) {
	if anonID == "" || userID == "" {
		return
	}
	if _, err := s.db.Exec(`UPDATE games SET user_id=?, anonymous_id=NULL WHERE anonymous_id=?`, userID, anonID); err != nil {
		log.Warn().Err(err).Msg("claim anon games")
	}
}

// ------------------------ auth helpers & users -----------------------------

// userRow matches the users table shape.
type userRow struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	GamesPlayed  int
	Wins         int
	Streak       int
	BestScore    int
}

// createUser validates input, checks uniqueness, hashes password, and inserts a new user.
func (s *Server) createUser(username, pw string) (*userRow, error) {
	username = normalizeUsername(username)
	if err := validateSignup(username, pw); err != nil {
		return nil, err
	}
	var exists int
	_ = s.db.QueryRow(`SELECT 1 FROM users WHERE lower(username)=lower(?)`, username).Scan(&exists)
	if exists == 1 {
		return nil, errors.New("username taken")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	id := genID()
	if _, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		id, username, string(h), now); err != nil {
		return nil, err
	}
	return &userRow{ID: id, Username: username, PasswordHash: string(h), CreatedAt: mustParse(now)}, nil
}

// findUserByUsername/ID load a user row or return an error if missing.
func (s *Server) findUserByUsername(username string) (*userRow, error) {
	row := s.db.QueryRow(`SELECT id, username, password_hash, created_at, games_played, wins, streak, best_score
	                      FROM users WHERE lower(username)=lower(?)`, username)
	return scanUser(row)
}
func (s *Server) findUserByID(id string) (*userRow, error) {
	row := s.db.QueryRow(`SELECT id, username, password_hash, created_at, games_played, wins, streak, best_score
	                      FROM users WHERE id=?`, id)
	return scanUser(row)
}

// scanUser converts a *sql.Row into a userRow.
func scanUser(row *sql.Row) (*userRow, error) {
	var u userRow
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created, &u.GamesPlayed, &u.Wins, &u.Streak, &u.BestScore); err != nil {
		return nil, err
	}
	u.CreatedAt = mustParse(created)
	return &u, nil
}

// mustParse parses RFC3339 timestamps; on error returns zero time.
func mustParse(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// normalizeUsername trims whitespace; adjust here if you want stricter rules.
func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// validateSignup enforces basic username/password rules.
func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return errors.New("username must be 3–24 chars")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("username: letters, numbers, underscore only")
		}
	}
	if len(p) < 8 || len(p) > 100 {
		return errors.New("password must be 8–100 chars")
	}
	return nil
}

// genID creates a 22‑char URL‑safe, crypto‑random identifier (no padding).
func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	s := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b[:])
	if len(s) > 22 {
		return s[:22]
	}
	return s
}

// bumpStats increments games played; updates wins, streak, and best
// score based on result (within tx).
func (s *Server) bumpStats(tx *sql.Tx, userID string, won bool, score int) error {
	var gp, wins, streak, best int
	row := tx.QueryRow(`SELECT games_played, wins, streak, best_score FROM users WHERE id=?`, userID)
	if err := row.Scan(&gp, &wins, &streak, &best); err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
		if score > best {
			best = score
		}
	} else {
		streak = 0
	}
	_, err := tx.Exec(`UPDATE users SET games_played=?, wins=?, streak=?, best_score=? WHERE id=?`, gp, wins, streak, best, userID)
	return err
}

// ------------------------------ JWT & cookies ------------------------------

// signJWT creates an HS256 JWT with id/username and a configurable expiry (JWT_EXPIRES_DAYS; default 14).
func (s *Server) signJWT(id, username string) (string, time.Time, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev_secret_change_me"
	}
	days := 14
	if v := os.Getenv("JWT_EXPIRES_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	exp := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       id,
		"username": username,
		"exp":      exp.Unix(),
		"iat":      time.Now().Unix(),
	})
	ss, err := t.SignedString([]byte(secret))
	return ss, exp, err
}

// setAuthCookie writes the auth token cookie with appropriate security attributes.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	name := getEnv("COOKIE_NAME", "memory_token")
	secure := os.Getenv("NODE_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode // required for third‑party contexts when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// clearAuthCookie deletes the auth token cookie.
func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	name := getEnv("COOKIE_NAME", "memory_token")
	secure := os.Getenv("NODE_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   -1,
	})
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func bearerOrCookie(r *http.Request) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(getEnv("COOKIE_NAME", "memory_token")); err == nil {
		return c.Value
	}
	return ""
}

// ---------------------------- auth middleware ------------------------------

// ctxUserKey is the context key type for storing authUser.
type ctxUserKey struct{}

// requireAuth enforces a valid JWT and injects authUser into request context.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerOrCookie(r)
			if tokenStr == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(getEnv("JWT_SECRET", "dev_secret_change_me")), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			id, _ := claims["id"].(string)
			username, _ := claims["username"].(string)
			if id == "" || username == "" {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			// Ensure user still exists
			if _, err := s.findUserByID(id); err != nil {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: id, Username: username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ------------------------------- small util --------------------------------

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// apps/go-server/internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Deal" mode.
// Exposes two endpoints under /daily:
//   - POST /daily/new         → start today's deal (creates or reuses session)
//   - GET  /daily/leaderboard → fetch top 20 results for today (or a given date)
//
// Each user can score once per day (enforced by DB + in-memory session).
// The deal itself is played through the regular /game endpoints; what
// makes it a daily is the deterministic deck seed (date + salt) and the
// result being recorded into daily_results on win.

package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memory/apps/go-server/internal/daily"
)

// dailyDifficulty fixes the preset every daily deal is dealt at, so
// scores on a given date are comparable.
const dailyDifficulty = "medium"

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv      *Server
	salt     string
	sessions map[string]string // userID|date → gameID of the in-flight deal
	mu       sync.Mutex        // guards sessions
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	dd := &dailyServer{
		srv:      s,
		salt:     getEnv("DAILY_SALT", "local_dev_salt"),
		sessions: make(map[string]string),
	}
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", dd.handleNew)
		r.Get("/leaderboard", dd.handleLeaderboard)
	})
}

// dateKeyNow returns today's date key and deterministic deal seed.
func (d *dailyServer) dateKeyNow() (date string, seed int64) {
	now := time.Now().UTC()
	return daily.DateKey(now), daily.Seed(now, d.salt)
}

// -----------------------------------------------------------------------------
// /daily/new

// dailyNewRes is returned by /daily/new.
type dailyNewRes struct {
	GameID string `json:"gameId"`
	Date   string `json:"date"`
	Played bool   `json:"played"`
}

// handleNew creates or reuses the daily session for the current date.
// - If user already has a daily_results row for today → return Played=true.
// - Otherwise create/reuse an in-memory session and return GameID.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	userID, anonID := d.srv.ownerFrom(w, r)
	uid := userID
	if uid == "" {
		uid = anonID
	}
	date, seed := d.dateKeyNow()

	// Check if already scored today (persisted in DB).
	if played, err := d.srv.daily.AlreadyPlayed(r.Context(), uid, date); err == nil && played {
		_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: "", Date: date, Played: true})
		return
	}

	// Reuse an in-flight session for today.
	key := uid + "|" + date
	d.mu.Lock()
	if gameID, ok := d.sessions[key]; ok {
		d.mu.Unlock()
		_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: gameID, Date: date, Played: false})
		return
	}
	d.mu.Unlock()

	eng, err := d.srv.createSession(userID, anonID, dailyDifficulty, &dailyMeta{date: date, seed: seed})
	if err != nil {
		log.Error().Err(err).Msg("create daily session")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}

	d.mu.Lock()
	d.sessions[key] = eng.ID()
	d.mu.Unlock()

	_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: eng.ID(), Date: date, Played: false})
}

// -----------------------------------------------------------------------------
// /daily/leaderboard

// dailyLBRes is returned by /daily/leaderboard.
type dailyLBRes struct {
	Date string        `json:"date"`
	Top  []daily.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date, _ = d.dateKeyNow()
	}
	rows, err := d.srv.daily.Leaderboard(r.Context(), date, 20)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(dailyLBRes{Date: date, Top: rows})
}

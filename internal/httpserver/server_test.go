package httpserver

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/memory/apps/go-server/internal/game"
	"github.com/robalobadob/memory/apps/go-server/internal/store"
)

// testSchema mirrors sql/001_init.sql; tests run against :memory: and
// do not walk the migrations directory.
const testSchema = `
CREATE TABLE users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TEXT NOT NULL,
    games_played INTEGER NOT NULL DEFAULT 0,
    wins INTEGER NOT NULL DEFAULT 0,
    streak INTEGER NOT NULL DEFAULT 0,
    best_score INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE games (
    id TEXT PRIMARY KEY,
    user_id TEXT REFERENCES users(id),
    anonymous_id TEXT,
    difficulty TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'playing',
    moves INTEGER NOT NULL DEFAULT 0,
    elapsed_seconds INTEGER NOT NULL DEFAULT 0,
    score INTEGER,
    started_at TEXT NOT NULL,
    finished_at TEXT
);
CREATE TABLE daily_results (
    user_id TEXT NOT NULL,
    date TEXT NOT NULL,
    seed INTEGER NOT NULL,
    moves INTEGER NOT NULL,
    elapsed_seconds INTEGER NOT NULL,
    score INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    UNIQUE(user_id, date)
);
`

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return New(store.NewMemoryStore(), db)
}

// do runs a request through the router, carrying cookies forward.
func do(t *testing.T, s *Server, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	w := do(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestNewGameDealsHiddenBoard(t *testing.T) {
	s := testServer(t)
	w := do(t, s, http.MethodPost, "/game/new", map[string]string{"difficulty": "easy"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[newGameRes](t, w)
	assert.NotEmpty(t, res.GameID)
	assert.Equal(t, "easy", res.State.Difficulty)
	assert.True(t, res.State.Active)
	assert.Len(t, res.State.Cards, 16)
	for _, c := range res.State.Cards {
		assert.Empty(t, c.Symbol, "fresh deal must not leak symbols")
		assert.False(t, c.FaceUp)
	}

	// ownership row exists
	var status string
	require.NoError(t, s.db.QueryRow(`SELECT status FROM games WHERE id=?`, res.GameID).Scan(&status))
	assert.Equal(t, "playing", status)
}

func TestNewGameRejectsBadDifficulty(t *testing.T) {
	s := testServer(t)
	w := do(t, s, http.MethodPost, "/game/new", map[string]string{"difficulty": "brutal"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_difficulty")
}

func TestSelectFlow(t *testing.T) {
	s := testServer(t)
	created := decode[newGameRes](t, do(t, s, http.MethodPost, "/game/new", map[string]string{"difficulty": "easy"}, nil))

	// out-of-range id is a hard 400
	w := do(t, s, http.MethodPost, "/game/select", selectReq{GameID: created.GameID, CardID: 99}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// unknown game is a 404
	w = do(t, s, http.MethodPost, "/game/select", selectReq{GameID: "nope", CardID: 0}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// first reveal
	w = do(t, s, http.MethodPost, "/game/select", selectReq{GameID: created.GameID, CardID: 0}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[stateRes](t, w)
	assert.True(t, res.State.Cards[0].FaceUp)
	assert.NotEmpty(t, res.State.Cards[0].Symbol, "revealed cards expose their symbol")
	assert.Zero(t, res.State.Moves)
}

func TestStateEndpoint(t *testing.T) {
	s := testServer(t)
	created := decode[newGameRes](t, do(t, s, http.MethodPost, "/game/new", map[string]string{"difficulty": "medium"}, nil))

	w := do(t, s, http.MethodGet, "/game/state?gameId="+created.GameID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[stateRes](t, w)
	assert.Equal(t, created.GameID, res.State.GameID)
	assert.Len(t, res.State.Cards, 20)

	w = do(t, s, http.MethodGet, "/game/state", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHintEndpoint(t *testing.T) {
	s := testServer(t)
	created := decode[newGameRes](t, do(t, s, http.MethodPost, "/game/new", map[string]string{"difficulty": "easy"}, nil))

	for i := 0; i < 3; i++ {
		w := do(t, s, http.MethodPost, "/game/hint", hintReq{GameID: created.GameID}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[hintRes](t, w)
		assert.True(t, res.OK)
		assert.Len(t, res.CardIDs, 2)
		assert.Equal(t, 2-i, res.State.HintsRemaining)
	}

	w := do(t, s, http.MethodPost, "/game/hint", hintReq{GameID: created.GameID}, nil)
	res := decode[hintRes](t, w)
	assert.False(t, res.OK)
	assert.Empty(t, res.CardIDs)
}

func TestRestartAndQuit(t *testing.T) {
	s := testServer(t)
	created := decode[newGameRes](t, do(t, s, http.MethodPost, "/game/new", map[string]string{"difficulty": "easy"}, nil))

	do(t, s, http.MethodPost, "/game/select", selectReq{GameID: created.GameID, CardID: 0}, nil)

	w := do(t, s, http.MethodPost, "/game/restart", restartReq{GameID: created.GameID}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[stateRes](t, w)
	assert.True(t, res.State.Active)
	for _, c := range res.State.Cards {
		assert.False(t, c.FaceUp)
	}

	w = do(t, s, http.MethodPost, "/game/quit", restartReq{GameID: created.GameID}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[stateRes](t, w)
	assert.False(t, res.State.Active)

	var status string
	require.NoError(t, s.db.QueryRow(`SELECT status FROM games WHERE id=?`, created.GameID).Scan(&status))
	assert.Equal(t, "quit", status)
}

func TestGameWonPersistsScoreAndStats(t *testing.T) {
	s := testServer(t)
	now := "2024-03-02T10:00:00Z"
	_, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES ('u1','player','x',?)`, now)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO games (id, user_id, difficulty, status, moves, started_at) VALUES ('g1','u1','easy','playing',0,?)`, now)
	require.NoError(t, err)

	meta := &sessionMeta{hub: newHub(), userID: "u1", difficulty: "easy"}
	s.gameWon("g1", meta, game.Result{ElapsedSeconds: 10, Moves: 8, Score: 462})

	var status string
	var score int
	require.NoError(t, s.db.QueryRow(`SELECT status, score FROM games WHERE id='g1'`).Scan(&status, &score))
	assert.Equal(t, "won", status)
	assert.Equal(t, 462, score)

	var gp, wins, streak, best int
	require.NoError(t, s.db.QueryRow(`SELECT games_played, wins, streak, best_score FROM users WHERE id='u1'`).Scan(&gp, &wins, &streak, &best))
	assert.Equal(t, 1, gp)
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, streak)
	assert.Equal(t, 462, best)

	// leaderboard reflects the win
	w := do(t, s, http.MethodGet, "/leaderboard?difficulty=easy", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]lbEntry](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "player", rows[0].Player)
	assert.Equal(t, 462, rows[0].Score)
}

func TestSignupLoginStats(t *testing.T) {
	s := testServer(t)

	w := do(t, s, http.MethodPost, "/auth/signup", signupReq{Username: "alice_1", Password: "hunter2hunter2"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = do(t, s, http.MethodGet, "/auth/me", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[authUser](t, w)
	assert.Equal(t, "alice_1", me.Username)

	w = do(t, s, http.MethodGet, "/stats/me", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.EqualValues(t, 0, stats["gamesPlayed"])
	assert.EqualValues(t, 0, stats["bestScore"])

	// duplicate username is a conflict
	w = do(t, s, http.MethodPost, "/auth/signup", signupReq{Username: "alice_1", Password: "hunter2hunter2"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// wrong password rejected
	w = do(t, s, http.MethodPost, "/auth/login", loginReq{Username: "alice_1", Password: "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// gated route without token
	w = do(t, s, http.MethodGet, "/stats/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDailyNewIsIdempotentWithinADay(t *testing.T) {
	s := testServer(t)

	w := do(t, s, http.MethodPost, "/daily/new", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[dailyNewRes](t, w)
	assert.False(t, first.Played)
	require.NotEmpty(t, first.GameID)

	// same anon cookie → same in-flight session
	cookies := w.Result().Cookies()
	w = do(t, s, http.MethodPost, "/daily/new", nil, cookies)
	second := decode[dailyNewRes](t, w)
	assert.Equal(t, first.GameID, second.GameID)
	assert.Equal(t, first.Date, second.Date)

	// the daily deal is playable through the regular game routes
	w = do(t, s, http.MethodGet, "/game/state?gameId="+first.GameID, nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[stateRes](t, w)
	assert.Equal(t, dailyDifficulty, res.State.Difficulty)
}

func TestDailyLeaderboardEmpty(t *testing.T) {
	s := testServer(t)
	w := do(t, s, http.MethodGet, "/daily/leaderboard?date=2024-03-02", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[dailyLBRes](t, w)
	assert.Equal(t, "2024-03-02", res.Date)
	assert.Empty(t, res.Top)
}

func TestWSRequiresKnownGame(t *testing.T) {
	s := testServer(t)
	w := do(t, s, http.MethodGet, "/game/ws", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/game/ws?gameId=nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// apps/go-server/internal/httpserver/ws.go
//
// WebSocket event push for game sessions.
// Each live engine gets one hub, which implements game.Sink and fans
// engine events out to every connected browser as JSON frames:
//   {"type":"state", "state":{...}}   full snapshot after any mutation
//   {"type":"tick",  "elapsedSeconds":n}
//   {"type":"hint",  "cardIds":[a,b]}
//   {"type":"won",   "result":{...}}
//
// The REST endpoints stay request/response; the socket is how a client
// observes the delayed mutations it never asked for (clock ticks, the
// mismatch flip-back) without polling.

package httpserver

import (
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memory/apps/go-server/internal/game"
)

// Event frame payloads.
type stateFrame struct {
	Type  string        `json:"type"`
	State game.Snapshot `json:"state"`
}
type tickFrame struct {
	Type           string `json:"type"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}
type hintFrame struct {
	Type    string `json:"type"`
	CardIDs [2]int `json:"cardIds"`
}
type wonFrame struct {
	Type   string      `json:"type"`
	Result game.Result `json:"result"`
}

// hub receives engine events and broadcasts them to subscribers.
// Implements game.Sink.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}

	// onWon, when set, runs after the won frame is broadcast.
	// The server uses it to persist the finished game.
	onWon func(res game.Result)
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) StateChanged(s game.Snapshot) {
	h.broadcast(stateFrame{Type: "state", State: s})
}

func (h *hub) Tick(elapsedSeconds int) {
	h.broadcast(tickFrame{Type: "tick", ElapsedSeconds: elapsedSeconds})
}

func (h *hub) Hint(a, b int) {
	h.broadcast(hintFrame{Type: "hint", CardIDs: [2]int{a, b}})
}

func (h *hub) Won(r game.Result) {
	h.broadcast(wonFrame{Type: "won", Result: r})
	if h.onWon != nil {
		h.onWon(r)
	}
}

// broadcast writes v to every subscriber, dropping connections whose
// writes fail. Write errors are expected churn (tab closed), not
// server errors.
func (h *hub) broadcast(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteJSON(v); err != nil {
			delete(h.conns, c)
			_ = c.Close()
		}
	}
}

// subscribe writes the initial frame and registers the subscriber in
// one step under the hub lock. gorilla allows only one concurrent
// writer per conn, so the initial write must serialize with broadcast;
// holding the lock for both also means no event can fall between them.
func (h *hub) subscribe(c *websocket.Conn, initial any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := c.WriteJSON(initial); err != nil {
		return err
	}
	h.conns[c] = struct{}{}
	return nil
}

// remove drops a subscriber.
func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// upgrader accepts the configured client origin (same env knob the
// CORS middleware uses) plus same-origin requests.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		allowed := os.Getenv("CLIENT_ORIGIN")
		if allowed == "" {
			allowed = "http://localhost:5173"
		}
		return origin == allowed || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// handleWS upgrades GET /game/ws?gameId= and streams engine events.
// The first frame is always the current snapshot so a late subscriber
// can render immediately.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
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
	meta := s.sessionMeta(gameID)
	if meta == nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("gameId", gameID).Msg("ws upgrade")
		return
	}

	if err := meta.hub.subscribe(conn, stateFrame{Type: "state", State: eng.Snapshot()}); err != nil {
		_ = conn.Close()
		return
	}

	// Read loop only drains control messages and detects close.
	go func() {
		defer func() {
			meta.hub.remove(conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

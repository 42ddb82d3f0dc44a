// apps/go-server/internal/game/types.go
//
// Core type definitions for the memory-match game engine.
// Defines:
//   - Difficulty: a named grid preset (rows × cols, pair count, bonus).
//   - Card: one tile of the deck with its face-up/matched lifecycle.
//   - Snapshot/CardView: the read-only state exposed to the renderer.
//   - Result: the payload of a win.
//   - Sink: the push-only event boundary toward the UI collaborator.

package game

import "errors"

// Engine errors. Anything not listed here is a silent no-op by design
// (clicking a matched card, hinting with no hints left, selecting while
// a mismatch is pending resolution).
var (
	// ErrInvalidDifficulty is returned by Start for an unknown preset name.
	ErrInvalidDifficulty = errors.New("invalid difficulty")

	// ErrInsufficientSymbols is returned by Start when the configured
	// pair count exceeds the symbol alphabet. Should never happen with
	// the shipped presets; checked defensively.
	ErrInsufficientSymbols = errors.New("insufficient symbols")

	// ErrInvalidCardID is returned by SelectCard for an id outside the
	// current deck. In-range cards that are merely unselectable right
	// now do NOT produce this error; those calls are no-ops.
	ErrInvalidCardID = errors.New("invalid card id")
)

// Difficulty is an immutable grid preset chosen at game start.
type Difficulty struct {
	Name      string // "easy" | "medium" | "hard"
	Rows      int    // grid rows
	Cols      int    // grid columns
	PairCount int    // number of symbol pairs (Rows*Cols == PairCount*2)
	Bonus     int    // flat score bonus awarded on a win
}

// difficulties holds the fixed preset set, keyed by name.
var difficulties = map[string]Difficulty{
	"easy":   {Name: "easy", Rows: 4, Cols: 4, PairCount: 8, Bonus: 100},
	"medium": {Name: "medium", Rows: 4, Cols: 5, PairCount: 10, Bonus: 200},
	"hard":   {Name: "hard", Rows: 5, Cols: 6, PairCount: 15, Bonus: 300},
}

// DifficultyByName resolves a preset or reports ErrInvalidDifficulty.
func DifficultyByName(name string) (Difficulty, error) {
	d, ok := difficulties[name]
	if !ok {
		return Difficulty{}, ErrInvalidDifficulty
	}
	return d, nil
}

// MaxPairCount reports the largest pair count across all presets.
// The symbol alphabet must be at least this large.
func MaxPairCount() int {
	max := 0
	for _, d := range difficulties {
		if d.PairCount > max {
			max = d.PairCount
		}
	}
	return max
}

// Card is one tile of the deck. ID doubles as the grid position
// (index into the dealt order). Symbol appears on exactly two cards.
type Card struct {
	ID      int
	Symbol  string
	FaceUp  bool
	Matched bool
}

// CardView is the client-facing representation of a card.
// Symbol is only populated when the card is face-up or matched, so a
// snapshot never leaks the layout of hidden cards to the UI.
type CardView struct {
	ID      int    `json:"id"`
	Symbol  string `json:"symbol,omitempty"`
	FaceUp  bool   `json:"faceUp"`
	Matched bool   `json:"matched"`
}

// Snapshot is a full read-only copy of session state, emitted after
// every mutation. Rendering layers should treat it as the single
// source of truth rather than tracking deltas.
type Snapshot struct {
	GameID         string     `json:"gameId"`
	Difficulty     string     `json:"difficulty"`
	Rows           int        `json:"rows"`
	Cols           int        `json:"cols"`
	Cards          []CardView `json:"cards"`
	PairCount      int        `json:"pairCount"`
	MatchedPairs   int        `json:"matchedPairs"`
	Moves          int        `json:"moves"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
	HintsRemaining int        `json:"hintsRemaining"`
	Active         bool       `json:"active"`
}

// Result is the payload of the won event.
type Result struct {
	ElapsedSeconds int `json:"elapsedSeconds"`
	Moves          int `json:"moves"`
	Score          int `json:"score"`
}

// Sink receives engine events. Implementations must not call back into
// the engine from within an event method; events are delivered outside
// the engine's lock but re-entrancy keeps ordering guarantees simple.
type Sink interface {
	// StateChanged delivers a full snapshot after any session mutation.
	StateChanged(s Snapshot)

	// Tick fires once per logical second while the session is active.
	// Deliberately separate from StateChanged so a UI can redraw only
	// its clock.
	Tick(elapsedSeconds int)

	// Hint carries the two card ids of a hint pair.
	Hint(a, b int)

	// Won fires exactly once per session, after the final StateChanged.
	Won(r Result)
}

// NopSink discards all events. Useful for tests and headless sessions.
type NopSink struct{}

func (NopSink) StateChanged(Snapshot) {}
func (NopSink) Tick(int)              {}
func (NopSink) Hint(int, int)         {}
func (NopSink) Won(Result)            {}

// apps/go-server/internal/game/engine.go
//
// Core game engine for a single memory-match session.
// Responsibilities:
//   - Deal decks from the symbol alphabet (each symbol exactly twice)
//     with a uniformly random Fisher–Yates shuffle.
//   - Drive the flip/match state machine: at most two face-up
//     unmatched cards at once; a mismatch flips back after a delay.
//   - Track moves, matched pairs, elapsed time, and remaining hints.
//   - Score wins: timeBonus + moveBonus + difficultyBonus.
//   - Emit snapshots and events to the Sink after every mutation.
//
// Notes:
//   - The symbol alphabet comes from the symbols package unless a
//     fixed alphabet is injected (testing, deterministic deals).
//   - Both time-driven behaviors (the 1 s clock and the mismatch
//     flip-back) are scheduled callbacks that capture the session
//     generation; replacing the session invalidates them without any
//     explicit cancellation.
//   - randomID() is a compact hex identifier for correlating server state.

package game

import (
	"crypto/rand"
	"encoding/hex"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/robalobadob/memory/apps/go-server/internal/symbols"
)

const (
	defaultFlipDelay = 1000 * time.Millisecond
	defaultTickEvery = time.Second
	startingHints    = 3
)

// Config carries the optional seams of an Engine. The zero value of
// every field selects a production default.
type Config struct {
	Sink      Sink          // event receiver; nil → NopSink
	Rand      *mrand.Rand   // deal randomness; nil → time-seeded
	Scheduler Scheduler     // timer seam; nil → real timers
	FlipDelay time.Duration // mismatch flip-back delay; 0 → 1000ms
	TickEvery time.Duration // clock granularity; 0 → 1s
	Alphabet  []string      // optional fixed alphabet (testing); nil → symbols.Alphabet()
}

// Engine owns exactly one game session at a time. All exported methods
// and all scheduled callbacks serialize on one mutex; events are
// delivered after the lock is released.
type Engine struct {
	mu        sync.Mutex
	id        string
	sink      Sink
	rng       *mrand.Rand
	sched     Scheduler
	flipDelay time.Duration
	tickEvery time.Duration
	alphabet  []string

	diff         Difficulty
	cards        []Card
	revealed     []int // ids of face-up unmatched cards, length 0..2
	matchedPairs int
	moves        int
	elapsed      int
	hints        int
	active       bool
	gen          uint64 // session generation; bumping it orphans scheduled callbacks
}

// New constructs an Engine. The session is empty until Start is called.
func New(cfg Config) *Engine {
	e := &Engine{
		id:        randomID(),
		sink:      cfg.Sink,
		rng:       cfg.Rand,
		sched:     cfg.Scheduler,
		flipDelay: cfg.FlipDelay,
		tickEvery: cfg.TickEvery,
		alphabet:  cfg.Alphabet,
	}
	if e.sink == nil {
		e.sink = NopSink{}
	}
	if e.rng == nil {
		e.rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	if e.sched == nil {
		e.sched = RealScheduler{}
	}
	if e.flipDelay == 0 {
		e.flipDelay = defaultFlipDelay
	}
	if e.tickEvery == 0 {
		e.tickEvery = defaultTickEvery
	}
	if e.alphabet == nil {
		e.alphabet = symbols.Alphabet()
	}
	return e
}

// ID returns the engine's session identifier.
func (e *Engine) ID() string { return e.id }

// Start deals a fresh session for the named difficulty preset and
// starts the clock. Any in-flight session state, including a pending
// mismatch flip-back, is discarded.
func (e *Engine) Start(name string) error {
	d, err := DifficultyByName(name)
	if err != nil {
		return err
	}
	return e.begin(d)
}

// Restart re-deals the current difficulty. Fails with
// ErrInvalidDifficulty if Start has never succeeded.
func (e *Engine) Restart() error {
	e.mu.Lock()
	d := e.diff
	e.mu.Unlock()
	if d.Name == "" {
		return ErrInvalidDifficulty
	}
	return e.begin(d)
}

// begin replaces the session wholesale and emits the opening snapshot.
func (e *Engine) begin(d Difficulty) error {
	e.mu.Lock()
	if d.PairCount > len(e.alphabet) {
		e.mu.Unlock()
		return ErrInsufficientSymbols
	}

	deck := make([]string, 0, d.PairCount*2)
	for _, s := range e.alphabet[:d.PairCount] {
		deck = append(deck, s, s)
	}
	deck = Shuffle(deck, e.rng)

	cards := make([]Card, len(deck))
	for i, s := range deck {
		cards[i] = Card{ID: i, Symbol: s}
	}

	e.diff = d
	e.cards = cards
	e.revealed = nil
	e.matchedPairs = 0
	e.moves = 0
	e.elapsed = 0
	e.hints = startingHints
	e.active = true
	e.gen++
	gen := e.gen
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.sink.StateChanged(snap)
	e.scheduleTick(gen)
	return nil
}

// SelectCard reveals the card with the given id.
//
// Out-of-range ids fail with ErrInvalidCardID. Everything else that
// "can't happen right now" is a silent no-op: inactive session, card
// already face-up or matched, or two cards already awaiting resolution.
//
// Revealing a second card completes a move: a symbol match locks both
// cards and may win the session; a mismatch schedules a flip-back
// after the configured delay. The snapshot showing both cards face-up
// is always emitted synchronously before any delayed resolution.
func (e *Engine) SelectCard(id int) error {
	e.mu.Lock()
	if id < 0 || id >= len(e.cards) {
		e.mu.Unlock()
		return ErrInvalidCardID
	}
	if !e.active || len(e.revealed) == 2 {
		e.mu.Unlock()
		return nil
	}
	c := &e.cards[id]
	if c.FaceUp || c.Matched {
		e.mu.Unlock()
		return nil
	}

	c.FaceUp = true
	e.revealed = append(e.revealed, id)

	var (
		won bool
		res Result
	)
	if len(e.revealed) == 2 {
		e.moves++
		a, b := e.revealed[0], e.revealed[1]
		if e.cards[a].Symbol == e.cards[b].Symbol {
			e.cards[a].Matched = true
			e.cards[b].Matched = true
			e.revealed = nil
			e.matchedPairs++
			if e.matchedPairs == e.diff.PairCount {
				e.active = false
				won = true
				res = Result{ElapsedSeconds: e.elapsed, Moves: e.moves, Score: e.scoreLocked()}
			}
		} else {
			e.scheduleFlipBack(e.gen, a, b)
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.sink.StateChanged(snap)
	if won {
		e.sink.Won(res)
	}
	return nil
}

// RequestHint picks a still-hidden pair and spends a hint.
//
// Among cards that are neither matched nor face-up, symbols are
// considered in order of their first occurrence (ascending card id);
// the first symbol with both cards still hidden supplies the hint,
// using its two lowest ids. Returns ok=false without side effects
// when the session is inactive, no hints remain, or no fully hidden
// pair exists. Card state is never mutated.
func (e *Engine) RequestHint() (a, b int, ok bool) {
	e.mu.Lock()
	if !e.active || e.hints <= 0 {
		e.mu.Unlock()
		return 0, 0, false
	}

	groups := make(map[string][]int)
	var order []string // symbols in first-occurrence order
	for _, c := range e.cards {
		if c.Matched || c.FaceUp {
			continue
		}
		if _, seen := groups[c.Symbol]; !seen {
			order = append(order, c.Symbol)
		}
		groups[c.Symbol] = append(groups[c.Symbol], c.ID)
	}
	for _, s := range order {
		ids := groups[s]
		if len(ids) < 2 {
			continue
		}
		a, b = ids[0], ids[1]
		e.hints--
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.sink.Hint(a, b)
		e.sink.StateChanged(snap)
		return a, b, true
	}
	e.mu.Unlock()
	return 0, 0, false
}

// Quit ends the session without altering cards or counters, so the
// final board remains available for display. Stops the clock and
// orphans any pending flip-back. No-op if already inactive.
func (e *Engine) Quit() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	e.gen++
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.sink.StateChanged(snap)
}

// Snapshot returns the current session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// snapshotLocked builds the client-facing state copy. Hidden cards do
// not expose their symbol.
func (e *Engine) snapshotLocked() Snapshot {
	views := make([]CardView, len(e.cards))
	for i, c := range e.cards {
		v := CardView{ID: c.ID, FaceUp: c.FaceUp, Matched: c.Matched}
		if c.FaceUp || c.Matched {
			v.Symbol = c.Symbol
		}
		views[i] = v
	}
	return Snapshot{
		GameID:         e.id,
		Difficulty:     e.diff.Name,
		Rows:           e.diff.Rows,
		Cols:           e.diff.Cols,
		Cards:          views,
		PairCount:      e.diff.PairCount,
		MatchedPairs:   e.matchedPairs,
		Moves:          e.moves,
		ElapsedSeconds: e.elapsed,
		HintsRemaining: e.hints,
		Active:         e.active,
	}
}

// scoreLocked evaluates the win score:
//
//	timeBonus = max(0, 300 - elapsedSeconds)
//	moveBonus = max(0, pairCount*10 - moves)
//	score     = timeBonus + moveBonus + difficultyBonus
func (e *Engine) scoreLocked() int {
	timeBonus := 300 - e.elapsed
	if timeBonus < 0 {
		timeBonus = 0
	}
	moveBonus := e.diff.PairCount*10 - e.moves
	if moveBonus < 0 {
		moveBonus = 0
	}
	return timeBonus + moveBonus + e.diff.Bonus
}

// scheduleTick arms the next clock tick for the given session
// generation. The chain stops by itself once the generation moves on
// or the session goes inactive.
func (e *Engine) scheduleTick(gen uint64) {
	e.sched.AfterFunc(e.tickEvery, func() {
		e.mu.Lock()
		if e.gen != gen || !e.active {
			e.mu.Unlock()
			return
		}
		e.elapsed++
		n := e.elapsed
		e.mu.Unlock()
		e.sink.Tick(n)
		e.scheduleTick(gen)
	})
}

// scheduleFlipBack arms the mismatch resolution for cards a and b.
// If the session was replaced before the delay elapsed, the callback
// must not touch the new session's cards; the generation check covers
// that.
func (e *Engine) scheduleFlipBack(gen uint64, a, b int) {
	e.sched.AfterFunc(e.flipDelay, func() {
		e.mu.Lock()
		if e.gen != gen {
			e.mu.Unlock()
			return
		}
		e.cards[a].FaceUp = false
		e.cards[b].FaceUp = false
		e.revealed = nil
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.sink.StateChanged(snap)
	})
}

// randomID returns a compact 16‑hex‑char identifier.
// Collisions are extremely unlikely given crypto/rand entropy.
func randomID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

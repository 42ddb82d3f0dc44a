// apps/go-server/internal/symbols/symbols.go
//
// Provides the symbol alphabet for the game engine.
//
// Responsibilities:
//   - Load the alphabet from an environment-provided file or fall back
//     to the embedded default set.
//   - Normalize entries (trim, skip blanks/comments, drop duplicates)
//     while preserving order — decks are dealt from a prefix of the
//     alphabet, so order is part of the contract.
//   - Supply Alphabet and Count accessors.
//
// Initialization behavior (Init):
//   1. If SYMBOLS_FILE is set, load one symbol per line from that file.
//   2. Otherwise use the embedded `default_symbols.txt`.
//
// Environment variables:
//   SYMBOLS_FILE=/path/to/symbols.txt
//
// Constraints:
//   • At least 2 distinct symbols must load, and the hard preset needs
//     15 — the shipped default carries 18.
//   • Initialization is run once (sync.Once).

package symbols

import (
	"bufio"
	_ "embed"
	"errors"
	"os"
	"strings"
	"sync"
)

//go:embed default_symbols.txt
var embeddedSymbols string

var (
	initOnce   sync.Once
	alphabet   []string
	initialErr error
)

// Init loads the symbol alphabet exactly once.
// Returns an error if fewer than two distinct symbols load.
func Init() error {
	initOnce.Do(func() {
		var list []string
		if path := os.Getenv("SYMBOLS_FILE"); path != "" {
			var err error
			list, err = readSymbolFile(path)
			if err != nil {
				initialErr = err
				return
			}
		} else {
			list = normalizeLines(embeddedSymbols)
		}
		alphabet = dedupe(list)
		if len(alphabet) < 2 {
			initialErr = errors.New("symbols: alphabet needs at least 2 symbols")
		}
	})
	return initialErr
}

// Alphabet returns the ordered symbol alphabet.
// Lazily initializes with the embedded default if Init was never called;
// returns nil if initialization failed.
func Alphabet() []string {
	_ = Init()
	return alphabet
}

// Count reports the alphabet size.
func Count() int { return len(Alphabet()) }

// readSymbolFile loads one symbol per line from a file,
// trimming whitespace and skipping blanks and # comments.
func readSymbolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// normalizeLines processes an embedded multiline string the same way
// readSymbolFile processes a file.
func normalizeLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		w := strings.TrimSpace(line)
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		out = append(out, w)
	}
	return out
}

// dedupe drops repeated symbols, keeping first occurrences in order.
func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

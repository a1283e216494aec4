package match

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/park285/rps-season-bot/internal/domain"
)

// Entry is one player's hand for a round.
type Entry struct {
	PlayerID string
	Username string
	Hand     domain.Hand
}

// Pair is two entries that play each other. A and B are the same player in a self-match.
type Pair struct {
	A Entry
	B Entry
}

func (p Pair) SelfMatch() bool { return p.A.PlayerID == p.B.PlayerID }

// Result is a resolved pair. Outcome is from A's side.
type Result struct {
	Pair
	Outcome domain.Outcome
}

// MakePairs shuffles entries and pairs them in order. With an odd count one random player
// is paired with themselves first, so every entry appears and len(result) == ceil(n/2).
// The input slice is not modified.
func MakePairs(entries []Entry, rng *rand.Rand) []Pair {
	if len(entries) == 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	pool := make([]Entry, len(entries))
	copy(pool, entries)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	pairs := make([]Pair, 0, (len(pool)+1)/2)
	if len(pool)%2 != 0 {
		i := rng.IntN(len(pool))
		solo := pool[i]
		pool = append(pool[:i], pool[i+1:]...)
		pairs = append(pairs, Pair{A: solo, B: solo})
	}
	for i := 0; i+1 < len(pool); i += 2 {
		pairs = append(pairs, Pair{A: pool[i], B: pool[i+1]})
	}
	return pairs
}

// Evaluate returns a's outcome against b. Two forfeits draw; a real hand always beats a forfeit.
func Evaluate(a, b domain.Hand) domain.Outcome {
	switch {
	case a == b:
		return domain.OutcomeDraw
	case a == domain.HandNone:
		return domain.OutcomeLost
	case b == domain.HandNone:
		return domain.OutcomeWon
	case beats(a, b):
		return domain.OutcomeWon
	default:
		return domain.OutcomeLost
	}
}

func beats(a, b domain.Hand) bool {
	switch a {
	case domain.HandRock:
		return b == domain.HandScissors
	case domain.HandScissors:
		return b == domain.HandPaper
	case domain.HandPaper:
		return b == domain.HandRock
	case domain.HandNone:
		return false
	}
	return false
}

// Resolve evaluates every pair.
func Resolve(pairs []Pair) []Result {
	out := make([]Result, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Result{Pair: p, Outcome: Evaluate(p.A.Hand, p.B.Hand)})
	}
	return out
}

// Announce renders one line per result.
func Announce(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(line(r))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func line(r Result) string {
	a, b, outcome := r.A, r.B, r.Outcome
	// a lone forfeit is told from the forfeiting side
	if b.Hand == domain.HandNone && a.Hand != domain.HandNone {
		a, b, outcome = b, a, outcome.Invert()
	}
	if a.Hand == domain.HandNone && b.Hand != domain.HandNone {
		return fmt.Sprintf("@%s did not play a hand and lost against @%s's %s!", a.Username, b.Username, b.Hand.Emoji())
	}
	switch outcome {
	case domain.OutcomeWon:
		return fmt.Sprintf("@%s played %s and won against @%s's %s!", a.Username, a.Hand.Emoji(), b.Username, b.Hand.Emoji())
	case domain.OutcomeLost:
		return fmt.Sprintf("@%s played %s and lost against @%s's %s!", a.Username, a.Hand.Emoji(), b.Username, b.Hand.Emoji())
	default:
		// both forfeited, including a self-paired forfeit
		return fmt.Sprintf("@%s played %s against @%s's %s. It's a draw!", a.Username, a.Hand.Emoji(), b.Username, b.Hand.Emoji())
	}
}

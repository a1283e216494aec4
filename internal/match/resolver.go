package match

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/store"
)

// SelfMatchScoring decides how a self-match is credited.
type SelfMatchScoring string

const (
	// SelfMatchDouble credits both roles of the self-match, so the draw is worth 2.
	SelfMatchDouble SelfMatchScoring = "double"
	// SelfMatchSingle credits the self-match once, like any other player's match.
	SelfMatchSingle SelfMatchScoring = "single"
)

func ParseSelfMatchScoring(s string) (SelfMatchScoring, error) {
	switch SelfMatchScoring(strings.ToLower(strings.TrimSpace(s))) {
	case "", SelfMatchDouble:
		return SelfMatchDouble, nil
	case SelfMatchSingle:
		return SelfMatchSingle, nil
	}
	return "", fmt.Errorf("unknown self-match scoring %q", s)
}

// Resolver pairs a closed round's moves and writes outcomes and scores through the caller's
// transaction.
type Resolver struct {
	mu        sync.Mutex
	rng       *rand.Rand
	selfMatch SelfMatchScoring
	logger    *zap.Logger
}

type Option func(*Resolver)

func WithRand(r *rand.Rand) Option {
	return func(res *Resolver) { res.rng = r }
}

func WithSelfMatchScoring(s SelfMatchScoring) Option {
	return func(res *Resolver) { res.selfMatch = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(res *Resolver) {
		if l != nil {
			res.logger = l
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{selfMatch: SelfMatchDouble, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r
}

// Pair shuffles and pairs moves. rand.Rand is not safe for concurrent use, hence the lock.
func (r *Resolver) Pair(moves []domain.Move) []Pair {
	entries := make([]Entry, 0, len(moves))
	for _, m := range moves {
		entries = append(entries, Entry{PlayerID: m.PlayerID, Username: m.PlayerUsername, Hand: m.Hand})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return MakePairs(entries, r.rng)
}

// Resolve pairs the round's moves, then applies the results.
func (r *Resolver) Resolve(ctx context.Context, q store.Queries, seasonID, roundID int64, moves []domain.Move) ([]Result, error) {
	return r.Apply(ctx, q, seasonID, roundID, r.Pair(moves))
}

// Apply evaluates each pair, records both sides on their move rows and credits scores.
// Usernames come from the roster at write time.
func (r *Resolver) Apply(ctx context.Context, q store.Queries, seasonID, roundID int64, pairs []Pair) ([]Result, error) {
	results := Resolve(pairs)
	for i := range results {
		res := &results[i]
		if err := r.fillUsernames(ctx, q, seasonID, &res.Pair); err != nil {
			return nil, err
		}

		if err := q.ResolveMove(ctx, resolution(roundID, res.A, res.B, res.Outcome)); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", res.A.PlayerID, err)
		}
		if !res.SelfMatch() {
			if err := q.ResolveMove(ctx, resolution(roundID, res.B, res.A, res.Outcome.Invert())); err != nil {
				return nil, fmt.Errorf("resolve %s: %w", res.B.PlayerID, err)
			}
		}

		if err := credit(ctx, q, seasonID, res.A.PlayerID, res.Outcome.Points()); err != nil {
			return nil, err
		}
		if !res.SelfMatch() || r.selfMatch == SelfMatchDouble {
			if err := credit(ctx, q, seasonID, res.B.PlayerID, res.Outcome.Invert().Points()); err != nil {
				return nil, err
			}
		}

		r.logger.Debug("match_resolved",
			zap.Int64("round_id", roundID),
			zap.String("player", res.A.PlayerID),
			zap.String("opponent", res.B.PlayerID),
			zap.String("outcome", string(res.Outcome)),
			zap.Bool("self_match", res.SelfMatch()),
		)
	}
	return results, nil
}

func (r *Resolver) fillUsernames(ctx context.Context, q store.Queries, seasonID int64, p *Pair) error {
	for _, e := range []*Entry{&p.A, &p.B} {
		pl, err := q.Player(ctx, seasonID, e.PlayerID)
		if err != nil {
			return err
		}
		if pl != nil {
			e.Username = pl.Username
		}
	}
	return nil
}

func resolution(roundID int64, self, opp Entry, outcome domain.Outcome) domain.MoveResolution {
	return domain.MoveResolution{
		RoundID:          roundID,
		PlayerID:         self.PlayerID,
		PlayerUsername:   self.Username,
		OpponentID:       opp.PlayerID,
		OpponentUsername: opp.Username,
		OpponentHand:     opp.Hand,
		Status:           outcome,
	}
}

func credit(ctx context.Context, q store.Queries, seasonID int64, playerID string, points int) error {
	if points == 0 {
		return nil
	}
	if err := q.AddScore(ctx, seasonID, playerID, points); err != nil {
		return fmt.Errorf("credit %s: %w", playerID, err)
	}
	return nil
}

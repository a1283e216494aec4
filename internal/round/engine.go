package round

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/match"
	"github.com/park285/rps-season-bot/internal/season"
	"github.com/park285/rps-season-bot/internal/store"
)

// Engine opens rounds, collects moves and closes rounds through the match resolver.
type Engine struct {
	store    store.Gateway
	resolver *match.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(gw store.Gateway, resolver *match.Resolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = match.NewResolver(match.WithLogger(logger))
	}
	return &Engine{store: gw, resolver: resolver, logger: logger, now: time.Now}
}

// CloseResult describes a closed round.
type CloseResult struct {
	Season       domain.Season
	Round        domain.Round
	Forfeits     int
	Results      []match.Result
	Announcement string
}

// Start opens the next round and moves the season to round_ongoing in one transaction.
func (e *Engine) Start(ctx context.Context) (*domain.Round, error) {
	var rd *domain.Round
	err := e.store.InTx(ctx, func(q store.Queries) error {
		s, err := lockSeason(ctx, q, domain.OpStartRound, domain.StatusStartGaming)
		if err != nil {
			return err
		}
		n, err := season.NextRoundNumber(ctx, q, s.ID)
		if err != nil {
			return err
		}
		rd, err = q.InsertRound(ctx, s.ID, n, e.now())
		if err != nil {
			return err
		}
		ok, err := q.TransitionSeason(ctx, s.ID, domain.StatusStartGaming, domain.StatusRoundOngoing)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentPhaseChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("round_started", zap.Int64("season_id", rd.SeasonID), zap.Int64("round_id", rd.ID), zap.Int("round_number", rd.Number))
	return rd, nil
}

// Submit records a move unless the player already has one for the round. It reports whether
// the move was written; a repeat submission writes nothing and returns false.
func (e *Engine) Submit(ctx context.Context, roundID int64, playerID string, hand domain.Hand) (bool, error) {
	if strings.TrimSpace(playerID) == "" {
		return false, fmt.Errorf("%w: player id is required", domain.ErrInvalidArgument)
	}
	return e.store.InsertMove(ctx, domain.Move{RoundID: roundID, PlayerID: playerID, Hand: hand, PlayedAt: e.now()})
}

// Play submits a rostered player's hand for the open round of the active season.
func (e *Engine) Play(ctx context.Context, playerID string, hand domain.Hand) (*domain.Round, error) {
	if hand == domain.HandNone {
		return nil, fmt.Errorf("%w: a hand is required", domain.ErrInvalidArgument)
	}
	var rd *domain.Round
	err := e.store.InTx(ctx, func(q store.Queries) error {
		s, err := lockSeason(ctx, q, domain.OpPlay, domain.StatusRoundOngoing)
		if err != nil {
			return err
		}
		p, err := q.Player(ctx, s.ID, playerID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrNotRegistered
		}
		rd, err = q.OpenRound(ctx, s.ID)
		if err != nil {
			return err
		}
		if rd == nil {
			return domain.ErrNoOpenRound
		}
		ok, err := q.InsertMove(ctx, domain.Move{
			RoundID:        rd.ID,
			PlayerID:       p.PlayerID,
			PlayerUsername: p.Username,
			Hand:           hand,
			PlayedAt:       e.now(),
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyPlayed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("move_submitted", zap.Int64("round_id", rd.ID), zap.String("player_id", playerID))
	return rd, nil
}

// Close forfeits every rostered player without a move, resolves the round, stamps its end
// time and returns the season to start_gaming. Nothing is committed unless all of it succeeds.
func (e *Engine) Close(ctx context.Context) (*CloseResult, error) {
	var out *CloseResult
	err := e.store.InTx(ctx, func(q store.Queries) error {
		s, err := lockSeason(ctx, q, domain.OpStopRound, domain.StatusRoundOngoing)
		if err != nil {
			return err
		}
		rd, err := q.OpenRound(ctx, s.ID)
		if err != nil {
			return err
		}
		if rd == nil {
			return domain.ErrNoOpenRound
		}
		now := e.now()

		moves, forfeits, err := e.collectMoves(ctx, q, s.ID, rd.ID, now)
		if err != nil {
			return err
		}
		results, err := e.resolver.Resolve(ctx, q, s.ID, rd.ID, moves)
		if err != nil {
			return err
		}

		ended, err := q.EndRound(ctx, rd.ID, now)
		if err != nil {
			return err
		}
		if !ended {
			return domain.ErrConcurrentPhaseChange
		}
		ok, err := q.TransitionSeason(ctx, s.ID, domain.StatusRoundOngoing, domain.StatusStartGaming)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentPhaseChange
		}

		closed := *rd
		closed.EndTime = &now
		s.Status = domain.StatusStartGaming
		out = &CloseResult{
			Season:       *s,
			Round:        closed,
			Forfeits:     forfeits,
			Results:      results,
			Announcement: match.Announce(results),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("round_closed",
		zap.Int64("season_id", out.Season.ID),
		zap.Int64("round_id", out.Round.ID),
		zap.Int("round_number", out.Round.Number),
		zap.Int("pairs", len(out.Results)),
		zap.Int("forfeits", out.Forfeits),
	)
	return out, nil
}

// collectMoves inserts forfeit rows for rostered players who did not play and returns the
// roster's moves. Moves from players not on the roster are left unresolved.
func (e *Engine) collectMoves(ctx context.Context, q store.Queries, seasonID, roundID int64, now time.Time) ([]domain.Move, int, error) {
	players, err := q.Players(ctx, seasonID)
	if err != nil {
		return nil, 0, err
	}
	existing, err := q.MovesByRound(ctx, roundID)
	if err != nil {
		return nil, 0, err
	}
	byPlayer := make(map[string]domain.Move, len(existing))
	for _, m := range existing {
		byPlayer[m.PlayerID] = m
	}

	moves := make([]domain.Move, 0, len(players))
	forfeits := 0
	for _, p := range players {
		if m, ok := byPlayer[p.PlayerID]; ok {
			m.PlayerUsername = p.Username
			moves = append(moves, m)
			delete(byPlayer, p.PlayerID)
			continue
		}
		forfeit := domain.Move{RoundID: roundID, PlayerID: p.PlayerID, PlayerUsername: p.Username, Hand: domain.HandNone, PlayedAt: now}
		ok, err := q.InsertMove(ctx, forfeit)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, domain.ErrConcurrentPhaseChange
		}
		moves = append(moves, forfeit)
		forfeits++
	}
	for id := range byPlayer {
		e.logger.Warn("move_without_roster_entry", zap.Int64("round_id", roundID), zap.String("player_id", id))
	}
	return moves, forfeits, nil
}

func lockSeason(ctx context.Context, q store.Queries, op domain.Operation, want domain.SeasonStatus) (*domain.Season, error) {
	s, err := q.LockActiveSeason(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrNoActiveSeason
	}
	if s.Status != want {
		return nil, domain.WrongPhase(op, s.Status)
	}
	return s, nil
}

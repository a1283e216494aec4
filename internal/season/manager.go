package season

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/store"
)

// transitions lists the statuses each phase operation may start from, and where it leads.
// round_ongoing is owned by the round engine and never appears here.
var transitions = map[domain.Operation]struct {
	from []domain.SeasonStatus
	to   domain.SeasonStatus
}{
	domain.OpStartSignup: {from: []domain.SeasonStatus{domain.StatusInitial, domain.StatusStoppedSignup}, to: domain.StatusStartSignup},
	domain.OpStopSignup:  {from: []domain.SeasonStatus{domain.StatusStartSignup}, to: domain.StatusStoppedSignup},
	domain.OpStartGaming: {from: []domain.SeasonStatus{domain.StatusStoppedSignup, domain.StatusStoppedGaming}, to: domain.StatusStartGaming},
	domain.OpStopGaming:  {from: []domain.SeasonStatus{domain.StatusStartGaming}, to: domain.StatusStoppedGaming},
}

// Allowed reports whether op may run while the season is in status cur.
func Allowed(op domain.Operation, cur domain.SeasonStatus) bool {
	t, ok := transitions[op]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == cur {
			return true
		}
	}
	return false
}

type Manager struct {
	store  store.Gateway
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(gw store.Gateway, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: gw, logger: logger, now: time.Now}
}

// Start creates the single active season in status initial.
func (m *Manager) Start(ctx context.Context, name string, maxPlayers int) (*domain.Season, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: season name is empty", domain.ErrInvalidArgument)
	}
	if maxPlayers <= 0 {
		return nil, fmt.Errorf("%w: max players must be positive", domain.ErrInvalidArgument)
	}
	s, err := m.store.InsertSeason(ctx, name, maxPlayers, m.now())
	if err != nil {
		return nil, err
	}
	m.logger.Info("season_started", zap.Int64("season_id", s.ID), zap.String("name", s.Name), zap.Int("max_players", s.MaxPlayers))
	return s, nil
}

// Stop closes the active season from any status. An open round is ended without scoring.
// The returned season is the closed row; rendering the final standings is up to the caller.
func (m *Manager) Stop(ctx context.Context) (*domain.Season, error) {
	var closed *domain.Season
	err := m.store.InTx(ctx, func(q store.Queries) error {
		cur, err := q.LockActiveSeason(ctx)
		if err != nil {
			return err
		}
		if cur == nil {
			return domain.ErrNoActiveSeason
		}
		now := m.now()
		if rd, err := q.OpenRound(ctx, cur.ID); err != nil {
			return err
		} else if rd != nil {
			if _, err := q.EndRound(ctx, rd.ID, now); err != nil {
				return err
			}
		}
		ok, err := q.CloseSeason(ctx, cur.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentPhaseChange
		}
		cur.Active = false
		cur.Status = domain.StatusClosed
		cur.StopDate = &now
		closed = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("season_stopped", zap.Int64("season_id", closed.ID), zap.String("name", closed.Name))
	return closed, nil
}

func (m *Manager) StartSignup(ctx context.Context) (*domain.Season, error) {
	return m.transition(ctx, domain.OpStartSignup)
}

func (m *Manager) StopSignup(ctx context.Context) (*domain.Season, error) {
	return m.transition(ctx, domain.OpStopSignup)
}

func (m *Manager) StartGaming(ctx context.Context) (*domain.Season, error) {
	return m.transition(ctx, domain.OpStartGaming)
}

func (m *Manager) StopGaming(ctx context.Context) (*domain.Season, error) {
	return m.transition(ctx, domain.OpStopGaming)
}

func (m *Manager) transition(ctx context.Context, op domain.Operation) (*domain.Season, error) {
	t, ok := transitions[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a phase operation", domain.ErrInvalidArgument, op)
	}
	cur, err := m.store.ActiveSeason(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, domain.ErrNoActiveSeason
	}
	if !Allowed(op, cur.Status) {
		return nil, domain.InvalidTransition(op, cur.Status)
	}
	updated, err := m.store.TransitionSeason(ctx, cur.ID, cur.Status, t.to)
	if err != nil {
		return nil, err
	}
	if !updated {
		m.logger.Warn("phase_conflict", zap.Int64("season_id", cur.ID), zap.String("op", string(op)), zap.String("expected", string(cur.Status)))
		return nil, domain.ErrConcurrentPhaseChange
	}
	m.logger.Info("season_phase_changed",
		zap.Int64("season_id", cur.ID),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(t.to)),
	)
	cur.Status = t.to
	return cur, nil
}

// Current returns the active season, or nil when there is none.
func (m *Manager) Current(ctx context.Context) (*domain.Season, error) {
	return m.store.ActiveSeason(ctx)
}

// NextRoundNumber is one past the highest round number recorded for the season.
func (m *Manager) NextRoundNumber(ctx context.Context, seasonID int64) (int, error) {
	return NextRoundNumber(ctx, m.store, seasonID)
}

func NextRoundNumber(ctx context.Context, q store.Queries, seasonID int64) (int, error) {
	n, err := q.MaxRoundNumber(ctx, seasonID)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

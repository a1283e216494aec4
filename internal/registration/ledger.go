package registration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/store"
)

// Ledger records signups and admin decisions for the active season.
type Ledger struct {
	store  store.Gateway
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(gw store.Gateway, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: gw, logger: logger, now: time.Now}
}

// Accepted is the roster entry created by Accept, with the room to notify.
type Accepted struct {
	PlayerID string
	Username string
	Room     string
}

// SignUp adds a pending candidate. room is where the player signed up from. The phase check
// holds the season row lock until the insert commits.
func (l *Ledger) SignUp(ctx context.Context, seasonID int64, playerID, username, room string) error {
	playerID = strings.TrimSpace(playerID)
	username = domain.NormalizeUsername(username)
	if playerID == "" || username == "" {
		return fmt.Errorf("%w: player id and username are required", domain.ErrInvalidArgument)
	}
	err := l.store.InTx(ctx, func(q store.Queries) error {
		if _, err := l.lockSignupSeason(ctx, q, seasonID, domain.OpSignUp); err != nil {
			return err
		}
		ok, err := q.InsertCandidate(ctx, domain.Candidate{
			SeasonID:  seasonID,
			PlayerID:  playerID,
			Username:  username,
			Status:    domain.CandidatePending,
			Room:      room,
			CreatedAt: l.now(),
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadySignedUp
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("candidate_signed_up", zap.Int64("season_id", seasonID), zap.String("player_id", playerID), zap.String("username", username))
	return nil
}

// Accept promotes the oldest pending candidate with username into the roster with score 0.
// The status update and roster insert commit together.
func (l *Ledger) Accept(ctx context.Context, seasonID int64, username string) (*Accepted, error) {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidArgument)
	}
	var out *Accepted
	err := l.store.InTx(ctx, func(q store.Queries) error {
		season, err := l.lockSignupSeason(ctx, q, seasonID, domain.OpApprove)
		if err != nil {
			return err
		}
		n, err := q.CountPlayers(ctx, seasonID)
		if err != nil {
			return err
		}
		c, err := q.DecideCandidate(ctx, seasonID, username, domain.CandidatePending, domain.CandidateAccepted)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.ErrNoPendingCandidate
		}
		if n >= season.MaxPlayers {
			return fmt.Errorf("%w: %d of %d places taken", domain.ErrSeasonFull, n, season.MaxPlayers)
		}
		if err := q.InsertPlayer(ctx, domain.Player{
			SeasonID: seasonID,
			PlayerID: c.PlayerID,
			Username: c.Username,
			Wallet:   c.Wallet,
		}); err != nil {
			return err
		}
		out = &Accepted{PlayerID: c.PlayerID, Username: c.Username, Room: c.Room}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("candidate_accepted", zap.Int64("season_id", seasonID), zap.String("player_id", out.PlayerID), zap.String("username", out.Username))
	return out, nil
}

// Refuse marks the oldest pending candidate with username as refused. No roster row is made.
func (l *Ledger) Refuse(ctx context.Context, seasonID int64, username string) error {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrInvalidArgument)
	}
	var c *domain.Candidate
	err := l.store.InTx(ctx, func(q store.Queries) error {
		if _, err := l.lockSignupSeason(ctx, q, seasonID, domain.OpRefuse); err != nil {
			return err
		}
		var err error
		c, err = q.DecideCandidate(ctx, seasonID, username, domain.CandidatePending, domain.CandidateRefused)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.ErrNoPendingCandidate
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("candidate_refused", zap.Int64("season_id", seasonID), zap.String("player_id", c.PlayerID), zap.String("username", c.Username))
	return nil
}

// List returns candidates in signup order.
func (l *Ledger) List(ctx context.Context, seasonID int64, filter domain.ListFilter) ([]domain.Candidate, error) {
	switch filter {
	case domain.FilterAll, domain.FilterPending, domain.FilterAccepted, domain.FilterRefused:
	default:
		return nil, fmt.Errorf("%w: unknown filter %q", domain.ErrInvalidArgument, filter)
	}
	return l.store.ListCandidates(ctx, seasonID, filter)
}

func (l *Ledger) lockSignupSeason(ctx context.Context, q store.Queries, seasonID int64, op domain.Operation) (*domain.Season, error) {
	s, err := q.LockActiveSeason(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkSignup(s, seasonID, op); err != nil {
		return nil, err
	}
	return s, nil
}

func checkSignup(s *domain.Season, seasonID int64, op domain.Operation) error {
	if s == nil || s.ID != seasonID {
		return domain.ErrNoActiveSeason
	}
	if s.Status != domain.StatusStartSignup {
		return domain.WrongPhase(op, s.Status)
	}
	return nil
}

package store

import (
	"context"
	"time"

	"github.com/park285/rps-season-bot/internal/domain"
)

// Queries is the typed read/write surface the season core uses. Implementations run each
// call either directly against the pool or inside the transaction handed to InTx.
type Queries interface {
	ActiveSeason(ctx context.Context) (*domain.Season, error)
	// LockActiveSeason reads the active season and holds a row lock until the transaction ends.
	LockActiveSeason(ctx context.Context) (*domain.Season, error)
	// InsertSeason returns domain.ErrAlreadyActive when another season is active.
	InsertSeason(ctx context.Context, name string, maxPlayers int, now time.Time) (*domain.Season, error)
	// TransitionSeason moves an active season from one status to another. It reports false
	// when no row matched the expected status.
	TransitionSeason(ctx context.Context, seasonID int64, from, to domain.SeasonStatus) (bool, error)
	CloseSeason(ctx context.Context, seasonID int64, now time.Time) (bool, error)

	MaxRoundNumber(ctx context.Context, seasonID int64) (int, error)
	// InsertRound returns domain.ErrConcurrentPhaseChange when the season already has an open round.
	InsertRound(ctx context.Context, seasonID int64, number int, now time.Time) (*domain.Round, error)
	OpenRound(ctx context.Context, seasonID int64) (*domain.Round, error)
	EndRound(ctx context.Context, roundID int64, now time.Time) (bool, error)

	// InsertMove reports false when the player already has a row for the round.
	InsertMove(ctx context.Context, m domain.Move) (bool, error)
	MovesByRound(ctx context.Context, roundID int64) ([]domain.Move, error)
	ResolveMove(ctx context.Context, r domain.MoveResolution) error

	// InsertCandidate reports false when (season, player) already exists.
	InsertCandidate(ctx context.Context, c domain.Candidate) (bool, error)
	// DecideCandidate flips the oldest candidate with the given username from one status to
	// another and returns it, or nil when nothing matched.
	DecideCandidate(ctx context.Context, seasonID int64, username string, from, to domain.CandidateStatus) (*domain.Candidate, error)
	ListCandidates(ctx context.Context, seasonID int64, filter domain.ListFilter) ([]domain.Candidate, error)

	InsertPlayer(ctx context.Context, p domain.Player) error
	CountPlayers(ctx context.Context, seasonID int64) (int, error)
	Player(ctx context.Context, seasonID int64, playerID string) (*domain.Player, error)
	// Players is ordered by score descending, then player id ascending.
	Players(ctx context.Context, seasonID int64) ([]domain.Player, error)
	AddScore(ctx context.Context, seasonID int64, playerID string, delta int) error

	// InsertAdmin reports false when the user id is already stored.
	InsertAdmin(ctx context.Context, a domain.Administrator) (bool, error)
	DeleteAdmin(ctx context.Context, userID string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	// Admins is ordered by user id.
	Admins(ctx context.Context) ([]domain.Administrator, error)

	ChannelSettings(ctx context.Context) (domain.ChannelSettings, error)
	SetBroadcastChannel(ctx context.Context, id string) error
	SetGroupChannel(ctx context.Context, id string) error
	ResetChannels(ctx context.Context) error
}

// Gateway is the pooled store. InTx commits when fn returns nil and rolls back otherwise;
// fn's error is returned unchanged.
type Gateway interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}

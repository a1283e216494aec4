package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/park285/rps-season-bot/internal/domain"
)

// Memory is an in-process Gateway used when no DATABASE_URL is configured and in tests.
// It enforces the same uniqueness rules as the SQL schema. Transactions run on a copy of
// the state that replaces the original only on success, so InTx is all-or-nothing.
// Calls made through Memory itself from inside an InTx callback deadlock; use the Queries
// passed to the callback.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: &memState{}}
}

func (m *Memory) InTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) ActiveSeason(ctx context.Context) (*domain.Season, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ActiveSeason(ctx)
}

func (m *Memory) LockActiveSeason(ctx context.Context) (*domain.Season, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LockActiveSeason(ctx)
}

func (m *Memory) InsertSeason(ctx context.Context, name string, maxPlayers int, now time.Time) (*domain.Season, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertSeason(ctx, name, maxPlayers, now)
}

func (m *Memory) TransitionSeason(ctx context.Context, seasonID int64, from, to domain.SeasonStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TransitionSeason(ctx, seasonID, from, to)
}

func (m *Memory) CloseSeason(ctx context.Context, seasonID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CloseSeason(ctx, seasonID, now)
}

func (m *Memory) MaxRoundNumber(ctx context.Context, seasonID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.MaxRoundNumber(ctx, seasonID)
}

func (m *Memory) InsertRound(ctx context.Context, seasonID int64, number int, now time.Time) (*domain.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertRound(ctx, seasonID, number, now)
}

func (m *Memory) OpenRound(ctx context.Context, seasonID int64) (*domain.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.OpenRound(ctx, seasonID)
}

func (m *Memory) EndRound(ctx context.Context, roundID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.EndRound(ctx, roundID, now)
}

func (m *Memory) InsertMove(ctx context.Context, mv domain.Move) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertMove(ctx, mv)
}

func (m *Memory) MovesByRound(ctx context.Context, roundID int64) ([]domain.Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.MovesByRound(ctx, roundID)
}

func (m *Memory) ResolveMove(ctx context.Context, r domain.MoveResolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ResolveMove(ctx, r)
}

func (m *Memory) InsertCandidate(ctx context.Context, c domain.Candidate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertCandidate(ctx, c)
}

func (m *Memory) DecideCandidate(ctx context.Context, seasonID int64, username string, from, to domain.CandidateStatus) (*domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DecideCandidate(ctx, seasonID, username, from, to)
}

func (m *Memory) ListCandidates(ctx context.Context, seasonID int64, filter domain.ListFilter) ([]domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListCandidates(ctx, seasonID, filter)
}

func (m *Memory) InsertPlayer(ctx context.Context, p domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertPlayer(ctx, p)
}

func (m *Memory) CountPlayers(ctx context.Context, seasonID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CountPlayers(ctx, seasonID)
}

func (m *Memory) Player(ctx context.Context, seasonID int64, playerID string) (*domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Player(ctx, seasonID, playerID)
}

func (m *Memory) Players(ctx context.Context, seasonID int64) ([]domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Players(ctx, seasonID)
}

func (m *Memory) AddScore(ctx context.Context, seasonID int64, playerID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AddScore(ctx, seasonID, playerID, delta)
}

func (m *Memory) InsertAdmin(ctx context.Context, a domain.Administrator) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertAdmin(ctx, a)
}

func (m *Memory) DeleteAdmin(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteAdmin(ctx, userID)
}

func (m *Memory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAdmin(ctx, userID)
}

func (m *Memory) Admins(ctx context.Context) ([]domain.Administrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Admins(ctx)
}

func (m *Memory) ChannelSettings(ctx context.Context) (domain.ChannelSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ChannelSettings(ctx)
}

func (m *Memory) SetBroadcastChannel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetBroadcastChannel(ctx, id)
}

func (m *Memory) SetGroupChannel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetGroupChannel(ctx, id)
}

func (m *Memory) ResetChannels(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ResetChannels(ctx)
}

// memState holds rows by value. Pointer fields (StopDate, EndTime) are replaced on update,
// never written through, so a shallow slice copy is a safe snapshot.
type memState struct {
	seasonSeq    int64
	roundSeq     int64
	candidateSeq int64

	seasons    []domain.Season
	rounds     []domain.Round
	moves      []domain.Move
	candidates []domain.Candidate
	players    []domain.Player
	admins     []domain.Administrator
	channels   domain.ChannelSettings
}

func (s *memState) clone() *memState {
	c := *s
	c.seasons = slices.Clone(s.seasons)
	c.rounds = slices.Clone(s.rounds)
	c.moves = slices.Clone(s.moves)
	c.candidates = slices.Clone(s.candidates)
	c.players = slices.Clone(s.players)
	c.admins = slices.Clone(s.admins)
	return &c
}

func (s *memState) ActiveSeason(_ context.Context) (*domain.Season, error) {
	for i := range s.seasons {
		if s.seasons[i].Active {
			out := s.seasons[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memState) LockActiveSeason(ctx context.Context) (*domain.Season, error) {
	return s.ActiveSeason(ctx)
}

func (s *memState) InsertSeason(ctx context.Context, name string, maxPlayers int, now time.Time) (*domain.Season, error) {
	if cur, _ := s.ActiveSeason(ctx); cur != nil {
		return nil, domain.ErrAlreadyActive
	}
	s.seasonSeq++
	season := domain.Season{
		ID:         s.seasonSeq,
		Name:       name,
		Active:     true,
		MaxPlayers: maxPlayers,
		StartDate:  now,
		Status:     domain.StatusInitial,
	}
	s.seasons = append(s.seasons, season)
	return &season, nil
}

func (s *memState) TransitionSeason(_ context.Context, seasonID int64, from, to domain.SeasonStatus) (bool, error) {
	for i := range s.seasons {
		se := &s.seasons[i]
		if se.ID == seasonID && se.Active && se.Status == from {
			se.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) CloseSeason(_ context.Context, seasonID int64, now time.Time) (bool, error) {
	for i := range s.seasons {
		se := &s.seasons[i]
		if se.ID == seasonID && se.Active {
			t := now
			se.Active = false
			se.Status = domain.StatusClosed
			se.StopDate = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) MaxRoundNumber(_ context.Context, seasonID int64) (int, error) {
	n := 0
	for _, r := range s.rounds {
		if r.SeasonID == seasonID && r.Number > n {
			n = r.Number
		}
	}
	return n, nil
}

func (s *memState) InsertRound(_ context.Context, seasonID int64, number int, now time.Time) (*domain.Round, error) {
	for _, r := range s.rounds {
		if r.SeasonID != seasonID {
			continue
		}
		if r.Open() || r.Number == number {
			return nil, domain.ErrConcurrentPhaseChange
		}
	}
	s.roundSeq++
	rd := domain.Round{ID: s.roundSeq, SeasonID: seasonID, Number: number, StartTime: now}
	s.rounds = append(s.rounds, rd)
	return &rd, nil
}

func (s *memState) OpenRound(_ context.Context, seasonID int64) (*domain.Round, error) {
	for i := len(s.rounds) - 1; i >= 0; i-- {
		if r := s.rounds[i]; r.SeasonID == seasonID && r.Open() {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memState) EndRound(_ context.Context, roundID int64, now time.Time) (bool, error) {
	for i := range s.rounds {
		r := &s.rounds[i]
		if r.ID == roundID && r.Open() {
			t := now
			r.EndTime = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) InsertMove(_ context.Context, m domain.Move) (bool, error) {
	for _, mv := range s.moves {
		if mv.RoundID == m.RoundID && mv.PlayerID == m.PlayerID {
			return false, nil
		}
	}
	m.OpponentID, m.OpponentUsername, m.OpponentHand, m.Status = "", "", domain.HandNone, ""
	s.moves = append(s.moves, m)
	return true, nil
}

func (s *memState) MovesByRound(_ context.Context, roundID int64) ([]domain.Move, error) {
	var out []domain.Move
	for _, mv := range s.moves {
		if mv.RoundID == roundID {
			out = append(out, mv)
		}
	}
	slices.SortFunc(out, func(a, b domain.Move) int { return cmp.Compare(a.PlayerID, b.PlayerID) })
	return out, nil
}

func (s *memState) ResolveMove(_ context.Context, r domain.MoveResolution) error {
	for i := range s.moves {
		mv := &s.moves[i]
		if mv.RoundID == r.RoundID && mv.PlayerID == r.PlayerID {
			mv.PlayerUsername = r.PlayerUsername
			mv.OpponentID = r.OpponentID
			mv.OpponentUsername = r.OpponentUsername
			mv.OpponentHand = r.OpponentHand
			mv.Status = r.Status
			return nil
		}
	}
	return domain.WrapStore("resolve move", fmt.Errorf("no move row for round %d player %s", r.RoundID, r.PlayerID))
}

func (s *memState) InsertCandidate(_ context.Context, c domain.Candidate) (bool, error) {
	for _, cd := range s.candidates {
		if cd.SeasonID == c.SeasonID && cd.PlayerID == c.PlayerID {
			return false, nil
		}
	}
	s.candidateSeq++
	c.ID = s.candidateSeq
	s.candidates = append(s.candidates, c)
	return true, nil
}

func (s *memState) DecideCandidate(_ context.Context, seasonID int64, username string, from, to domain.CandidateStatus) (*domain.Candidate, error) {
	// candidates are appended in signup order, so the first match is the oldest
	for i := range s.candidates {
		c := &s.candidates[i]
		if c.SeasonID == seasonID && c.Username == username && c.Status == from {
			c.Status = to
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memState) ListCandidates(_ context.Context, seasonID int64, filter domain.ListFilter) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, c := range s.candidates {
		if c.SeasonID == seasonID && filter.Matches(c.Status) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memState) InsertPlayer(_ context.Context, p domain.Player) error {
	for _, pl := range s.players {
		if pl.SeasonID == p.SeasonID && pl.PlayerID == p.PlayerID {
			return fmt.Errorf("%w: %s is already on the roster", domain.ErrAlreadySignedUp, p.Username)
		}
	}
	s.players = append(s.players, p)
	return nil
}

func (s *memState) CountPlayers(_ context.Context, seasonID int64) (int, error) {
	n := 0
	for _, p := range s.players {
		if p.SeasonID == seasonID {
			n++
		}
	}
	return n, nil
}

func (s *memState) Player(_ context.Context, seasonID int64, playerID string) (*domain.Player, error) {
	for _, p := range s.players {
		if p.SeasonID == seasonID && p.PlayerID == playerID {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memState) Players(_ context.Context, seasonID int64) ([]domain.Player, error) {
	var out []domain.Player
	for _, p := range s.players {
		if p.SeasonID == seasonID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Player) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
	return out, nil
}

func (s *memState) AddScore(_ context.Context, seasonID int64, playerID string, delta int) error {
	for i := range s.players {
		p := &s.players[i]
		if p.SeasonID == seasonID && p.PlayerID == playerID {
			p.Score += delta
			return nil
		}
	}
	return fmt.Errorf("add score for %s: %w", playerID, domain.ErrNotRegistered)
}

func (s *memState) InsertAdmin(_ context.Context, a domain.Administrator) (bool, error) {
	for _, cur := range s.admins {
		if cur.UserID == a.UserID {
			return false, nil
		}
	}
	s.admins = append(s.admins, a)
	return true, nil
}

func (s *memState) DeleteAdmin(_ context.Context, userID string) (bool, error) {
	for i, a := range s.admins {
		if a.UserID == userID {
			s.admins = slices.Delete(s.admins, i, i+1)
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) IsAdmin(_ context.Context, userID string) (bool, error) {
	for _, a := range s.admins {
		if a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) Admins(_ context.Context) ([]domain.Administrator, error) {
	out := slices.Clone(s.admins)
	slices.SortFunc(out, func(a, b domain.Administrator) int { return cmp.Compare(a.UserID, b.UserID) })
	return out, nil
}

func (s *memState) ChannelSettings(_ context.Context) (domain.ChannelSettings, error) {
	return s.channels, nil
}

func (s *memState) SetBroadcastChannel(_ context.Context, id string) error {
	s.channels.BroadcastChannelID = id
	return nil
}

func (s *memState) SetGroupChannel(_ context.Context, id string) error {
	s.channels.GroupChannelID = id
	return nil
}

func (s *memState) ResetChannels(_ context.Context) error {
	s.channels = domain.ChannelSettings{}
	return nil
}

var (
	_ Gateway = (*Memory)(nil)
	_ Gateway = (*Postgres)(nil)
	_ Queries = (*memState)(nil)
)

package access

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/store"
)

var (
	ErrAlreadyAdmin   = errors.New("already an administrator")
	ErrNotAdmin       = errors.New("not an administrator")
	ErrBootstrapAdmin = errors.New("configured administrators cannot be removed")
	ErrUnknownUser    = errors.New("no signup matches that name")
	ErrAmbiguousUser  = errors.New("more than one user matches that name")
)

// Role is the highest privilege a sender holds.
type Role int

const (
	RolePlayer Role = iota
	RoleAdmin
	RoleDev
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleDev:
		return "developer"
	}
	return "player"
}

// Service answers who may run admin and developer commands. Roles are keyed by the Iris user
// id; display names are chosen by the user and never grant anything. Bootstrap admins come
// from configuration and always hold the role; the rest live in the administrators table.
type Service struct {
	store     store.Queries
	bootstrap map[string]struct{}
	devs      map[string]struct{}
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(q store.Queries, bootstrapAdmins, devs []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     q,
		bootstrap: toSet(bootstrapAdmins),
		devs:      toSet(devs),
		logger:    logger,
		now:       time.Now,
	}
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// Role resolves the sender's role from their user id. Developers also count as admins.
func (s *Service) Role(ctx context.Context, userID string) (Role, error) {
	if s.IsDev(userID) {
		return RoleDev, nil
	}
	ok, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return RolePlayer, err
	}
	if ok {
		return RoleAdmin, nil
	}
	return RolePlayer, nil
}

func (s *Service) IsDev(userID string) bool {
	_, ok := s.devs[strings.TrimSpace(userID)]
	return ok
}

func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	if _, ok := s.bootstrap[userID]; ok {
		return true, nil
	}
	return s.store.IsAdmin(ctx, userID)
}

// Add grants the admin role. target is a user id, or @name to pick the one signup of the
// active season with that display name.
func (s *Service) Add(ctx context.Context, target, addedBy string) (*domain.Administrator, error) {
	a, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if _, ok := s.bootstrap[a.UserID]; ok {
		return nil, ErrAlreadyAdmin
	}
	a.AddedBy = domain.NormalizeUsername(addedBy)
	a.CreatedAt = s.now()
	ok, err := s.store.InsertAdmin(ctx, *a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyAdmin
	}
	s.logger.Info("admin_added", zap.String("user_id", a.UserID), zap.String("username", a.Username), zap.String("added_by", a.AddedBy))
	return a, nil
}

// Remove revokes a stored admin. target is a user id, or @name matching exactly one stored
// admin's display name.
func (s *Service) Remove(ctx context.Context, target string) (*domain.Administrator, error) {
	a, err := s.stored(ctx, target)
	if err != nil {
		return nil, err
	}
	if _, ok := s.bootstrap[a.UserID]; ok {
		return nil, ErrBootstrapAdmin
	}
	ok, err := s.store.DeleteAdmin(ctx, a.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAdmin
	}
	s.logger.Info("admin_removed", zap.String("user_id", a.UserID))
	return a, nil
}

// List returns configured and stored administrators ordered by user id.
// Configured entries have an empty AddedBy.
func (s *Service) List(ctx context.Context) ([]domain.Administrator, error) {
	stored, err := s.store.Admins(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Administrator, 0, len(stored)+len(s.bootstrap))
	for id := range s.bootstrap {
		out = append(out, domain.Administrator{UserID: id})
	}
	for _, a := range stored {
		if _, ok := s.bootstrap[a.UserID]; !ok {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Administrator) int { return cmp.Compare(a.UserID, b.UserID) })
	return out, nil
}

// Label renders an administrator as "@name (id)", or the bare id when no name is known.
func Label(a domain.Administrator) string {
	if a.Username == "" {
		return a.UserID
	}
	return fmt.Sprintf("@%s (%s)", a.Username, a.UserID)
}

// resolve turns an addadmin target into a user id. Names are looked up among the active
// season's signups; an id is taken as given and labelled from its signup when there is one.
func (s *Service) resolve(ctx context.Context, target string) (*domain.Administrator, error) {
	target = strings.TrimSpace(target)
	byName := strings.HasPrefix(target, "@")
	key := domain.NormalizeUsername(target)
	if key == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	cands, err := s.signups(ctx)
	if err != nil {
		return nil, err
	}
	if !byName {
		a := &domain.Administrator{UserID: key}
		for _, c := range cands {
			if c.PlayerID == key {
				a.Username = c.Username
				break
			}
		}
		return a, nil
	}
	var found *domain.Administrator
	for _, c := range cands {
		if c.Username != key {
			continue
		}
		if found != nil && found.UserID != c.PlayerID {
			return nil, ErrAmbiguousUser
		}
		found = &domain.Administrator{UserID: c.PlayerID, Username: c.Username}
	}
	if found == nil {
		return nil, ErrUnknownUser
	}
	return found, nil
}

func (s *Service) signups(ctx context.Context) ([]domain.Candidate, error) {
	season, err := s.store.ActiveSeason(ctx)
	if err != nil || season == nil {
		return nil, err
	}
	return s.store.ListCandidates(ctx, season.ID, domain.FilterAll)
}

// stored finds a removal target among configured and stored administrators.
func (s *Service) stored(ctx context.Context, target string) (*domain.Administrator, error) {
	target = strings.TrimSpace(target)
	key := domain.NormalizeUsername(target)
	if key == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if !strings.HasPrefix(target, "@") {
		return &domain.Administrator{UserID: key}, nil
	}
	admins, err := s.store.Admins(ctx)
	if err != nil {
		return nil, err
	}
	var found *domain.Administrator
	for _, a := range admins {
		if a.Username != key {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousUser
		}
		found = &a
	}
	if found == nil {
		return nil, ErrNotAdmin
	}
	return found, nil
}

package channels

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/store"
)

// NotSet is shown for a channel that has not been configured.
const NotSet = "Not set"

// Service keeps the broadcast and group rooms announcements are mirrored to.
type Service struct {
	store  store.Queries
	logger *zap.Logger
}

func NewService(q store.Queries, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: q, logger: logger}
}

func (s *Service) Get(ctx context.Context) (domain.ChannelSettings, error) {
	return s.store.ChannelSettings(ctx)
}

func (s *Service) SetBroadcast(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("%w: room is required", domain.ErrInvalidArgument)
	}
	if err := s.store.SetBroadcastChannel(ctx, room); err != nil {
		return err
	}
	s.logger.Info("broadcast_channel_set", zap.String("room", room))
	return nil
}

func (s *Service) SetGroup(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("%w: room is required", domain.ErrInvalidArgument)
	}
	if err := s.store.SetGroupChannel(ctx, room); err != nil {
		return err
	}
	s.logger.Info("group_channel_set", zap.String("room", room))
	return nil
}

func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.ResetChannels(ctx); err != nil {
		return err
	}
	s.logger.Info("channels_reset")
	return nil
}

// Mirrors lists the configured channels other than origin, broadcast first, without duplicates.
func (s *Service) Mirrors(ctx context.Context, origin string) ([]string, error) {
	cs, err := s.store.ChannelSettings(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, room := range []string{cs.BroadcastChannelID, cs.GroupChannelID} {
		if room == "" || room == origin {
			continue
		}
		if len(out) == 1 && out[0] == room {
			continue
		}
		out = append(out, room)
	}
	return out, nil
}

// Display renders a channel id, or NotSet.
func Display(id string) string {
	if id == "" {
		return NotSet
	}
	return id
}

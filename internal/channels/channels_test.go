package channels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/store"
)

func TestSetGetReset(t *testing.T) {
	ctx := context.Background()
	s := NewService(store.NewMemory(), nil)

	cs, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotSet, Display(cs.BroadcastChannelID))

	require.NoError(t, s.SetBroadcast(ctx, " room-b "))
	require.NoError(t, s.SetGroup(ctx, "room-g"))
	assert.ErrorIs(t, s.SetGroup(ctx, ""), domain.ErrInvalidArgument)

	cs, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelSettings{BroadcastChannelID: "room-b", GroupChannelID: "room-g"}, cs)

	require.NoError(t, s.Reset(ctx))
	cs, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelSettings{}, cs)
}

func TestMirrors(t *testing.T) {
	ctx := context.Background()
	s := NewService(store.NewMemory(), nil)

	rooms, err := s.Mirrors(ctx, "origin")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	require.NoError(t, s.SetBroadcast(ctx, "room-b"))
	require.NoError(t, s.SetGroup(ctx, "room-g"))
	rooms, err = s.Mirrors(ctx, "origin")
	require.NoError(t, err)
	assert.Equal(t, []string{"room-b", "room-g"}, rooms)

	rooms, err = s.Mirrors(ctx, "room-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"room-g"}, rooms)

	require.NoError(t, s.SetGroup(ctx, "room-b"))
	rooms, err = s.Mirrors(ctx, "origin")
	require.NoError(t, err)
	assert.Equal(t, []string{"room-b"}, rooms)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/rps-season-bot/internal/access"
	"github.com/park285/rps-season-bot/internal/config"
	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/irisfast"
	"github.com/park285/rps-season-bot/internal/season"
	"github.com/park285/rps-season-bot/internal/store"
)

func run(t *testing.T, gw store.Gateway, cfg *config.AppConfig, args ...string) (string, error) {
	t.Helper()
	if cfg == nil {
		cfg = &config.AppConfig{AdminUserIDs: []string{"1001"}}
	}
	cmd := NewRootCmd(WithStore(gw), WithConfig(cfg))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seeded(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	gw := store.NewMemory()
	s, err := season.NewManager(gw, nil).Start(ctx, "Spring", 8)
	require.NoError(t, err)
	require.NoError(t, gw.InsertPlayer(ctx, domain.Player{SeasonID: s.ID, PlayerID: "1", Username: "alice"}))
	require.NoError(t, gw.InsertPlayer(ctx, domain.Player{SeasonID: s.ID, PlayerID: "2", Username: "bob"}))
	require.NoError(t, gw.AddScore(ctx, s.ID, "2", 3))
	return gw
}

func TestAdminCommands(t *testing.T) {
	ctx := context.Background()
	gw := store.NewMemory()
	sn, err := season.NewManager(gw, nil).Start(ctx, "Spring", 8)
	require.NoError(t, err)
	_, err = gw.InsertCandidate(ctx, domain.Candidate{SeasonID: sn.ID, PlayerID: "3003", Username: "alice", Status: domain.CandidatePending})
	require.NoError(t, err)

	out, err := run(t, gw, nil, "admin", "add", "@alice", "--by", "ops")
	require.NoError(t, err)
	assert.Equal(t, "added @alice (3003)\n", out)

	_, err = run(t, gw, nil, "admin", "add", "3003")
	require.ErrorIs(t, err, access.ErrAlreadyAdmin)
	_, err = run(t, gw, nil, "admin", "add", "@mallory")
	require.ErrorIs(t, err, access.ErrUnknownUser)

	out, err = run(t, gw, nil, "admin", "list")
	require.NoError(t, err)
	assert.Equal(t, "1001\t\t(configured)\n3003\talice\tadded by ops\n", out)

	_, err = run(t, gw, nil, "admin", "remove", "1001")
	require.ErrorIs(t, err, access.ErrBootstrapAdmin)

	out, err = run(t, gw, nil, "admin", "list", "-o", "json")
	require.NoError(t, err)
	var admins []domain.Administrator
	require.NoError(t, json.Unmarshal([]byte(out), &admins))
	require.Len(t, admins, 2)
	assert.Equal(t, "3003", admins[1].UserID)

	out, err = run(t, gw, nil, "admin", "remove", "@alice")
	require.NoError(t, err)
	assert.Equal(t, "removed @alice (3003)\n", out)
}

func TestSeasonStatusAndLeaderboard(t *testing.T) {
	gw := seeded(t)

	out, err := run(t, gw, nil, "season", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "season:  Spring")
	assert.Contains(t, out, "players: 2 / 8")

	out, err = run(t, gw, nil, "leaderboard", "--refresh")
	require.NoError(t, err)
	assert.Equal(t, "🏆 Leaderboard: Spring\n1. @bob 3 pts\n2. @alice 0 pts\n", out)

	out, err = run(t, gw, nil, "-o", "json", "season", "status")
	require.NoError(t, err)
	var st seasonStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "initial", st.Status)
}

func TestNoActiveSeason(t *testing.T) {
	_, err := run(t, store.NewMemory(), nil, "season", "status")
	require.ErrorIs(t, err, domain.ErrNoActiveSeason)
}

func TestMigrateNeedsDatabase(t *testing.T) {
	_, err := run(t, store.NewMemory(), nil, "migrate")
	require.EqualError(t, err, "DATABASE_URL is required")
}

func TestBadOutputFormat(t *testing.T) {
	_, err := run(t, store.NewMemory(), nil, "-o", "yaml", "admin", "list")
	require.Error(t, err)
}

func TestIrisCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s-1", r.Header.Get("X-Session-Id"))
		_ = json.NewEncoder(w).Encode(irisfast.Config{Port: 3000, PollingSpeed: 100, MessageRate: 50, WebserverEndpoint: "http://bot"})
	}))
	defer srv.Close()

	cfg := &config.AppConfig{IrisBaseURL: srv.URL, XSessionID: "s-1"}
	out, err := run(t, store.NewMemory(), cfg, "iris", "check")
	require.NoError(t, err)
	assert.Equal(t, "/config ok: port=3000 polling=100 rate=50 endpoint=http://bot\n", out)

	_, err = run(t, store.NewMemory(), &config.AppConfig{}, "iris", "check")
	require.Error(t, err)
}

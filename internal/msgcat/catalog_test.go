package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/rps-season-bot/internal/domain"
)

func TestEmbeddedCatalogRenders(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	got, err := c.Render("common.unknown_command", map[string]any{"Prefix": "/"})
	require.NoError(t, err)
	assert.Equal(t, "Received your message, this is not a valid command. Try /help.", got)

	got, err = c.Render("season.status", map[string]any{"Name": "Spring", "StartDate": "2026-10-01", "Players": 2, "MaxPlayers": 8, "Status": "Signups open"})
	require.NoError(t, err)
	assert.Equal(t, "Season: Spring\nStarted: 2026-10-01\nPlayers: 2 / 8\nStatus: Signups open", got)
}

func TestEveryPhaseOperationHasDefault(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	ops := []domain.Operation{
		domain.OpStartSignup, domain.OpStopSignup, domain.OpStartGaming, domain.OpStopGaming,
		domain.OpStartRound, domain.OpStopRound, domain.OpSignUp, domain.OpApprove, domain.OpRefuse, domain.OpPlay,
	}
	for _, op := range ops {
		key := "phase." + string(op) + ".default"
		assert.True(t, c.Has(key), key)
		_, err := c.Render(key, map[string]any{"Prefix": "/", "Status": "x"})
		assert.NoError(t, err, key)
	}
}

func TestRenderOrFallsBack(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	data := map[string]any{"Prefix": "/", "Status": "Round in progress"}

	got, err := c.RenderOr("phase.stop_gaming.round_ongoing", "phase.stop_gaming.default", data)
	require.NoError(t, err)
	assert.Equal(t, "A round is in progress. Stop it with /stopround first.", got)

	got, err = c.RenderOr("phase.stop_round.closed", "phase.stop_round.default", data)
	require.NoError(t, err)
	assert.Equal(t, "No round is in progress (status: Round in progress).", got)
}

func TestMissingKeyAndData(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	_, err = c.Render("nope.nothing", nil)
	assert.Error(t, err)
	_, err = c.Render("round.played", map[string]any{"User": "alice"})
	assert.Error(t, err, "Number is missing")
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("common:\n  version: \"bot {{.Version}}\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	c, err := New(dir)
	require.NoError(t, err)
	got, err := c.Render("common.version", map[string]any{"Version": "1.2.0"})
	require.NoError(t, err)
	assert.Equal(t, "bot 1.2.0", got)
	assert.True(t, c.Has("common.usage"), "untouched keys survive")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("common:\n  version: other\n"), 0o644))
	_, err = New(dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "duplicate override key"))
}

func TestNonStringLeafRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("common:\n  version: 3\n"), 0o644))
	_, err := New(dir)
	assert.Error(t, err)
}

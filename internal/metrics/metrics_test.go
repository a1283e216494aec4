package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveCommand("play", "ok", 3*time.Millisecond)
	m.ObserveCommand("play", "ok", time.Millisecond)
	m.ObserveCommand("play", "rejected", time.Millisecond)
	m.MoveAccepted()
	m.RoundClosed(3)
	m.RoundClosed(1)
	m.PhaseConflict()
	m.EgressFailed("http")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("play", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("play", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.moves))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.roundsClosed))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.forfeits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.egressFailures.WithLabelValues("http")))

	expected := `
# HELP rps_moves_total Hands accepted from players.
# TYPE rps_moves_total counter
rps_moves_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "rps_moves_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommand("help", "ok", time.Millisecond)
		m.MoveAccepted()
		m.RoundClosed(2)
		m.PhaseConflict()
		m.EgressFailed("ws")
	})
	assert.Nil(t, m.Registry())
}

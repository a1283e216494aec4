package standings

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/store"
)

// Row is one leaderboard line. Equal scores share a rank; the next rank skips ahead.
type Row struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Board reads standings from the store, fronted by a cache that is dropped whenever scores move.
type Board struct {
	store  store.Queries
	cache  Cache
	logger *zap.Logger
}

func NewBoard(q store.Queries, cache Cache, logger *zap.Logger) *Board {
	if cache == nil {
		cache = NoCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{store: q, cache: cache, logger: logger}
}

// Fetch returns the season's roster ordered by score descending, then player id ascending.
// Cache failures are logged and the store is read instead.
func (b *Board) Fetch(ctx context.Context, seasonID int64) ([]Row, error) {
	if rows, ok, err := b.cache.Get(ctx, seasonID); err != nil {
		b.logger.Warn("leaderboard_cache_get_failed", zap.Int64("season_id", seasonID), zap.Error(err))
	} else if ok {
		return rows, nil
	}

	players, err := b.store.Players(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	rows := Rank(players)
	if err := b.cache.Set(ctx, seasonID, rows); err != nil {
		b.logger.Warn("leaderboard_cache_set_failed", zap.Int64("season_id", seasonID), zap.Error(err))
	}
	return rows, nil
}

// Invalidate drops the cached rows after a round close or season stop.
func (b *Board) Invalidate(ctx context.Context, seasonID int64) {
	if err := b.cache.Invalidate(ctx, seasonID); err != nil {
		b.logger.Warn("leaderboard_cache_invalidate_failed", zap.Int64("season_id", seasonID), zap.Error(err))
	}
}

// Rank numbers players already in leaderboard order.
func Rank(players []domain.Player) []Row {
	rows := make([]Row, 0, len(players))
	for i, p := range players {
		rank := i + 1
		if i > 0 && p.Score == players[i-1].Score {
			rank = rows[i-1].Rank
		}
		rows = append(rows, Row{Rank: rank, PlayerID: p.PlayerID, Username: p.Username, Score: p.Score})
	}
	return rows
}

// Render produces the leaderboard text. final swaps the title for the closing banner.
func Render(seasonName string, rows []Row, final bool) string {
	var b strings.Builder
	if final {
		fmt.Fprintf(&b, "🏁 Final Leaderboard: %s 🏁", seasonName)
	} else {
		fmt.Fprintf(&b, "🏆 Leaderboard: %s", seasonName)
	}
	if len(rows) == 0 {
		b.WriteString("\nNo players on the roster yet.")
		return b.String()
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "\n%d. @%s %s", r.Rank, r.Username, points(r.Score))
	}
	return b.String()
}

func points(n int) string {
	if n == 1 {
		return "1 pt"
	}
	return fmt.Sprintf("%d pts", n)
}

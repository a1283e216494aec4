package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/park285/rps-season-bot/internal/botbuilder"
	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/season"
	"github.com/park285/rps-season-bot/internal/standings"
	"github.com/park285/rps-season-bot/internal/store"
)

type seasonStatus struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StartDate  string `json:"start_date"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}

func newSeasonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "season",
		Short: "Inspect the active season",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the active season",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, gw store.Gateway) error {
				s, err := active(ctx, gw)
				if err != nil {
					return err
				}
				n, err := gw.CountPlayers(ctx, s.ID)
				if err != nil {
					return err
				}
				st := seasonStatus{
					ID:         s.ID,
					Name:       s.Name,
					Status:     string(s.Status),
					StartDate:  s.StartDate.Format("2006-01-02 15:04"),
					Players:    n,
					MaxPlayers: s.MaxPlayers,
				}
				return a.print(cmd.OutOrStdout(), st, func(w io.Writer) {
					fmt.Fprintf(w, "season:  %s (#%d)\n", st.Name, st.ID)
					fmt.Fprintf(w, "status:  %s\n", s.Status.Label())
					fmt.Fprintf(w, "started: %s\n", st.StartDate)
					fmt.Fprintf(w, "players: %d / %d\n", st.Players, st.MaxPlayers)
				})
			})
		},
	})
	return cmd
}

func active(ctx context.Context, gw store.Gateway) (*domain.Season, error) {
	s, err := season.NewManager(gw, nil).Current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrNoActiveSeason
	}
	return s, nil
}

func newLeaderboardCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the active season's standings",
		Long: `Print the active season's standings as the bot would show them.
With --refresh the cached copy in Redis is dropped first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, gw store.Gateway) error {
				s, err := active(ctx, gw)
				if err != nil {
					return err
				}
				rdb, cache, err := botbuilder.OpenCache(ctx, a.cfg)
				if err != nil {
					return err
				}
				if rdb != nil {
					defer func() { _ = rdb.Close() }()
				}
				board := standings.NewBoard(gw, cache, a.logger)
				if refresh {
					board.Invalidate(ctx, s.ID)
				}
				rows, err := board.Fetch(ctx, s.ID)
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), rows, func(w io.Writer) {
					fmt.Fprintln(w, standings.Render(s.Name, rows, false))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Drop the cached leaderboard before reading")
	return cmd
}

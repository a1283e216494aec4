package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/botbuilder"
	"github.com/park285/rps-season-bot/internal/config"
	"github.com/park285/rps-season-bot/internal/obslog"
	"github.com/park285/rps-season-bot/internal/store"
)

// app is the state shared by every rpsctl command.
type app struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	output    string
	openStore func(ctx context.Context) (store.Gateway, error)
}

type Option func(*app)

// WithStore makes every command use gw instead of opening DATABASE_URL.
func WithStore(gw store.Gateway) Option {
	return func(a *app) {
		a.openStore = func(context.Context) (store.Gateway, error) { return nopCloser{gw}, nil }
	}
}

// WithConfig skips reading the environment.
func WithConfig(cfg *config.AppConfig) Option {
	return func(a *app) { a.cfg = cfg }
}

type nopCloser struct{ store.Gateway }

func (nopCloser) Close() error { return nil }

// NewRootCmd creates the rpsctl command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{logger: zap.NewNop(), output: "text"}
	for _, o := range opts {
		o(a)
	}

	root := &cobra.Command{
		Use:   "rpsctl",
		Short: "Operator tool for the rock-paper-scissors season bot",
		Long: `rpsctl inspects and maintains the bot's database from the shell:
schema migration, administrator management, season status and standings,
and a connectivity check against Iris.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := obslog.InitFromEnv(); err == nil {
				a.logger = obslog.L()
			}
			if a.cfg == nil {
				cfg, err := config.Parse()
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			if a.openStore == nil {
				a.openStore = func(ctx context.Context) (store.Gateway, error) {
					return botbuilder.OpenStore(ctx, a.cfg, a.logger)
				}
			}
			if a.output != "text" && a.output != "json" {
				return fmt.Errorf("unknown output format %q", a.output)
			}
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.output, "output", "o", a.output, "Output format: text, json")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newAdminCmd(a))
	root.AddCommand(newSeasonCmd(a))
	root.AddCommand(newLeaderboardCmd(a))
	root.AddCommand(newIrisCmd(a))
	return root
}

// Execute runs rpsctl with the process arguments.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// withStore opens the store for one command and closes it afterwards.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, gw store.Gateway) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	gw, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()
	return fn(ctx, gw)
}

// print writes v as indented JSON in json mode, otherwise calls text.
func (a *app) print(w io.Writer, v any, text func(io.Writer)) error {
	if a.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			pg, err := store.Open(cmd.Context(), a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = pg.Close() }()
			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/park285/rps-season-bot/internal/access"
	"github.com/park285/rps-season-bot/internal/store"
)

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage stored administrators",
	}
	cmd.AddCommand(newAdminAddCmd(a))
	cmd.AddCommand(newAdminRemoveCmd(a))
	cmd.AddCommand(newAdminListCmd(a))
	return cmd
}

func (a *app) access(gw store.Gateway) *access.Service {
	return access.NewService(gw, a.cfg.AdminUserIDs, a.cfg.DevUserIDs, a.logger)
}

func newAdminAddCmd(a *app) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "add <user id|@name>",
		Short: "Grant the admin role",
		Long:  "Grant the admin role to an Iris user id. @name picks the one signup of the active season with that display name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, gw store.Gateway) error {
				ad, err := a.access(gw).Add(ctx, args[0], by)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", access.Label(*ad))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "rpsctl", "Recorded as the granting user")
	return cmd
}

func newAdminRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user id|@name>",
		Short: "Revoke the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, gw store.Gateway) error {
				ad, err := a.access(gw).Remove(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", access.Label(*ad))
				return nil
			})
		},
	}
}

func newAdminListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured and stored administrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, gw store.Gateway) error {
				admins, err := a.access(gw).List(ctx)
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), admins, func(w io.Writer) {
					for _, ad := range admins {
						if ad.AddedBy == "" {
							fmt.Fprintf(w, "%s\t%s\t(configured)\n", ad.UserID, ad.Username)
							continue
						}
						fmt.Fprintf(w, "%s\t%s\tadded by %s\n", ad.UserID, ad.Username, ad.AddedBy)
					}
				})
			})
		},
	}
}

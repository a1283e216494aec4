package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/rps-season-bot/internal/irisfast"
)

func newIrisCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iris",
		Short: "Iris connectivity tools",
	}
	cmd.AddCommand(newIrisCheckCmd(a))
	return cmd
}

func (a *app) irisHeaders() irisfast.HeaderProvider {
	return func() map[string]string {
		h := map[string]string{}
		if a.cfg.XUserID != "" {
			h["X-User-Id"] = a.cfg.XUserID
		}
		if a.cfg.XUserEmail != "" {
			h["X-User-Email"] = a.cfg.XUserEmail
		}
		if a.cfg.XSessionID != "" {
			h["X-Session-Id"] = a.cfg.XSessionID
		}
		return h
	}
}

func newIrisCheckCmd(a *app) *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Call /config and optionally watch the WebSocket feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.IrisBaseURL == "" {
				return fmt.Errorf("IRIS_BASE_URL is required")
			}
			out := cmd.OutOrStdout()
			client := irisfast.NewClient(a.cfg.IrisBaseURL,
				irisfast.WithHeaderProvider(a.irisHeaders()),
				irisfast.WithTimeout(8*time.Second),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			ic, err := client.GetConfig(ctx)
			if err != nil {
				return fmt.Errorf("/config: %w", err)
			}
			fmt.Fprintf(out, "/config ok: port=%d polling=%d rate=%d endpoint=%s\n", ic.Port, ic.PollingSpeed, ic.MessageRate, ic.WebserverEndpoint)

			if watch <= 0 || a.cfg.IrisWSURL == "" {
				return nil
			}
			ws := irisfast.NewWebSocket(a.cfg.IrisWSURL, 0, 0)
			ws.SetHeaderProvider(a.irisHeaders())
			ws.SetLogger(a.logger)
			ws.OnStateChange(func(state irisfast.WebSocketState) {
				fmt.Fprintf(out, "ws state: %s\n", state)
			})
			ws.OnMessage(func(msg *irisfast.Message) {
				fmt.Fprintf(out, "ws msg room=%s from=%s text=%q\n", msg.Room, msg.SenderName(), msg.Msg)
			})
			cctx, ccancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer ccancel()
			if err := ws.Connect(cctx); err != nil {
				return fmt.Errorf("ws connect: %w", err)
			}

			select {
			case <-time.After(watch):
			case <-cmd.Context().Done():
			}
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return ws.Close(sctx)
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "Observe the WebSocket feed for this long")
	return cmd
}

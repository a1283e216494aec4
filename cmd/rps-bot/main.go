package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/botbuilder"
	"github.com/park285/rps-season-bot/internal/command"
	appcfg "github.com/park285/rps-season-bot/internal/config"
	"github.com/park285/rps-season-bot/internal/irisfast"
	"github.com/park285/rps-season-bot/internal/obslog"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		obslog.L().Warn("logger_init_failed", zap.Error(err))
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	deps, err := botbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}

	client := irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(headers))
	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.SetLogger(logger.Named("ws"))
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("ws_state", zap.Stringer("state", state))
	})
	egress := irisfast.NewEgress(cfg.EgressMode, cfg.EgressDryRun, client, ws, logger.Named("egress"), deps.Metrics.EgressFailed)

	ws.OnMessage(func(msg *irisfast.Message) {
		if msg == nil || msg.Msg == "" {
			return
		}
		if len(cfg.AllowedRooms) > 0 && !slices.Contains(cfg.AllowedRooms, msg.Room) {
			logger.Debug("room_ignored", zap.String("room", msg.Room))
			return
		}
		if !strings.HasPrefix(strings.TrimSpace(msg.Msg), cfg.BotPrefix) {
			return
		}
		// Keep the read loop free.
		go handle(ctx, deps.Router, egress, logger, msg)
	})

	if cfg.MetricsAddr != "" {
		go func() {
			if err := deps.Metrics.Serve(ctx, cfg.MetricsAddr, logger.Named("metrics")); err != nil {
				logger.Error("metrics_server_failed", zap.Error(err))
			}
		}()
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		logger.Fatal("ws_connect_error", zap.Error(err))
	}
	cancel()
	logger.Info("bot_started",
		zap.String("prefix", cfg.BotPrefix),
		zap.String("version", cfg.BotVersion),
		zap.String("egress", cfg.EgressMode),
		zap.Strings("allowed_rooms", cfg.AllowedRooms),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown", zap.Stringer("signal", sig))
	stop()

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = ws.Close(sctx)
}

func handle(ctx context.Context, router *command.Router, egress irisfast.Egress, logger *zap.Logger, msg *irisfast.Message) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	in := command.Message{
		Room:     msg.Room,
		UserID:   msg.UserID(),
		Username: senderName(msg),
		Text:     msg.Msg,
	}
	if in.UserID == "" {
		logger.Warn("message_without_user_id", zap.String("room", msg.Room))
		return
	}
	for _, r := range router.Handle(ctx, in) {
		if err := egress.SendText(ctx, r.Room, r.Text); err != nil {
			logger.Warn("reply_failed", zap.String("room", r.Room), zap.Error(err))
		}
	}
}

// senderName is the chat handle players are addressed by. Iris omits it for some
// events, so the user id stands in.
func senderName(msg *irisfast.Message) string {
	if name := msg.SenderName(); name != "" {
		return name
	}
	return msg.UserID()
}

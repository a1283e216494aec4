package irisfast

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Egress sends text replies over HTTP or WebSocket.
type Egress interface {
	SendText(ctx context.Context, room, message string) error
}

type transportMode string

const (
	transportHTTP transportMode = "http"
	transportWS   transportMode = "ws"
	transportAuto transportMode = "auto"
)

// FailureHook is told which transport failed a send. It may be nil.
type FailureHook func(transport string)

// NewEgress picks the transport for mode. In auto mode WS is used while connected and a failed
// WS send falls back to HTTP once. Unknown modes use HTTP.
func NewEgress(mode string, dryrun bool, c *Client, ws *WebSocket, logger *zap.Logger, onFail FailureHook) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onFail == nil {
		onFail = func(string) {}
	}
	h := &httpEgress{c: c, dryrun: dryrun, logger: logger, onFail: onFail}
	w := &wsEgress{ws: ws, dryrun: dryrun, logger: logger, onFail: onFail}
	switch transportMode(mode) {
	case transportWS:
		return w
	case transportAuto:
		return &autoEgress{ws: w, http: h, logger: logger}
	default:
		return h
	}
}

type httpEgress struct {
	c      *Client
	dryrun bool
	logger *zap.Logger
	onFail FailureHook
}

func (h *httpEgress) SendText(ctx context.Context, room, message string) error {
	if h.c == nil {
		return errors.New("http egress not available")
	}
	if h.dryrun {
		h.logger.Info("egress_dryrun", zap.String("transport", string(transportHTTP)), zap.String("room", room))
		return nil
	}
	if err := h.c.SendMessage(ctx, room, message); err != nil {
		h.onFail(string(transportHTTP))
		return err
	}
	return nil
}

// wsEgress writes ReplyRequest frames on the shared connection.
type wsEgress struct {
	ws     *WebSocket
	dryrun bool
	logger *zap.Logger
	onFail FailureHook
}

func (w *wsEgress) connected() bool { return w.ws != nil && w.ws.Connected() }

func (w *wsEgress) SendText(ctx context.Context, room, message string) error {
	if w.ws == nil {
		return errors.New("ws egress not available")
	}
	if w.dryrun {
		w.logger.Info("egress_dryrun", zap.String("transport", string(transportWS)), zap.String("room", room))
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := w.ws.WriteJSON(ctx, ReplyRequest{Type: "text", Room: room, Data: message}); err != nil {
		w.onFail(string(transportWS))
		return err
	}
	return nil
}

type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) SendText(ctx context.Context, room, message string) error {
	if a.ws.connected() {
		err := a.ws.SendText(ctx, room, message)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("room", room), zap.Error(err))
	}
	return a.http.SendText(ctx, room, message)
}

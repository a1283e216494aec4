package command

import (
	"errors"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/access"
	"github.com/park285/rps-season-bot/internal/domain"
)

// errorKeys maps business errors to catalog keys. Order matters only for wrapped chains.
var errorKeys = []struct {
	err error
	key string
}{
	{domain.ErrNoActiveSeason, "season.no_active"},
	{domain.ErrAlreadyActive, "season.already_active"},
	{domain.ErrConcurrentPhaseChange, "season.concurrent_change"},
	{domain.ErrAlreadySignedUp, "signup.already"},
	{domain.ErrNoPendingCandidate, "signup.no_pending"},
	{domain.ErrSeasonFull, "signup.full"},
	{domain.ErrAlreadyPlayed, "round.already_played"},
	{domain.ErrNotRegistered, "round.not_registered"},
	{domain.ErrNoOpenRound, "round.no_open_round"},
	{domain.ErrInvalidArgument, "common.invalid_argument"},
	{access.ErrAlreadyAdmin, "admin.already"},
	{access.ErrNotAdmin, "admin.not_admin"},
	{access.ErrBootstrapAdmin, "admin.bootstrap"},
	{access.ErrUnknownUser, "admin.unknown_user"},
	{access.ErrAmbiguousUser, "admin.ambiguous_user"},
}

func isBusiness(err error) bool {
	var pe *domain.PhaseError
	if errors.As(err, &pe) {
		return true
	}
	for _, e := range errorKeys {
		if errors.Is(err, e.err) {
			return true
		}
	}
	return false
}

// explain renders err for the sender. Phase errors pick the message for the operation and the
// season's current status; anything unrecognised is logged and reported generically.
func (r *Router) explain(c *call, err error) string {
	data := r.data(c.msg, domain.NormalizeUsername(c.arg(0)))

	var pe *domain.PhaseError
	if errors.As(err, &pe) {
		data["Status"] = pe.Current.Label()
		base := "phase." + string(pe.Op) + "."
		text, rerr := r.Catalog.RenderOr(base+string(pe.Current), base+"default", data)
		if rerr != nil {
			c.log.Error("message_render_failed", zap.String("op", string(pe.Op)), zap.Error(rerr))
			return err.Error()
		}
		c.log.Info("command_rejected", zap.String("op", string(pe.Op)), zap.String("status", string(pe.Current)))
		return text
	}

	for _, e := range errorKeys {
		if errors.Is(err, e.err) {
			if e.err == domain.ErrConcurrentPhaseChange {
				r.Metrics.PhaseConflict()
			}
			c.log.Info("command_rejected", zap.Error(err))
			return r.render(c.log, e.key, data)
		}
	}

	c.log.Error("command_failed", zap.Error(err), zap.Bool("store_error", domain.IsStoreError(err)))
	return r.render(c.log, "common.store_error", data)
}

package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/access"
	"github.com/park285/rps-season-bot/internal/changelog"
	"github.com/park285/rps-season-bot/internal/channels"
	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/standings"
	"github.com/park285/rps-season-bot/internal/util"
)

// Replies longer than this many lines are folded behind "See more".
const foldLines = 12

func (r *Router) table() map[string]commandSpec {
	player, admin, dev := access.RolePlayer, access.RoleAdmin, access.RoleDev
	return map[string]commandSpec{
		"help":                {role: player, handle: r.help},
		"version":             {role: player, handle: r.version},
		"signup":              {role: player, handle: r.signup},
		"play":                {role: player, minArgs: 1, usage: "play rock|paper|scissors", handle: r.play},
		"rock":                {role: player, handle: r.playHand(domain.HandRock)},
		"paper":               {role: player, handle: r.playHand(domain.HandPaper)},
		"scissors":            {role: player, handle: r.playHand(domain.HandScissors)},
		"viewleaderboard":     {role: player, handle: r.leaderboard},
		"currentseasonstatus": {role: player, handle: r.seasonStatus},

		"startnewseason":   {role: admin, minArgs: 2, usage: "startnewseason <name> <max players>", handle: r.startSeason},
		"stopnewseason":    {role: admin, handle: r.stopSeason},
		"startsignupphase": {role: admin, handle: r.phase(domain.OpStartSignup, func(ctx context.Context) (*domain.Season, error) { return r.Seasons.StartSignup(ctx) })},
		"stopsignupphase":  {role: admin, handle: r.phase(domain.OpStopSignup, func(ctx context.Context) (*domain.Season, error) { return r.Seasons.StopSignup(ctx) })},
		"startgamingphase": {role: admin, handle: r.phase(domain.OpStartGaming, func(ctx context.Context) (*domain.Season, error) { return r.Seasons.StartGaming(ctx) })},
		"stopgamingphase":  {role: admin, handle: r.phase(domain.OpStopGaming, func(ctx context.Context) (*domain.Season, error) { return r.Seasons.StopGaming(ctx) })},
		"startround":       {role: admin, handle: r.startRound},
		"stopround":        {role: admin, handle: r.stopRound},
		"approveplayer":    {role: admin, minArgs: 1, usage: "approveplayer <user>", handle: r.approve},
		"refuseplayer":     {role: admin, minArgs: 1, usage: "refuseplayer <user>", handle: r.refuse},
		"viewsignuplist":   {role: admin, handle: r.list(domain.FilterAll)},
		"viewpendinglist":  {role: admin, handle: r.list(domain.FilterPending)},
		"viewapprovedlist": {role: admin, handle: r.list(domain.FilterAccepted)},
		"viewrefusedlist":  {role: admin, handle: r.list(domain.FilterRefused)},

		"setbroadcastchannel": {role: admin, handle: r.setBroadcast},
		"setgroupchannel":     {role: admin, handle: r.setGroup},
		"getgroupbroadcastid": {role: admin, handle: r.showChannels},
		"resetgroupbroadcast": {role: admin, handle: r.resetChannels},
		"msgbroadcastchannel": {role: admin, minArgs: 1, usage: "msgbroadcastchannel <text>", handle: r.relay(true)},
		"msggroup":            {role: admin, minArgs: 1, usage: "msggroup <text>", handle: r.relay(false)},
		"readchangelog":       {role: admin, handle: r.readChangelog},
		"addadmin":            {role: admin, minArgs: 1, usage: "addadmin <user id|@name>", handle: r.addAdmin},
		"removeadmin":         {role: admin, minArgs: 1, usage: "removeadmin <user id|@name>", handle: r.removeAdmin},
		"listadmins":          {role: admin, handle: r.listAdmins},

		"whoami": {role: dev, handle: r.whoami},
	}
}

func (r *Router) reply(c *call, key string, kv ...any) Reply {
	return Reply{Room: c.msg.Room, Text: r.render(c.log, key, r.with(r.data(c.msg, ""), kv...))}
}

func (r *Router) text(c *call, key string, kv ...any) string {
	return r.render(c.log, key, r.with(r.data(c.msg, ""), kv...))
}

// active returns the current season or domain.ErrNoActiveSeason.
func (r *Router) active(ctx context.Context) (*domain.Season, error) {
	s, err := r.Seasons.Current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrNoActiveSeason
	}
	return s, nil
}

func (r *Router) help(_ context.Context, c *call) ([]Reply, error) {
	parts := []string{r.text(c, "help.player")}
	if c.role >= access.RoleAdmin {
		parts = append(parts, r.text(c, "help.admin"))
	}
	if c.role >= access.RoleDev {
		parts = append(parts, r.text(c, "help.dev"))
	}
	return []Reply{{Room: c.msg.Room, Text: util.Fold(strings.Join(parts, "\n\n"), foldLines)}}, nil
}

func (r *Router) version(_ context.Context, c *call) ([]Reply, error) {
	return []Reply{r.reply(c, "common.version", "Version", r.Version)}, nil
}

func (r *Router) signup(ctx context.Context, c *call) ([]Reply, error) {
	s, err := r.active(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Ledger.SignUp(ctx, s.ID, c.msg.UserID, c.msg.Username, c.msg.Room); err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "signup.received", "Season", s.Name)}, nil
}

func (r *Router) play(ctx context.Context, c *call) ([]Reply, error) {
	hand, err := domain.ParseHand(c.arg(0))
	if err != nil {
		return []Reply{r.reply(c, "round.bad_hand")}, nil
	}
	return r.playHand(hand)(ctx, c)
}

func (r *Router) playHand(hand domain.Hand) handlerFunc {
	return func(ctx context.Context, c *call) ([]Reply, error) {
		rd, err := r.Rounds.Play(ctx, c.msg.UserID, hand)
		if err != nil {
			return nil, err
		}
		r.Metrics.MoveAccepted()
		return []Reply{r.reply(c, "round.played", "Number", rd.Number)}, nil
	}
}

func (r *Router) leaderboard(ctx context.Context, c *call) ([]Reply, error) {
	s, err := r.active(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.Board.Fetch(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return []Reply{{Room: c.msg.Room, Text: util.Fold(standings.Render(s.Name, rows, false), foldLines)}}, nil
}

func (r *Router) seasonStatus(ctx context.Context, c *call) ([]Reply, error) {
	s, err := r.active(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.Board.Fetch(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "season.status",
		"Name", s.Name,
		"StartDate", s.StartDate.Format("2006-01-02 15:04"),
		"Players", len(rows),
		"MaxPlayers", s.MaxPlayers,
		"Status", s.Status.Label(),
	)}, nil
}

func (r *Router) startSeason(ctx context.Context, c *call) ([]Reply, error) {
	last := len(c.args) - 1
	maxPlayers, err := strconv.Atoi(c.args[last])
	if err != nil || maxPlayers <= 0 {
		return []Reply{r.reply(c, "common.usage", "Usage", r.commands["startnewseason"].usage)}, nil
	}
	s, err := r.Seasons.Start(ctx, strings.Join(c.args[:last], " "), maxPlayers)
	if err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "season.started", "Name", s.Name, "MaxPlayers", s.MaxPlayers)}, nil
}

// stopSeason closes the season, then renders the final standings. The leaderboard is read
// after the close commits, so a render failure never undoes the stop.
func (r *Router) stopSeason(ctx context.Context, c *call) ([]Reply, error) {
	s, err := r.Seasons.Stop(ctx)
	if err != nil {
		return nil, err
	}
	r.Board.Invalidate(ctx, s.ID)
	text := r.text(c, "season.stopped", "Name", s.Name)
	if rows, err := r.Board.Fetch(ctx, s.ID); err != nil {
		c.log.Warn("final_leaderboard_failed", zap.Int64("season_id", s.ID), zap.Error(err))
	} else {
		text += "\n\n" + standings.Render(s.Name, rows, true)
	}
	text = util.Fold(text, foldLines)
	return r.announce(ctx, c, text), nil
}

func (r *Router) phase(op domain.Operation, fn func(context.Context) (*domain.Season, error)) handlerFunc {
	return func(ctx context.Context, c *call) ([]Reply, error) {
		s, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return r.announce(ctx, c, r.text(c, "season.phase_changed."+string(op), "Name", s.Name)), nil
	}
}

func (r *Router) startRound(ctx context.Context, c *call) ([]Reply, error) {
	rd, err := r.Rounds.Start(ctx)
	if err != nil {
		return nil, err
	}
	return r.announce(ctx, c, r.text(c, "round.started", "Number", rd.Number)), nil
}

func (r *Router) stopRound(ctx context.Context, c *call) ([]Reply, error) {
	res, err := r.Rounds.Close(ctx)
	if err != nil {
		return nil, err
	}
	r.Board.Invalidate(ctx, res.Season.ID)
	r.Metrics.RoundClosed(res.Forfeits)

	var text string
	if len(res.Results) == 0 {
		text = r.text(c, "round.closed_empty", "Number", res.Round.Number)
	} else {
		text = util.Fold(r.text(c, "round.closed", "Number", res.Round.Number)+"\n"+res.Announcement, foldLines)
	}
	return r.announce(ctx, c, text), nil
}

// announce replies in the origin room and mirrors the text to the configured channels.
func (r *Router) announce(ctx context.Context, c *call, text string) []Reply {
	return append([]Reply{{Room: c.msg.Room, Text: text}}, r.mirror(ctx, c.msg.Room, text)...)
}

func (r *Router) approve(ctx context.Context, c *call) ([]Reply, error) {
	s, err := r.active(ctx)
	if err != nil {
		return nil, err
	}
	acc, err := r.Ledger.Accept(ctx, s.ID, c.arg(0))
	if err != nil {
		return nil, err
	}
	r.Board.Invalidate(ctx, s.ID)
	out := []Reply{r.reply(c, "signup.accepted", "Target", acc.Username)}
	if acc.Room != "" {
		out = append(out, Reply{Room: acc.Room, Text: r.text(c, "signup.accepted_notice", "Target", acc.Username, "Season", s.Name)})
	}
	return out, nil
}

func (r *Router) refuse(ctx context.Context, c *call) ([]Reply, error) {
	s, err := r.active(ctx)
	if err != nil {
		return nil, err
	}
	target := domain.NormalizeUsername(c.arg(0))
	if err := r.Ledger.Refuse(ctx, s.ID, target); err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "signup.refused", "Target", target)}, nil
}

func (r *Router) list(filter domain.ListFilter) handlerFunc {
	return func(ctx context.Context, c *call) ([]Reply, error) {
		s, err := r.active(ctx)
		if err != nil {
			return nil, err
		}
		cands, err := r.Ledger.List(ctx, s.ID, filter)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			return []Reply{r.reply(c, "signup.list_empty."+string(filter))}, nil
		}
		var b strings.Builder
		b.WriteString(r.text(c, "signup.list_header."+string(filter), "Season", s.Name))
		for i, cand := range cands {
			fmt.Fprintf(&b, "\n%d. @%s", i+1, cand.Username)
			if filter == domain.FilterAll {
				fmt.Fprintf(&b, " (%s)", cand.Status)
			}
		}
		return []Reply{{Room: c.msg.Room, Text: util.Fold(b.String(), foldLines)}}, nil
	}
}

func (r *Router) targetRoom(c *call) string {
	if c.rest != "" {
		return c.rest
	}
	return c.msg.Room
}

func (r *Router) setBroadcast(ctx context.Context, c *call) ([]Reply, error) {
	room := r.targetRoom(c)
	if err := r.Channels.SetBroadcast(ctx, room); err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "channels.broadcast_set", "Room", room)}, nil
}

func (r *Router) setGroup(ctx context.Context, c *call) ([]Reply, error) {
	room := r.targetRoom(c)
	if err := r.Channels.SetGroup(ctx, room); err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "channels.group_set", "Room", room)}, nil
}

func (r *Router) showChannels(ctx context.Context, c *call) ([]Reply, error) {
	cs, err := r.Channels.Get(ctx)
	if err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "channels.show",
		"Broadcast", channels.Display(cs.BroadcastChannelID),
		"Group", channels.Display(cs.GroupChannelID),
	)}, nil
}

func (r *Router) resetChannels(ctx context.Context, c *call) ([]Reply, error) {
	if err := r.Channels.Reset(ctx); err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "channels.reset")}, nil
}

func (r *Router) relay(broadcast bool) handlerFunc {
	return func(ctx context.Context, c *call) ([]Reply, error) {
		cs, err := r.Channels.Get(ctx)
		if err != nil {
			return nil, err
		}
		room, missing := cs.BroadcastChannelID, "channels.no_broadcast"
		if !broadcast {
			room, missing = cs.GroupChannelID, "channels.no_group"
		}
		if room == "" {
			return []Reply{r.reply(c, missing)}, nil
		}
		return []Reply{
			{Room: room, Text: c.rest},
			r.reply(c, "channels.sent", "Room", room),
		}, nil
	}
}

func (r *Router) readChangelog(_ context.Context, c *call) ([]Reply, error) {
	chunks, err := changelog.Read(r.ChangelogPath)
	if err != nil || len(chunks) == 0 {
		c.log.Warn("changelog_unavailable", zap.String("path", r.ChangelogPath), zap.Error(err))
		return []Reply{r.reply(c, "changelog.missing")}, nil
	}
	out := make([]Reply, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, Reply{Room: c.msg.Room, Text: chunk})
	}
	return out, nil
}

func (r *Router) addAdmin(ctx context.Context, c *call) ([]Reply, error) {
	a, err := r.Access.Add(ctx, c.arg(0), c.msg.Username)
	if err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "admin.added", "Target", access.Label(*a))}, nil
}

func (r *Router) removeAdmin(ctx context.Context, c *call) ([]Reply, error) {
	a, err := r.Access.Remove(ctx, c.arg(0))
	if err != nil {
		return nil, err
	}
	return []Reply{r.reply(c, "admin.removed", "Target", access.Label(*a))}, nil
}

func (r *Router) listAdmins(ctx context.Context, c *call) ([]Reply, error) {
	admins, err := r.Access.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return []Reply{r.reply(c, "admin.list_empty")}, nil
	}
	var b strings.Builder
	b.WriteString(r.text(c, "admin.list_header"))
	for _, a := range admins {
		b.WriteString("\n" + access.Label(a))
		if a.AddedBy != "" {
			fmt.Fprintf(&b, ", added by @%s", a.AddedBy)
		}
	}
	return []Reply{{Room: c.msg.Room, Text: util.Fold(b.String(), foldLines)}}, nil
}

func (r *Router) whoami(_ context.Context, c *call) ([]Reply, error) {
	return []Reply{r.reply(c, "dev.whoami", "UserID", c.msg.UserID, "Room", c.msg.Room, "Role", c.role.String())}, nil
}

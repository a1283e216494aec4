package command

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/access"
	"github.com/park285/rps-season-bot/internal/channels"
	"github.com/park285/rps-season-bot/internal/metrics"
	"github.com/park285/rps-season-bot/internal/msgcat"
	"github.com/park285/rps-season-bot/internal/obslog"
	"github.com/park285/rps-season-bot/internal/registration"
	"github.com/park285/rps-season-bot/internal/round"
	"github.com/park285/rps-season-bot/internal/season"
	"github.com/park285/rps-season-bot/internal/standings"
)

// Message is one inbound chat line.
type Message struct {
	Room     string
	UserID   string
	Username string
	Text     string
}

// Reply is one outbound chat line. Room may differ from the origin for mirrored announcements
// and acceptance notices.
type Reply struct {
	Room string
	Text string
}

type Deps struct {
	Seasons  *season.Manager
	Ledger   *registration.Ledger
	Rounds   *round.Engine
	Board    *standings.Board
	Access   *access.Service
	Channels *channels.Service
	Catalog  *msgcat.Catalog
	Metrics  *metrics.Metrics
	Limiter  *UserLimiter
	Logger   *zap.Logger

	Prefix        string
	Version       string
	ChangelogPath string
}

type handlerFunc func(ctx context.Context, c *call) ([]Reply, error)

type commandSpec struct {
	role    access.Role
	usage   string
	minArgs int
	handle  handlerFunc
}

// Router turns chat text into season operations and renders their outcome.
type Router struct {
	Deps
	commands map[string]commandSpec
}

func NewRouter(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Prefix == "" {
		d.Prefix = "/"
	}
	r := &Router{Deps: d}
	r.commands = r.table()
	return r
}

// call carries one command invocation through its handler.
type call struct {
	msg  Message
	name string
	args []string
	rest string
	role access.Role
	log  *zap.Logger
}

func (c *call) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

// Parse splits text into a lower-cased command name and its arguments. ok is false when text
// does not start with prefix.
func Parse(prefix, text string) (name string, args []string, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, "", false
	}
	body := strings.TrimSpace(strings.TrimPrefix(text, prefix))
	if body == "" {
		return "", nil, "", false
	}
	head, tail, _ := strings.Cut(body, " ")
	return strings.ToLower(head), strings.Fields(tail), strings.TrimSpace(tail), true
}

// Handle routes one message. Text that is not a command yields no replies.
func (r *Router) Handle(ctx context.Context, msg Message) []Reply {
	name, args, rest, ok := Parse(r.Prefix, msg.Text)
	if !ok {
		return nil
	}
	start := time.Now()
	log := r.Logger.With(
		zap.String("trace", uuid.NewString()),
		zap.String("command", name),
		zap.String("room", msg.Room),
		zap.String("user_id", msg.UserID),
	)
	ctx = obslog.WithLogger(ctx, log)

	replies, outcome := r.dispatch(ctx, msg, name, args, rest, log)
	label := name
	if outcome == "unknown" {
		label = "unknown"
	}
	r.Metrics.ObserveCommand(label, outcome, time.Since(start))
	log.Info("command_handled", zap.String("outcome", outcome), zap.Duration("took", time.Since(start)))
	return replies
}

func (r *Router) dispatch(ctx context.Context, msg Message, name string, args []string, rest string, log *zap.Logger) ([]Reply, string) {
	base := r.data(msg, "")
	here := func(key string, data map[string]any) []Reply {
		return []Reply{{Room: msg.Room, Text: r.render(log, key, data)}}
	}

	if !r.Limiter.Allow(msg.UserID) {
		return here("common.rate_limited", base), "rate_limited"
	}
	def, ok := r.commands[name]
	if !ok {
		return here("common.unknown_command", base), "unknown"
	}

	role, err := r.Access.Role(ctx, msg.UserID)
	if err != nil {
		log.Error("role_lookup_failed", zap.Error(err))
		return here("common.store_error", base), "error"
	}
	if role < def.role {
		if def.role == access.RoleDev {
			return here("common.dev_only", base), "forbidden"
		}
		return here("common.admin_only", base), "forbidden"
	}
	if len(args) < def.minArgs {
		return here("common.usage", r.with(base, "Usage", def.usage)), "usage"
	}

	c := &call{msg: msg, name: name, args: args, rest: rest, role: role, log: log}
	out, err := def.handle(ctx, c)
	if err != nil {
		return append(out, Reply{Room: msg.Room, Text: r.explain(c, err)}), outcomeOf(err)
	}
	return out, "ok"
}

func outcomeOf(err error) string {
	if isBusiness(err) {
		return "rejected"
	}
	return "error"
}

// data is the base template data every reply can rely on.
func (r *Router) data(msg Message, target string) map[string]any {
	return map[string]any{
		"Prefix": r.Prefix,
		"User":   msg.Username,
		"Target": target,
	}
}

func (r *Router) with(d map[string]any, kv ...any) map[string]any {
	out := make(map[string]any, len(d)+len(kv)/2)
	for k, v := range d {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func (r *Router) render(log *zap.Logger, key string, data map[string]any) string {
	text, err := r.Catalog.Render(key, data)
	if err != nil {
		log.Error("message_render_failed", zap.String("key", key), zap.Error(err))
		return key
	}
	return text
}

// mirror copies an announcement to the configured broadcast and group rooms other than origin.
func (r *Router) mirror(ctx context.Context, origin, text string) []Reply {
	if r.Channels == nil {
		return nil
	}
	rooms, err := r.Channels.Mirrors(ctx, origin)
	if err != nil {
		obslog.From(ctx).Warn("mirror_lookup_failed", zap.Error(err))
		return nil
	}
	out := make([]Reply, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, Reply{Room: room, Text: text})
	}
	return out
}

// Names lists the registered command names.
func (r *Router) Names() []string {
	out := make([]string, 0, len(r.commands))
	for n := range r.commands {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

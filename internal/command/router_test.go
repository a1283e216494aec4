package command

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/rps-season-bot/internal/access"
	"github.com/park285/rps-season-bot/internal/channels"
	"github.com/park285/rps-season-bot/internal/domain"
	"github.com/park285/rps-season-bot/internal/match"
	"github.com/park285/rps-season-bot/internal/metrics"
	"github.com/park285/rps-season-bot/internal/msgcat"
	"github.com/park285/rps-season-bot/internal/registration"
	"github.com/park285/rps-season-bot/internal/round"
	"github.com/park285/rps-season-bot/internal/season"
	"github.com/park285/rps-season-bot/internal/standings"
	"github.com/park285/rps-season-bot/internal/store"
	"github.com/park285/rps-season-bot/internal/util"
)

const adminRoom = "room-admin"

type fixture struct {
	t      *testing.T
	gw     store.Gateway
	router *Router
}

func newFixture(t *testing.T, gw store.Gateway, tweak ...func(*Deps)) *fixture {
	t.Helper()
	if gw == nil {
		gw = store.NewMemory()
	}
	cat, err := msgcat.New("")
	require.NoError(t, err)
	d := Deps{
		Seasons:  season.NewManager(gw, nil),
		Ledger:   registration.NewLedger(gw, nil),
		Rounds:   round.NewEngine(gw, match.NewResolver(match.WithRand(rand.New(rand.NewPCG(1, 2)))), nil),
		Board:    standings.NewBoard(gw, nil, nil),
		Access:   access.NewService(gw, []string{"id-root"}, []string{"id-dev"}, nil),
		Channels: channels.NewService(gw, nil),
		Catalog:  cat,
		Metrics:  metrics.New(),
		Prefix:   "/",
		Version:  "1.4.0",
	}
	for _, f := range tweak {
		f(&d)
	}
	return &fixture{t: t, gw: gw, router: NewRouter(d)}
}

func (f *fixture) send(user, room, text string) []Reply {
	return f.router.Handle(context.Background(), Message{Room: room, UserID: "id-" + user, Username: user, Text: text})
}

// say sends a command and returns the single reply text for the origin room.
func (f *fixture) say(user, room, text string) string {
	f.t.Helper()
	replies := f.send(user, room, text)
	require.NotEmpty(f.t, replies, text)
	return replies[0].Text
}

func (f *fixture) admin(text string) string { return f.say("root", adminRoom, text) }

// readyRound runs a season up to an open round with alice and bob on the roster.
func (f *fixture) readyRound() {
	f.t.Helper()
	f.admin("/startnewseason Spring Cup 4")
	f.admin("/startsignupphase")
	f.say("alice", "room-a", "/signup")
	f.say("bob", "room-b", "/signup")
	f.admin("/approveplayer alice")
	f.admin("/approveplayer @bob")
	f.admin("/stopsignupphase")
	f.admin("/startgamingphase")
	require.Equal(f.t, "Round 1 has started! Play with /rock, /paper or /scissors.", f.admin("/startround"))
}

func TestParse(t *testing.T) {
	name, args, rest, ok := Parse("/", "  /StartNewSeason  Spring Cup 4 ")
	require.True(t, ok)
	assert.Equal(t, "startnewseason", name)
	assert.Equal(t, []string{"Spring", "Cup", "4"}, args)
	assert.Equal(t, "Spring Cup 4", rest)

	_, _, _, ok = Parse("/", "hello there")
	assert.False(t, ok)
	_, _, _, ok = Parse("/", "/")
	assert.False(t, ok)
}

func TestNonCommandAndUnknownCommand(t *testing.T) {
	f := newFixture(t, nil)
	assert.Nil(t, f.send("alice", "room-a", "good morning"))
	assert.Equal(t, "Received your message, this is not a valid command. Try /help.", f.say("alice", "room-a", "/dance"))
}

func TestRoleGating(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "Only administrators can use this command.", f.say("alice", "room-a", "/startnewseason Spring 4"))
	assert.Equal(t, "Only developers can use this command.", f.admin("/whoami"))

	who := f.say("dev", "room-d", "/whoami")
	assert.Contains(t, who, "User ID: id-dev")
	assert.Contains(t, who, "Role: developer")

	assert.NotContains(t, f.say("alice", "room-a", "/help"), "Admin commands")
	assert.Contains(t, f.admin("/help"), "Admin commands")
}

func TestUsageAndBadArguments(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "Usage: /approveplayer <user>", f.admin("/approveplayer"))
	assert.Equal(t, "Usage: /startnewseason <name> <max players>", f.admin("/startnewseason Spring many"))
	assert.Equal(t, "rps-season-bot 1.4.0", f.say("alice", "room-a", "/version"))
}

func TestFullSeason(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, "There is no active season right now.", f.say("alice", "room-a", "/signup"))
	assert.Equal(t, "Season Spring Cup is created for up to 4 players. Open signups with /startsignupphase.", f.admin("/startnewseason Spring Cup 4"))
	assert.Equal(t, "A season is already running. Stop it with /stopnewseason first.", f.admin("/startnewseason Other 4"))
	assert.Equal(t, "Signups have not opened yet. Please wait for the announcement.", f.say("alice", "room-a", "/signup"))

	assert.Equal(t, "Signups for season Spring Cup are open! Join with /signup.", f.admin("/startsignupphase"))
	assert.Equal(t, "@alice, your signup for season Spring Cup is waiting for approval.", f.say("alice", "room-a", "/signup"))
	assert.Equal(t, "@alice, you have already signed up for this season.", f.say("alice", "room-a", "/signup"))
	f.say("bob", "room-b", "/signup")
	f.say("carol", "room-c", "/signup")

	replies := f.send("root", adminRoom, "/approveplayer @alice")
	require.Len(t, replies, 2)
	assert.Equal(t, Reply{Room: adminRoom, Text: "@alice has been approved."}, replies[0])
	assert.Equal(t, Reply{Room: "room-a", Text: "@alice, you have been accepted into season Spring Cup. Good luck!"}, replies[1])
	f.admin("/approveplayer bob")
	assert.Equal(t, "@carol has been refused.", f.admin("/refuseplayer carol"))
	assert.Equal(t, "No pending signup found for @dave.", f.admin("/approveplayer dave"))

	assert.Equal(t, "Signups for season Spring Cup\n1. @alice (accepted)\n2. @bob (accepted)\n3. @carol (refused)", f.admin("/viewsignuplist"))
	assert.Equal(t, "Refused players for season Spring Cup\n1. @carol", f.admin("/viewrefusedlist"))
	assert.Equal(t, "No pending signups found.", f.admin("/viewpendinglist"))

	f.admin("/stopsignupphase")
	f.admin("/startgamingphase")
	f.admin("/startround")

	assert.Equal(t, "@alice, your hand is in for round 1.", f.say("alice", "room-a", "/play paper"))
	assert.Equal(t, "@alice, you already played this round.", f.say("alice", "room-a", "/scissors"))
	assert.Equal(t, "@carol, you are not on this season's roster.", f.say("carol", "room-c", "/rock"))
	f.say("bob", "room-b", "/rock")

	closed := f.admin("/stopround")
	assert.True(t, strings.HasPrefix(closed, "Round 1 is over. Results:\n"), closed)
	assert.Contains(t, closed, "@alice")
	assert.Contains(t, closed, "@bob")

	assert.Equal(t, "🏆 Leaderboard: Spring Cup\n1. @alice 2 pts\n2. @bob 0 pts", f.say("bob", "room-b", "/viewleaderboard"))
	status := f.say("bob", "room-b", "/currentseasonstatus")
	assert.Contains(t, status, "Players: 2 / 4")
	assert.Contains(t, status, "Status: Gaming phase (between rounds)")

	final := f.admin("/stopnewseason")
	assert.Contains(t, final, "Season Spring Cup is over. Thanks for playing!")
	assert.Contains(t, final, "🏁 Final Leaderboard: Spring Cup 🏁\n1. @alice 2 pts")
	assert.Equal(t, "There is no active season right now.", f.say("bob", "room-b", "/viewleaderboard"))
}

func TestPhaseMessagesFollowCurrentStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.readyRound()

	assert.Equal(t, "A round is in progress. Stop it with /stopround first.", f.admin("/stopgamingphase"))
	assert.Equal(t, "A round is in progress. There are no signups to stop.", f.admin("/stopsignupphase"))
	assert.Equal(t, "A round is already in progress. Stop it with /stopround first.", f.admin("/startround"))
	assert.Equal(t, "Players can only be approved while signups are open (status: Round in progress).", f.admin("/approveplayer carol"))

	f.admin("/stopround")
	assert.Equal(t, "No round is in progress. Wait for the next round to start.", f.say("alice", "room-a", "/rock"))
	assert.Equal(t, "No round is in progress. Start one with /startround.", f.admin("/stopround"))
	assert.Equal(t, "Choose rock, paper or scissors, e.g. /play rock.", f.say("alice", "room-a", "/play lizard"))
}

func TestAnnouncementsAreMirrored(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "Broadcast channel set to room-news.", f.admin("/setbroadcastchannel room-news"))
	assert.Equal(t, "Group channel set to room-admin.", f.admin("/setgroupchannel"))
	assert.Equal(t, "Broadcast channel: room-news\nGroup channel: room-admin", f.admin("/getgroupbroadcastid"))

	f.admin("/startnewseason Spring 4")
	replies := f.send("root", adminRoom, "/startsignupphase")
	require.Len(t, replies, 2)
	assert.Equal(t, "room-news", replies[1].Room)
	assert.Equal(t, replies[0].Text, replies[1].Text)

	replies = f.send("root", adminRoom, "/msgbroadcastchannel Finals at 8pm!")
	require.Len(t, replies, 2)
	assert.Equal(t, Reply{Room: "room-news", Text: "Finals at 8pm!"}, replies[0])
	assert.Equal(t, "Message sent to room-news.", replies[1].Text)

	assert.Equal(t, "Broadcast and group channels have been cleared.", f.admin("/resetgroupbroadcast"))
	assert.Equal(t, "Broadcast channel: Not set\nGroup channel: Not set", f.admin("/getgroupbroadcastid"))
	assert.Equal(t, "No group channel is set. Use /setgroupchannel first.", f.admin("/msggroup hello"))
}

func TestAdminCommands(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "Nobody named @alice has signed up this season. Use their user id instead.", f.admin("/addadmin @alice"))

	f.admin("/startnewseason Spring 4")
	f.admin("/startsignupphase")
	f.say("alice", "room-a", "/signup")
	assert.Equal(t, "@alice (id-alice) is now an administrator.", f.admin("/addadmin @alice"))
	assert.Equal(t, "id-alice is already an administrator.", f.admin("/addadmin id-alice"))
	assert.Equal(t, "Administrators\n@alice (id-alice), added by @root\nid-root", f.say("alice", "room-a", "/listadmins"))
	assert.Equal(t, "id-root is configured as an administrator and cannot be removed here.", f.say("alice", "room-a", "/removeadmin id-root"))
	assert.Equal(t, "@alice (id-alice) is no longer an administrator.", f.admin("/removeadmin @alice"))
	assert.Equal(t, "Only administrators can use this command.", f.say("alice", "room-a", "/listadmins"))
}

func TestRolesFollowUserIDNotDisplayName(t *testing.T) {
	f := newFixture(t, nil)
	impostor := func(name, text string) string {
		replies := f.router.Handle(context.Background(), Message{Room: "room-x", UserID: "id-impostor", Username: name, Text: text})
		require.Len(t, replies, 1)
		return replies[0].Text
	}

	assert.Equal(t, "Only administrators can use this command.", impostor("root", "/startnewseason Hijack 4"))
	assert.Equal(t, "Only developers can use this command.", impostor("dev", "/whoami"))
	s, err := f.router.Seasons.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	replies := f.router.Handle(context.Background(), Message{Room: "room-x", Username: "root", Text: "/stopnewseason"})
	require.Len(t, replies, 1)
	assert.Equal(t, "Only administrators can use this command.", replies[0].Text, "a missing user id holds no role")

	assert.Contains(t, f.say("anyname", "room-x", "/help"), "Rock Paper Scissors season bot")
	replies = f.router.Handle(context.Background(), Message{Room: "room-x", UserID: "id-root", Username: "renamed", Text: "/startnewseason Spring 4"})
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Season Spring is created")
}

func TestApprovalRefreshesCachedStandings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	gw := store.NewMemory()
	f := newFixture(t, gw, func(d *Deps) {
		d.Board = standings.NewBoard(gw, standings.NewRedisCache(rdb, time.Hour), nil)
	})

	f.admin("/startnewseason Spring 4")
	f.admin("/startsignupphase")
	f.say("alice", "room-a", "/signup")
	assert.Contains(t, f.say("alice", "room-a", "/currentseasonstatus"), "Players: 0 / 4")
	require.NotEmpty(t, mr.Keys(), "standings are cached")

	f.admin("/approveplayer alice")
	assert.Contains(t, f.say("alice", "room-a", "/currentseasonstatus"), "Players: 1 / 4")
	assert.Equal(t, "🏆 Leaderboard: Spring\n1. @alice 0 pts", f.say("alice", "room-a", "/viewleaderboard"))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, nil, func(d *Deps) { d.Limiter = NewUserLimiter(0.001, 1) })
	f.say("alice", "room-a", "/version")
	assert.Equal(t, "@alice, slow down a little and try again in a moment.", f.say("alice", "room-a", "/version"))
	assert.Equal(t, "rps-season-bot 1.4.0", f.say("bob", "room-b", "/version"))
}

func TestReadChangelog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	require.NoError(t, os.WriteFile(path, []byte("## 1.4.0\n- persisted admins\n"), 0o644))
	f := newFixture(t, nil, func(d *Deps) { d.ChangelogPath = path })
	assert.Equal(t, "## 1.4.0\n- persisted admins", f.admin("/readchangelog"))

	g := newFixture(t, nil, func(d *Deps) { d.ChangelogPath = filepath.Join(t.TempDir(), "none.md") })
	assert.Equal(t, "The changelog is not available right now.", g.admin("/readchangelog"))
}

func TestLongRepliesAreFolded(t *testing.T) {
	f := newFixture(t, nil)
	f.admin("/startnewseason Spring 40")
	f.admin("/startsignupphase")
	for _, u := range []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "b1", "b2", "b3", "b4"} {
		f.say(u, "room-"+u, "/signup")
	}
	got := f.admin("/viewpendinglist")
	assert.Contains(t, got, util.KakaoZeroWidthSpace)
	assert.True(t, strings.HasPrefix(got, "Pending signups for season Spring"))
}

type brokenSeasons struct {
	*store.Memory
}

func (brokenSeasons) ActiveSeason(context.Context) (*domain.Season, error) {
	return nil, domain.WrapStore("active season", errors.New("connection refused"))
}

func TestStoreFailureIsGeneric(t *testing.T) {
	f := newFixture(t, brokenSeasons{store.NewMemory()})
	assert.Equal(t, "Something went wrong on our side. Please try again later.", f.say("alice", "room-a", "/viewleaderboard"))
}

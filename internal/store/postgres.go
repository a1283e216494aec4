package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/rps-season-bot/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Postgres is the Gateway over a lib/pq connection pool.
type Postgres struct {
	queries
	db *sql.DB
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{queries: queries{q: db}, db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return domain.WrapStore("migrate", err)
	}
	return nil
}

func (p *Postgres) Migrate(ctx context.Context) error { return Migrate(ctx, p.db) }

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapStore("begin tx", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(queries{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapStore("commit tx", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

type queries struct {
	q querier
}

const seasonColumns = `id, name, is_active, max_players, start_date, stop_date, status`

func scanSeason(r rowScanner) (*domain.Season, error) {
	var (
		s      domain.Season
		stop   sql.NullTime
		status string
	)
	if err := r.Scan(&s.ID, &s.Name, &s.Active, &s.MaxPlayers, &s.StartDate, &stop, &status); err != nil {
		return nil, err
	}
	if stop.Valid {
		t := stop.Time
		s.StopDate = &t
	}
	st, err := domain.ParseSeasonStatus(status)
	if err != nil {
		return nil, err
	}
	s.Status = st
	return &s, nil
}

func (q queries) ActiveSeason(ctx context.Context) (*domain.Season, error) {
	s, err := scanSeason(q.q.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE is_active LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStore("select active season", err)
	}
	return s, nil
}

func (q queries) LockActiveSeason(ctx context.Context) (*domain.Season, error) {
	s, err := scanSeason(q.q.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE is_active LIMIT 1 FOR UPDATE`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStore("lock active season", err)
	}
	return s, nil
}

func (q queries) InsertSeason(ctx context.Context, name string, maxPlayers int, now time.Time) (*domain.Season, error) {
	const query = `
		INSERT INTO seasons (name, is_active, max_players, start_date, status)
		VALUES ($1, TRUE, $2, $3, 'initial')
		ON CONFLICT (is_active) WHERE is_active DO NOTHING
		RETURNING ` + seasonColumns
	s, err := scanSeason(q.q.QueryRowContext(ctx, query, name, maxPlayers, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAlreadyActive
	}
	if err != nil {
		return nil, domain.WrapStore("insert season", err)
	}
	return s, nil
}

func (q queries) TransitionSeason(ctx context.Context, seasonID int64, from, to domain.SeasonStatus) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE seasons SET status = $3 WHERE id = $1 AND is_active AND status = $2`,
		seasonID, string(from), string(to))
	return affected(res, err, "update season status")
}

func (q queries) CloseSeason(ctx context.Context, seasonID int64, now time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE seasons SET is_active = FALSE, status = 'closed', stop_date = $2 WHERE id = $1 AND is_active`,
		seasonID, now)
	return affected(res, err, "close season")
}

func (q queries) MaxRoundNumber(ctx context.Context, seasonID int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(round_number), 0) FROM MasterRoundTable WHERE season_id = $1`, seasonID).Scan(&n)
	if err != nil {
		return 0, domain.WrapStore("select max round", err)
	}
	return n, nil
}

const roundColumns = `id, season_id, round_number, start_time, end_time`

func scanRound(r rowScanner) (*domain.Round, error) {
	var (
		rd  domain.Round
		end sql.NullTime
	)
	if err := r.Scan(&rd.ID, &rd.SeasonID, &rd.Number, &rd.StartTime, &end); err != nil {
		return nil, err
	}
	if end.Valid {
		t := end.Time
		rd.EndTime = &t
	}
	return &rd, nil
}

func (q queries) InsertRound(ctx context.Context, seasonID int64, number int, now time.Time) (*domain.Round, error) {
	const query = `
		INSERT INTO MasterRoundTable (season_id, round_number, start_time)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING ` + roundColumns
	rd, err := scanRound(q.q.QueryRowContext(ctx, query, seasonID, number, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConcurrentPhaseChange
	}
	if err != nil {
		return nil, domain.WrapStore("insert round", err)
	}
	return rd, nil
}

func (q queries) OpenRound(ctx context.Context, seasonID int64) (*domain.Round, error) {
	rd, err := scanRound(q.q.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM MasterRoundTable WHERE season_id = $1 AND end_time IS NULL ORDER BY id DESC LIMIT 1`,
		seasonID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStore("select open round", err)
	}
	return rd, nil
}

func (q queries) EndRound(ctx context.Context, roundID int64, now time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE MasterRoundTable SET end_time = $2 WHERE id = $1 AND end_time IS NULL`, roundID, now)
	return affected(res, err, "end round")
}

func (q queries) InsertMove(ctx context.Context, m domain.Move) (bool, error) {
	const query = `
		INSERT INTO RoundDetailsTable (round_id, player_id, player_username, player_hand, played_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (round_id, player_id) DO NOTHING
		RETURNING id`
	var id sql.NullInt64
	err := q.q.QueryRowContext(ctx, query, m.RoundID, m.PlayerID, m.PlayerUsername, string(m.Hand), m.PlayedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapStore("insert move", err)
	}
	return true, nil
}

func (q queries) MovesByRound(ctx context.Context, roundID int64) ([]domain.Move, error) {
	const query = `
		SELECT
			round_id,
			player_id,
			player_username,
			player_hand,
			COALESCE(opponent, ''),
			COALESCE(opponent_username, ''),
			COALESCE(opponent_hand, ''),
			COALESCE(game_status, ''),
			played_at
		FROM RoundDetailsTable
		WHERE round_id = $1
		ORDER BY player_id`
	rows, err := q.q.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, domain.WrapStore("select moves", err)
	}
	defer rows.Close()

	var moves []domain.Move
	for rows.Next() {
		var (
			m                    domain.Move
			hand, oppHand, state string
		)
		if err := rows.Scan(&m.RoundID, &m.PlayerID, &m.PlayerUsername, &hand, &m.OpponentID, &m.OpponentUsername, &oppHand, &state, &m.PlayedAt); err != nil {
			return nil, domain.WrapStore("scan move", err)
		}
		if m.Hand, err = domain.ParseStoredHand(hand); err != nil {
			return nil, domain.WrapStore("scan move", err)
		}
		if m.OpponentHand, err = domain.ParseStoredHand(oppHand); err != nil {
			return nil, domain.WrapStore("scan move", err)
		}
		if state != "" {
			if m.Status, err = domain.ParseOutcome(state); err != nil {
				return nil, domain.WrapStore("scan move", err)
			}
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStore("iterate moves", err)
	}
	return moves, nil
}

func (q queries) ResolveMove(ctx context.Context, r domain.MoveResolution) error {
	const query = `
		UPDATE RoundDetailsTable
		SET opponent = $3, opponent_username = $4, opponent_hand = $5, game_status = $6, player_username = $7
		WHERE round_id = $1 AND player_id = $2`
	res, err := q.q.ExecContext(ctx, query,
		r.RoundID, r.PlayerID, r.OpponentID, r.OpponentUsername, string(r.OpponentHand), string(r.Status), r.PlayerUsername)
	ok, err := affected(res, err, "resolve move")
	if err != nil {
		return err
	}
	if !ok {
		return domain.WrapStore("resolve move", fmt.Errorf("no move row for round %d player %s", r.RoundID, r.PlayerID))
	}
	return nil
}

const candidateColumns = `id, season_id, player_id, player_username, player_wallet, player_status, room, created_at`

func scanCandidate(r rowScanner) (*domain.Candidate, error) {
	var (
		c      domain.Candidate
		status string
	)
	if err := r.Scan(&c.ID, &c.SeasonID, &c.PlayerID, &c.Username, &c.Wallet, &status, &c.Room, &c.CreatedAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseCandidateStatus(status)
	if err != nil {
		return nil, err
	}
	c.Status = st
	return &c, nil
}

func (q queries) InsertCandidate(ctx context.Context, c domain.Candidate) (bool, error) {
	const query = `
		INSERT INTO MasterCandidateTable (season_id, player_id, player_username, player_wallet, player_status, room, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (season_id, player_id) DO NOTHING
		RETURNING id`
	var id sql.NullInt64
	err := q.q.QueryRowContext(ctx, query,
		c.SeasonID, c.PlayerID, c.Username, c.Wallet, string(c.Status), c.Room, c.CreatedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapStore("insert candidate", err)
	}
	return true, nil
}

func (q queries) DecideCandidate(ctx context.Context, seasonID int64, username string, from, to domain.CandidateStatus) (*domain.Candidate, error) {
	const query = `
		UPDATE MasterCandidateTable SET player_status = $4
		WHERE player_status = $3 AND id = (
			SELECT id FROM MasterCandidateTable
			WHERE season_id = $1 AND player_username = $2 AND player_status = $3
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + candidateColumns
	c, err := scanCandidate(q.q.QueryRowContext(ctx, query, seasonID, username, string(from), string(to)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStore("update candidate", err)
	}
	return c, nil
}

func (q queries) ListCandidates(ctx context.Context, seasonID int64, filter domain.ListFilter) ([]domain.Candidate, error) {
	const query = `
		SELECT ` + candidateColumns + `
		FROM MasterCandidateTable
		WHERE season_id = $1 AND ($2 = 'all' OR player_status = $2)
		ORDER BY created_at, id`
	rows, err := q.q.QueryContext(ctx, query, seasonID, string(filter))
	if err != nil {
		return nil, domain.WrapStore("select candidates", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, domain.WrapStore("scan candidate", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStore("iterate candidates", err)
	}
	return out, nil
}

func (q queries) InsertPlayer(ctx context.Context, p domain.Player) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO PlayerDetailsTable (season_id, player_id, player_username, player_wallet, score) VALUES ($1, $2, $3, $4, $5)`,
		p.SeasonID, p.PlayerID, p.Username, p.Wallet, p.Score)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s is already on the roster", domain.ErrAlreadySignedUp, p.Username)
	}
	if err != nil {
		return domain.WrapStore("insert player", err)
	}
	return nil
}

func (q queries) CountPlayers(ctx context.Context, seasonID int64) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM PlayerDetailsTable WHERE season_id = $1`, seasonID).Scan(&n); err != nil {
		return 0, domain.WrapStore("count players", err)
	}
	return n, nil
}

const playerColumns = `season_id, player_id, player_username, player_wallet, score`

func scanPlayer(r rowScanner) (*domain.Player, error) {
	var p domain.Player
	if err := r.Scan(&p.SeasonID, &p.PlayerID, &p.Username, &p.Wallet, &p.Score); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) Player(ctx context.Context, seasonID int64, playerID string) (*domain.Player, error) {
	p, err := scanPlayer(q.q.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM PlayerDetailsTable WHERE season_id = $1 AND player_id = $2`, seasonID, playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStore("select player", err)
	}
	return p, nil
}

func (q queries) Players(ctx context.Context, seasonID int64) ([]domain.Player, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM PlayerDetailsTable WHERE season_id = $1 ORDER BY score DESC, player_id ASC`, seasonID)
	if err != nil {
		return nil, domain.WrapStore("select players", err)
	}
	defer rows.Close()

	var out []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, domain.WrapStore("scan player", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStore("iterate players", err)
	}
	return out, nil
}

func (q queries) AddScore(ctx context.Context, seasonID int64, playerID string, delta int) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE PlayerDetailsTable SET score = score + $3 WHERE season_id = $1 AND player_id = $2`,
		seasonID, playerID, delta)
	ok, err := affected(res, err, "add score")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("add score for %s: %w", playerID, domain.ErrNotRegistered)
	}
	return nil
}

func (q queries) InsertAdmin(ctx context.Context, a domain.Administrator) (bool, error) {
	var got sql.NullString
	err := q.q.QueryRowContext(ctx,
		`INSERT INTO administrators (user_id, username, added_by, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING RETURNING user_id`,
		a.UserID, a.Username, a.AddedBy, a.CreatedAt).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !got.Valid) {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapStore("insert admin", err)
	}
	return true, nil
}

func (q queries) DeleteAdmin(ctx context.Context, userID string) (bool, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM administrators WHERE user_id = $1`, userID)
	return affected(res, err, "delete admin")
}

func (q queries) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var ok bool
	if err := q.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM administrators WHERE user_id = $1)`, userID).Scan(&ok); err != nil {
		return false, domain.WrapStore("select admin", err)
	}
	return ok, nil
}

func (q queries) Admins(ctx context.Context) ([]domain.Administrator, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT user_id, username, added_by, created_at FROM administrators ORDER BY user_id`)
	if err != nil {
		return nil, domain.WrapStore("select admins", err)
	}
	defer rows.Close()

	var out []domain.Administrator
	for rows.Next() {
		var a domain.Administrator
		if err := rows.Scan(&a.UserID, &a.Username, &a.AddedBy, &a.CreatedAt); err != nil {
			return nil, domain.WrapStore("scan admin", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStore("iterate admins", err)
	}
	return out, nil
}

func (q queries) ChannelSettings(ctx context.Context) (domain.ChannelSettings, error) {
	var cs domain.ChannelSettings
	err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(broadcast_channel_id, ''), COALESCE(group_channel_id, '') FROM channel_settings WHERE id = 1`).
		Scan(&cs.BroadcastChannelID, &cs.GroupChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChannelSettings{}, nil
	}
	if err != nil {
		return domain.ChannelSettings{}, domain.WrapStore("select channel settings", err)
	}
	return cs, nil
}

func (q queries) SetBroadcastChannel(ctx context.Context, id string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO channel_settings (id, broadcast_channel_id) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET broadcast_channel_id = EXCLUDED.broadcast_channel_id`, id)
	return domain.WrapStore("set broadcast channel", err)
}

func (q queries) SetGroupChannel(ctx context.Context, id string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO channel_settings (id, group_channel_id) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET group_channel_id = EXCLUDED.group_channel_id`, id)
	return domain.WrapStore("set group channel", err)
}

func (q queries) ResetChannels(ctx context.Context) error {
	_, err := q.q.ExecContext(ctx, `UPDATE channel_settings SET broadcast_channel_id = NULL, group_channel_id = NULL WHERE id = 1`)
	return domain.WrapStore("reset channels", err)
}

func affected(res sql.Result, err error, op string) (bool, error) {
	if err != nil {
		return false, domain.WrapStore(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.WrapStore(op, err)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

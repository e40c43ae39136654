// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// Schema is the static table layout of the catalog.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS stations (
	id   VARCHAR(255) PRIMARY KEY,
	name VARCHAR(255) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS programs (
	id             BIGSERIAL PRIMARY KEY,
	radiko_id      VARCHAR(255) NOT NULL,
	start_at       TIMESTAMPTZ NOT NULL,
	end_at         TIMESTAMPTZ NOT NULL,
	title          VARCHAR(255) NOT NULL,
	station_id     VARCHAR(255) NOT NULL REFERENCES stations (id),
	area_id        VARCHAR(255) NOT NULL,
	broadcast_date DATE NOT NULL,
	archive_status INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS programs_broadcast_date_idx ON programs (broadcast_date)`,
	`CREATE INDEX IF NOT EXISTS programs_status_start_idx ON programs (archive_status, start_at)`,
}

var programColumns = []string{
	"radiko_id",
	"start_at",
	"end_at",
	"title",
	"station_id",
	"area_id",
	"broadcast_date",
	"archive_status",
}

const selectProgram = `SELECT id, radiko_id, start_at, end_at, title, station_id, area_id, broadcast_date, archive_status
FROM programs`

// Config controls the Postgres connection pool used by the catalog.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// CatalogStore implements catalog.Store on Postgres.
type CatalogStore struct {
	pool pool
}

var _ catalog.Store = (*CatalogStore)(nil)

// NewCatalogStore connects a pgx pool using cfg.
func NewCatalogStore(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: p}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(p pool) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *CatalogStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the catalog tables and indexes when missing.
func (s *CatalogStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// StationsEmpty reports whether no station has been stored yet.
func (s *CatalogStore) StationsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stations`).Scan(&count); err != nil {
		return false, fmt.Errorf("count stations: %w", err)
	}
	return count == 0, nil
}

// SaveStations inserts stations in one transaction.
func (s *CatalogStore) SaveStations(ctx context.Context, stations []catalog.Station) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return insertStations(ctx, tx, stations)
	})
}

// CountPrograms returns the number of programs stored for day.
func (s *CatalogStore) CountPrograms(ctx context.Context, day broadcast.Date) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM programs WHERE broadcast_date = $1`,
		day.Time(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count programs on %s: %w", day, err)
	}
	return count, nil
}

// SaveDay writes stations and programs for day atomically.
func (s *CatalogStore) SaveDay(
	ctx context.Context,
	day broadcast.Date,
	stations []catalog.Station,
	programs []catalog.Program,
) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertStations(ctx, tx, stations); err != nil {
			return err
		}
		if len(programs) == 0 {
			return nil
		}
		rows := make([][]any, 0, len(programs))
		for _, p := range programs {
			rows = append(rows, []any{
				p.BroadcastID,
				p.Start,
				p.End,
				p.Title,
				p.StationID,
				p.AreaID,
				p.Date.Time(),
				int(p.Status),
			})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"programs"}, programColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy programs: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save day %s: %w", day, err)
	}
	return nil
}

// FindArchivable returns ARCHIVABLE programs whose title contains any keyword.
func (s *CatalogStore) FindArchivable(ctx context.Context, keywords []string) ([]catalog.Program, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	patterns := make([]string, 0, len(keywords))
	for _, k := range keywords {
		patterns = append(patterns, "%"+escapeLike(k)+"%")
	}
	rows, err := s.pool.Query(ctx,
		selectProgram+` WHERE archive_status = $1 AND title LIKE ANY ($2) ORDER BY start_at ASC, id ASC`,
		int(catalog.StatusArchivable),
		patterns,
	)
	if err != nil {
		return nil, fmt.Errorf("find archivable: %w", err)
	}
	return collectPrograms(rows)
}

// DeleteBefore removes programs whose broadcast day precedes boundary.
func (s *CatalogStore) DeleteBefore(ctx context.Context, boundary broadcast.Date) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM programs WHERE broadcast_date < $1`, boundary.Time())
	if err != nil {
		return 0, fmt.Errorf("delete programs before %s: %w", boundary, err)
	}
	return tag.RowsAffected(), nil
}

// Transition locks the program row, checks the move, and writes the new status.
func (s *CatalogStore) Transition(ctx context.Context, id int64, to catalog.Status) (catalog.Status, error) {
	var from catalog.Status
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx, `SELECT archive_status FROM programs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", catalog.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("lock program: %w", err)
		}
		from = catalog.Status(current)
		if err := catalog.CheckTransition(from, to); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE programs SET archive_status = $1 WHERE id = $2`, int(to), id); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
	if err != nil {
		return from, fmt.Errorf("transition program %d to %s: %w", id, to, err)
	}
	return from, nil
}

// GetProgram loads a single program by surrogate id.
func (s *CatalogStore) GetProgram(ctx context.Context, id int64) (catalog.Program, error) {
	rows, err := s.pool.Query(ctx, selectProgram+` WHERE id = $1`, id)
	if err != nil {
		return catalog.Program{}, fmt.Errorf("get program: %w", err)
	}
	programs, err := collectPrograms(rows)
	if err != nil {
		return catalog.Program{}, err
	}
	if len(programs) == 0 {
		return catalog.Program{}, fmt.Errorf("%w: %d", catalog.ErrNotFound, id)
	}
	return programs[0], nil
}

// ListPrograms returns every program with the given status, oldest first.
func (s *CatalogStore) ListPrograms(ctx context.Context, status catalog.Status) ([]catalog.Program, error) {
	rows, err := s.pool.Query(ctx,
		selectProgram+` WHERE archive_status = $1 ORDER BY start_at ASC, id ASC`,
		int(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return collectPrograms(rows)
}

func (s *CatalogStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertStations(ctx context.Context, tx pgx.Tx, stations []catalog.Station) error {
	for _, st := range stations {
		_, err := tx.Exec(ctx,
			`INSERT INTO stations (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			st.ID, st.Name,
		)
		if err != nil {
			return fmt.Errorf("insert station %s: %w", st.ID, err)
		}
	}
	return nil
}

func collectPrograms(rows pgx.Rows) ([]catalog.Program, error) {
	defer rows.Close()
	var out []catalog.Program
	for rows.Next() {
		var (
			p      catalog.Program
			date   time.Time
			status int
		)
		if err := rows.Scan(
			&p.ID,
			&p.BroadcastID,
			&p.Start,
			&p.End,
			&p.Title,
			&p.StationID,
			&p.AreaID,
			&date,
			&status,
		); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		p.Start = p.Start.In(broadcast.JST)
		p.End = p.End.In(broadcast.JST)
		p.Date = broadcast.DateOf(date.UTC())
		p.Status = catalog.Status(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate programs: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

var programRowColumns = []string{
	"id", "radiko_id", "start_at", "end_at", "title", "station_id", "area_id", "broadcast_date", "archive_status",
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *CatalogStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewCatalogStoreWithPool(mock)
	require.NoError(t, err)
	return mock, store
}

func sampleProgram() catalog.Program {
	start := time.Date(2021, time.January, 16, 5, 0, 0, 0, broadcast.JST)
	return catalog.Program{
		BroadcastID: "10001",
		Start:       start,
		End:         start.Add(time.Hour),
		Title:       "ZAPPA",
		StationID:   "FMJ",
		AreaID:      "JP13",
		Date:        broadcast.NewDate(2021, time.January, 16),
		Status:      catalog.StatusArchivable,
	}
}

func TestNewCatalogStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewCatalogStoreWithPool(nil)
	require.Error(t, err)
}

func TestNewCatalogStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewCatalogStore(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn")
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	for _, stmt := range Schema {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPrograms(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	day := broadcast.NewDate(2021, time.January, 16)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM programs WHERE broadcast_date = $1")).
		WithArgs(day.Time()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.CountPrograms(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStationsEmpty(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM stations")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	empty, err := store.StationsEmpty(context.Background())
	require.NoError(t, err)
	require.True(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDayCommitsStationsAndPrograms(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	p := sampleProgram()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stations (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING")).
		WithArgs("FMJ", "J-WAVE").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"programs"}, programColumns).WillReturnResult(1)
	mock.ExpectCommit()

	err := store.SaveDay(context.Background(), p.Date, []catalog.Station{{ID: "FMJ", Name: "J-WAVE"}}, []catalog.Program{p})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDayRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	p := sampleProgram()

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"programs"}, programColumns).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := store.SaveDay(context.Background(), p.Date, nil, []catalog.Program{p})
	require.ErrorContains(t, err, "fk violation")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindArchivableEscapesKeywords(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	p := sampleProgram()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE archive_status = $1 AND title LIKE ANY ($2) ORDER BY start_at ASC, id ASC")).
		WithArgs(int(catalog.StatusArchivable), []string{"%ZAPPA%", `%100\%%`}).
		WillReturnRows(pgxmock.NewRows(programRowColumns).AddRow(
			int64(1), p.BroadcastID, p.Start.UTC(), p.End.UTC(), p.Title, p.StationID, p.AreaID, p.Date.Time(), 0,
		))

	got, err := store.FindArchivable(context.Background(), []string{"ZAPPA", "100%"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].ID)
	require.Equal(t, p.Date, got[0].Date)
	require.Equal(t, broadcast.JST, got[0].Start.Location())
	require.True(t, got[0].Start.Equal(p.Start))
	require.Equal(t, catalog.StatusArchivable, got[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindArchivableWithoutKeywordsSkipsQuery(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	got, err := store.FindArchivable(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBefore(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	boundary := broadcast.NewDate(2021, time.January, 16)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM programs WHERE broadcast_date < $1")).
		WithArgs(boundary.Time()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	n, err := store.DeleteBefore(context.Background(), boundary)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLocksRowAndUpdates(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT archive_status FROM programs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"archive_status"}).AddRow(int(catalog.StatusArchivable)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE programs SET archive_status = $1 WHERE id = $2")).
		WithArgs(int(catalog.StatusArchiving), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	from, err := store.Transition(context.Background(), 7, catalog.StatusArchiving)
	require.NoError(t, err)
	require.Equal(t, catalog.StatusArchivable, from)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT archive_status FROM programs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"archive_status"}).AddRow(int(catalog.StatusArchived)))
	mock.ExpectRollback()

	from, err := store.Transition(context.Background(), 7, catalog.StatusArchiving)
	require.ErrorIs(t, err, catalog.ErrIllegalTransition)
	require.Equal(t, catalog.StatusArchived, from)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionMissingProgram(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT archive_status FROM programs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), 9, catalog.StatusArchivable)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProgramNotFound(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(programRowColumns))

	_, err := store.GetProgram(context.Background(), 3)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	require.Equal(t, `a\_b\%c\\d`, escapeLike(`a_b%c\d`))
}

func TestPingReportsPoolError(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.Error(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

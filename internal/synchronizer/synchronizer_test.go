package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/radiko"
	"github.com/radikoarchive/radiko-archiver/internal/storage/memory"
)

const stationListXML = `<stations area_id="JP13">
  <station><id>FMJ</id><name>J-WAVE</name></station>
  <station><id>TBS</id><name>TBS Radio</name></station>
</stations>`

func listingXML(day broadcast.Date) string {
	return fmt.Sprintf(`<radiko><stations>
  <station id="FMJ"><name>J-WAVE</name><progs>
    <prog id="%[1]s01" ft="%[1]s050000" to="%[1]s060000"><title>ZAPPA</title></prog>
    <prog id="%[1]s02" ft="%[1]s060000" to="%[1]s070000"><title>Morning</title></prog>
    <prog id="%[1]s03" ft="%[1]s070000" to="%[1]s080000"><title></title></prog>
  </progs></station>
</stations></radiko>`, day.Encode())
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	cancel context.CancelFunc
}

func (f *fakeFetcher) Fetch(_ context.Context, req catalog.Request) (catalog.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	if err, ok := f.fail[req.URL]; ok {
		return catalog.Response{}, err
	}
	if f.cancel != nil {
		f.cancel()
	}
	resp := catalog.Response{URL: req.URL, StatusCode: http.StatusOK}
	switch {
	case strings.Contains(req.URL, "/v3/station/list/"):
		resp.Body = []byte(stationListXML)
	case strings.Contains(req.URL, "/v3/program/date/"):
		raw := strings.Split(req.URL, "/")[6]
		day, err := broadcast.DecodeDate(raw)
		if err != nil {
			return catalog.Response{}, err
		}
		resp.Body = []byte(listingXML(day))
	default:
		return catalog.Response{}, &catalog.StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
	}
	return resp, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-1", nil }

var testNow = time.Date(2021, time.January, 23, 12, 0, 0, 0, broadcast.JST)

func newSynchronizer(t *testing.T, fetcher catalog.Fetcher) (*Synchronizer, *memory.CatalogStore, radiko.Endpoints) {
	t.Helper()
	endpoints, err := radiko.NewEndpoints("https://radiko.example")
	require.NoError(t, err)
	store := memory.NewCatalogStore()
	return New(store, fetcher, endpoints, "JP13", staticIDs{}, nil), store, endpoints
}

func totalPrograms(t *testing.T, store catalog.Store) int {
	t.Helper()
	total := 0
	for _, day := range broadcast.Range(broadcast.NewDate(2021, time.January, 1), broadcast.NewDate(2021, time.January, 31)) {
		n, err := store.CountPrograms(context.Background(), day)
		require.NoError(t, err)
		total += n
	}
	return total
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	s, store, _ := newSynchronizer(t, fetcher)

	require.NoError(t, s.Sync(context.Background(), testNow))
	require.Equal(t, 7, fetcher.callCount())
	require.Equal(t, 14, totalPrograms(t, store))

	require.NoError(t, s.Sync(context.Background(), testNow))
	require.Equal(t, 7, fetcher.callCount())
	require.Equal(t, 14, totalPrograms(t, store))
}

func TestSyncFetchesWindowAscending(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	s, _, endpoints := newSynchronizer(t, fetcher)

	require.NoError(t, s.Sync(context.Background(), testNow))
	var want []string
	for _, day := range broadcast.Window(testNow) {
		want = append(want, endpoints.ProgramListing(day, "JP13"))
	}
	require.Equal(t, want, fetcher.calls)
}

func TestSyncContinuesPastFailedDayAndReportsIt(t *testing.T) {
	t.Parallel()

	endpoints, err := radiko.NewEndpoints("https://radiko.example")
	require.NoError(t, err)
	broken := broadcast.NewDate(2021, time.January, 18)
	fetcher := &fakeFetcher{fail: map[string]error{
		endpoints.ProgramListing(broken, "JP13"): &catalog.StatusError{StatusCode: http.StatusServiceUnavailable},
	}}
	s, store, _ := newSynchronizer(t, fetcher)

	err = s.Sync(context.Background(), testNow)
	var statusErr *catalog.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)

	n, err := store.CountPrograms(context.Background(), broken)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 12, totalPrograms(t, store))

	delete(fetcher.fail, endpoints.ProgramListing(broken, "JP13"))
	require.NoError(t, s.Sync(context.Background(), testNow))
	require.Equal(t, 14, totalPrograms(t, store))
}

func TestSyncStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{cancel: cancel}
	s, _, _ := newSynchronizer(t, fetcher)

	err := s.Sync(ctx, testNow)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, fetcher.callCount())
}

func TestPruneBoundary(t *testing.T) {
	t.Parallel()

	s, store, _ := newSynchronizer(t, &fakeFetcher{})
	today := broadcast.DayOf(testNow)
	old := today.AddDays(-8)
	recent := today.AddDays(-6)
	for _, day := range []broadcast.Date{old, recent} {
		p, err := catalog.NewProgram(catalog.ProgramFields{
			BroadcastID: "1",
			Start:       day.Time(),
			End:         day.Time().Add(time.Hour),
			Title:       "News",
			StationID:   "FMJ",
			AreaID:      "JP13",
			Date:        day,
		})
		require.NoError(t, err)
		require.NoError(t, store.SaveDay(context.Background(), day,
			[]catalog.Station{{ID: "FMJ", Name: "J-WAVE"}}, []catalog.Program{p}))
	}

	require.NoError(t, s.Prune(context.Background(), testNow))

	n, err := store.CountPrograms(context.Background(), old)
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = store.CountPrograms(context.Background(), recent)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.Prune(context.Background(), testNow))
}

func TestEnsureStationsLoadsOnce(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	s, store, _ := newSynchronizer(t, fetcher)

	require.NoError(t, s.EnsureStations(context.Background()))
	require.Equal(t, []catalog.Station{
		{ID: "FMJ", Name: "J-WAVE"},
		{ID: "TBS", Name: "TBS Radio"},
	}, store.Stations())

	require.NoError(t, s.EnsureStations(context.Background()))
	require.Equal(t, 1, fetcher.callCount())
}

func TestSyncThenMatchFindsKeyword(t *testing.T) {
	t.Parallel()

	s, store, _ := newSynchronizer(t, &fakeFetcher{})
	require.NoError(t, s.Sync(context.Background(), testNow))

	found, err := store.FindArchivable(context.Background(), []string{"ZAPPA"})
	require.NoError(t, err)
	require.Len(t, found, 7)
	first := found[0]
	require.Equal(t, "FMJ", first.StationID)
	require.Equal(t, catalog.StatusArchivable, first.Status)
	require.True(t, first.Start.Equal(time.Date(2021, time.January, 16, 5, 0, 0, 0, broadcast.JST)))
	for i := 1; i < len(found); i++ {
		require.True(t, found[i-1].Start.Before(found[i].Start))
	}
}

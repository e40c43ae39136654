package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, syncDaysTotal)
	require.NotNil(t, archivesTotal)
	require.NotNil(t, activeArchivers)
}

func TestObservers(t *testing.T) {
	Init()

	beforeSynced := testutil.ToFloat64(syncDaysTotal.WithLabelValues(DaySynced))
	beforeInserted := testutil.ToFloat64(programsInsertedTotal)
	beforeRejected := testutil.ToFloat64(programsRejectedTotal)
	ObserveSyncDay(DaySynced, 3, 1)
	require.Equal(t, beforeSynced+1, testutil.ToFloat64(syncDaysTotal.WithLabelValues(DaySynced)))
	require.Equal(t, beforeInserted+3, testutil.ToFloat64(programsInsertedTotal))
	require.Equal(t, beforeRejected+1, testutil.ToFloat64(programsRejectedTotal))

	beforePruned := testutil.ToFloat64(programsPrunedTotal)
	ObservePrune(0)
	ObservePrune(4)
	require.Equal(t, beforePruned+4, testutil.ToFloat64(programsPrunedTotal))

	beforeArchived := testutil.ToFloat64(archivesTotal.WithLabelValues("ARCHIVED"))
	ObserveArchive("ARCHIVED")
	require.Equal(t, beforeArchived+1, testutil.ToFloat64(archivesTotal.WithLabelValues("ARCHIVED")))

	beforeActive := testutil.ToFloat64(activeArchivers)
	IncActiveArchivers()
	require.Equal(t, beforeActive+1, testutil.ToFloat64(activeArchivers))
	DecActiveArchivers()
	require.Equal(t, beforeActive, testutil.ToFloat64(activeArchivers))

	ObserveSync(2 * time.Second)
	require.Equal(t, 1, testutil.CollectAndCount(syncDurationSeconds))

	ObserveRateLimitDelay("radiko.jp", 300*time.Millisecond)
	require.GreaterOrEqual(t, testutil.CollectAndCount(rateLimitDelaySeconds), 1)
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	before404 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, path := range []string{"/ok", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, before200+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, before404+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")))
}

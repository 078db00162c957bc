package pipeline

import (
	"context"
	"errors"
	"loggingturtle/internal/artifact"
	"loggingturtle/internal/components/chrono"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/normalize"
	"loggingturtle/internal/stage"
	"loggingturtle/internal/table"
	configlibsql "loggingturtle/lib/configutil/libsql"
	"loggingturtle/services/logstore"
	"loggingturtle/services/logstore/db"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC)

var layout = table.NewRaw(nil, [][]string{{"City of Fairfield"}})

var dispatchLog = table.NewRaw(
	[]string{"Date Time", "inci #", "Address", "Type"},
	[][]string{
		{"3/1/2024 11:15:00 AM", "24-002", "Texas St & Union Ave", "ALARM"},
		{"3/1/2024 10:00:00 AM", "24-001", "100 Block of Main St", "TRAFFIC STOP"},
		{"3/1/2024 10:00:00 AM", "24-003", "200 Block of Oak Ave", "WELFARE CHECK"},
	},
)

type fakeFetcher struct {
	// responses are returned in order, the last one repeats
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	tables []table.Raw
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]table.Raw, error) {
	res := f.responses[min(f.calls, len(f.responses)-1)]
	f.calls++
	return res.tables, res.err
}

type countingNormalizer struct {
	normalize.Normalizer
	calls int
}

func (c *countingNormalizer) Normalize(raw table.Raw) (normalize.Table, error) {
	c.calls++
	return c.Normalizer.Normalize(raw)
}

type trackedStore struct {
	logstore.Store
	closed *bool
}

func (s trackedStore) Close() error {
	*s.closed = true
	return s.Store.Close()
}

type failingEmitter struct{}

func (failingEmitter) Emit(normalize.Table, string, time.Time) (artifact.Paths, error) {
	return artifact.Paths{}, stage.Errorf(stage.Emit, "disk full")
}

type harness struct {
	t          *testing.T
	tel        *telemetry.Recorder
	fetcher    *fakeFetcher
	normalizer *countingNormalizer
	emitter    Emitter
	dbPath     string
	artifacts  string
	opened     int
	closed     bool
	retry      Retry
}

func newHarness(t *testing.T, responses ...fakeResponse) *harness {
	root := t.TempDir()
	tel := telemetry.NewRecorder()
	h := &harness{
		t:          t,
		tel:        tel,
		fetcher:    &fakeFetcher{responses: responses},
		normalizer: &countingNormalizer{Normalizer: normalize.New(tel, normalize.DefaultOptions())},
		dbPath:     filepath.Join(root, "DataBase", "FFPD.db"),
		artifacts:  root,
	}
	h.emitter = artifact.New(tel, filepath.Join(root, "csv"), filepath.Join(root, "html"))
	return h
}

func (h *harness) pipeline() Pipeline {
	env := Env{
		Tel:   h.tel,
		Clock: chrono.FixedTime{Instant: now},
		Source: Source{
			Entity:        "FFPD",
			URL:           "http://dispatch.invalid/log",
			TablePosition: table.DefaultPosition,
		},
		Retry: h.retry,
	}
	opener := func(ctx context.Context) (Store, error) {
		h.opened++
		store, err := logstore.Open(ctx, configlibsql.Struct{File: h.dbPath}, h.tel)
		if err != nil {
			return nil, err
		}
		return trackedStore{Store: store, closed: &h.closed}, nil
	}
	return New(env, h.fetcher, h.normalizer, opener, h.emitter)
}

func (h *harness) count(log db.Log) int64 {
	store, err := logstore.Open(context.Background(), configlibsql.Struct{File: h.dbPath}, h.tel)
	require.NoError(h.t, err)
	defer store.Close()
	n, err := store.Count(context.Background(), log)
	require.NoError(h.t, err)
	return n
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t, fakeResponse{tables: []table.Raw{layout, dispatchLog}})

	result, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "FFPD", result.Entity)
	require.Len(t, result.RunID, 26)
	require.Equal(t, 3, result.RowsAppended)
	require.Equal(t, 3, result.RawRowsAppended)
	require.True(t, result.RunTimestamp.Equal(now))
	require.NoError(t, result.EmitErr)
	require.True(t, result.Reconcile.Consistent())
	require.Equal(t, filepath.Join(h.artifacts, "csv", "01-03-2024_FFPD.csv"), result.Artifacts.CSV)
	require.True(t, h.closed)

	_, err = os.Stat(result.Artifacts.HTML)
	require.NoError(t, err)
	count, ok := h.tel.LastCount("pipeline.rows-appended")
	require.True(t, ok)
	require.Equal(t, int64(3), count)
}

func TestRerunAppendsAgain(t *testing.T) {
	h := newHarness(t, fakeResponse{tables: []table.Raw{layout, dispatchLog}})

	first, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	second, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, second.RowsAppended)
	require.NotEqual(t, first.RunID, second.RunID)
	require.Equal(t, int64(6), h.count(db.NormalizedLog))
	require.Equal(t, int64(6), h.count(db.RawLog))
}

func TestSelectFailsBeforeNormalize(t *testing.T) {
	h := newHarness(t, fakeResponse{tables: []table.Raw{layout}})

	_, err := h.pipeline().Run(context.Background())
	require.Error(t, err)
	require.True(t, stage.Is(err, stage.Select))
	require.Zero(t, h.normalizer.calls)
	require.Zero(t, h.opened)
	require.True(t, h.tel.Has("broken", "pipeline.run"))
}

func TestNormalizeFailurePersistsNothing(t *testing.T) {
	noTime := table.NewRaw(
		[]string{"When", "inci #", "Address"},
		[][]string{{"3/1/2024 10:00:00 AM", "24-001", "100 Block of Main St"}},
	)
	h := newHarness(t, fakeResponse{tables: []table.Raw{layout, noTime}})

	_, err := h.pipeline().Run(context.Background())
	require.True(t, stage.Is(err, stage.Normalize))
	require.Equal(t, 1, h.normalizer.calls)
	require.Zero(t, h.opened)
	require.True(t, h.tel.Has("warning", "pipeline.signature"))

	_, err = os.Stat(h.dbPath)
	require.True(t, os.IsNotExist(err))
}

func TestFetchRetry(t *testing.T) {
	unreachable := stage.Errorf(stage.Fetch, "connection refused")
	h := newHarness(t,
		fakeResponse{err: unreachable},
		fakeResponse{err: unreachable},
		fakeResponse{tables: []table.Raw{layout, dispatchLog}},
	)
	h.retry = Retry{Attempts: 3, Delay: time.Millisecond}

	result, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, h.fetcher.calls)
	require.Equal(t, 3, result.RowsAppended)
}

func TestFetchRetryExhausted(t *testing.T) {
	h := newHarness(t, fakeResponse{err: errors.New("connection refused")})
	h.retry = Retry{Attempts: 2, Delay: time.Millisecond}

	_, err := h.pipeline().Run(context.Background())
	require.True(t, stage.Is(err, stage.Fetch))
	require.ErrorContains(t, err, "attempt 2")
	require.Equal(t, 2, h.fetcher.calls)
	require.Zero(t, h.normalizer.calls)
}

func TestFetchRetryStopsOnCancel(t *testing.T) {
	h := newHarness(t, fakeResponse{err: errors.New("connection refused")})
	h.retry = Retry{Attempts: 5, Delay: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.pipeline().Run(ctx)
	require.True(t, stage.Is(err, stage.Fetch))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, h.fetcher.calls)
}

func TestEmitFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, fakeResponse{tables: []table.Raw{layout, dispatchLog}})
	h.emitter = failingEmitter{}

	result, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.True(t, stage.Is(result.EmitErr, stage.Emit))
	require.Equal(t, artifact.Paths{}, result.Artifacts)
	require.Equal(t, 3, result.RowsAppended)
	require.Equal(t, int64(3), h.count(db.NormalizedLog))
}

func TestPersistFailureClosesStore(t *testing.T) {
	h := newHarness(t, fakeResponse{tables: []table.Raw{layout, dispatchLog}})

	store, err := logstore.Open(context.Background(), configlibsql.Struct{File: h.dbPath}, h.tel)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	database, err := configlibsql.Struct{File: h.dbPath}.OpenDB()
	require.NoError(t, err)
	_, err = database.Exec(`CREATE TRIGGER fail_raw BEFORE INSERT ON raw_log BEGIN SELECT RAISE(ABORT, 'injected'); END`)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	result, err := h.pipeline().Run(context.Background())
	require.True(t, stage.Is(err, stage.Persist))
	require.True(t, h.closed)
	require.Zero(t, result.RowsAppended)
	require.Empty(t, result.Artifacts.CSV)
	require.Equal(t, int64(0), h.count(db.NormalizedLog))
}

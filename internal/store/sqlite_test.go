package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balidash/detective-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// --- Restaurants ---

func TestSQLite_Restaurant_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := model.Restaurant{ID: "resto-1", Name: "Warung Melati", Latitude: -8.67, Longitude: 115.21, Area: "Seminyak"}
	require.NoError(t, st.UpsertRestaurant(ctx, r))

	got, err := st.GetRestaurant(ctx, "resto-1")
	require.NoError(t, err)
	assert.Equal(t, r, *got)

	// Upsert overwrites in place.
	r.Name = "Warung Melati Baru"
	require.NoError(t, st.UpsertRestaurant(ctx, r))
	got, err = st.GetRestaurant(ctx, "resto-1")
	require.NoError(t, err)
	assert.Equal(t, "Warung Melati Baru", got.Name)
}

func TestSQLite_Restaurant_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRestaurant(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Platform records ---

func TestSQLite_PlatformRecords_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertRestaurant(ctx, model.Restaurant{ID: "resto-1", Name: "Warung"}))

	d := day(2025, 3, 14)
	records := []model.DailyPlatformRecord{
		{
			RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: d,
			Sales: 2500000, Orders: 120, AdsSpend: 100000, AdsSales: 450000,
			Rating: 4.7, Cancelled: 3, OfflineRatio: 25,
			DriverWaitMinutes: 5, PrepMinutes: 18, DeliveryMinutes: 38,
		},
		{
			RestaurantID: "resto-1", Platform: model.PlatformGojek, Date: d,
			Sales: 1800000, Orders: 90, AdsSpend: 80000, AdsSales: 300000,
			Rating: 4.5, Cancelled: 3, OfflineRatio: 10,
			DriverWaitMinutes: 6, PrepMinutes: 20, DeliveryMinutes: 42,
		},
	}
	require.NoError(t, st.UpsertPlatformRecords(ctx, records))

	got, err := st.FetchPlatformRecords(ctx, "resto-1", d, d)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Grab rows come back first; storage denormalizes driver wait to seconds
	// and Gojek offline ratio to closed minutes, so the round trip must be
	// lossless through Normalize.
	assert.Equal(t, model.PlatformGrab, got[0].Platform)
	assert.InDelta(t, 5.0, got[0].DriverWaitMinutes, 1e-9)
	assert.InDelta(t, 25.0, got[0].OfflineRatio, 1e-9)

	assert.Equal(t, model.PlatformGojek, got[1].Platform)
	assert.InDelta(t, 10.0, got[1].OfflineRatio, 1e-9)
	assert.Equal(t, 3, got[1].Cancelled)
}

func TestSQLite_PlatformRecords_DateWindow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertRestaurant(ctx, model.Restaurant{ID: "resto-1", Name: "Warung"}))

	var records []model.DailyPlatformRecord
	for i := 1; i <= 10; i++ {
		records = append(records, model.DailyPlatformRecord{
			RestaurantID: "resto-1", Platform: model.PlatformGrab,
			Date: day(2025, 3, i), Sales: float64(i) * 100000, Orders: i,
		})
	}
	require.NoError(t, st.UpsertPlatformRecords(ctx, records))

	got, err := st.FetchPlatformRecords(ctx, "resto-1", day(2025, 3, 3), day(2025, 3, 7))
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, day(2025, 3, 3), got[0].Date)
	assert.Equal(t, day(2025, 3, 7), got[4].Date)
}

func TestSQLite_PlatformRecords_UpsertOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertRestaurant(ctx, model.Restaurant{ID: "resto-1", Name: "Warung"}))

	d := day(2025, 3, 14)
	rec := model.DailyPlatformRecord{
		RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: d, Sales: 100000, Orders: 5,
	}
	require.NoError(t, st.UpsertPlatformRecords(ctx, []model.DailyPlatformRecord{rec}))

	rec.Sales = 250000
	rec.Orders = 12
	require.NoError(t, st.UpsertPlatformRecords(ctx, []model.DailyPlatformRecord{rec}))

	got, err := st.FetchPlatformRecords(ctx, "resto-1", d, d)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 250000.0, got[0].Sales)
	assert.Equal(t, 12, got[0].Orders)
}

func TestSQLite_PlatformRecords_UnknownPlatform(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpsertPlatformRecords(context.Background(), []model.DailyPlatformRecord{
		{RestaurantID: "resto-1", Platform: "uber", Date: day(2025, 3, 14)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown platform")
}

// --- Runs ---

func TestSQLite_Run_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "resto-1", day(2025, 1, 1), day(2025, 3, 1))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	report := &model.AnalysisReport{RunID: run.ID}
	require.NoError(t, st.CompleteRun(ctx, run.ID, report))

	runs, err := st.ListRuns(ctx, RunFilter{RestaurantID: "resto-1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Report)
	assert.Equal(t, run.ID, runs[0].Report.RunID)
}

func TestSQLite_Run_Fail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "resto-1", day(2025, 1, 1), day(2025, 3, 1))
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, "insufficient data"))

	runs, err := st.ListRuns(ctx, RunFilter{Status: RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSQLite_Run_CompleteUnknown(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "ghost-run", &model.AnalysisReport{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := st.CreateRun(ctx, "resto-1", day(2025, 1, 1), day(2025, 3, 1))
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

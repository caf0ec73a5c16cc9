package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balidash/detective-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRestaurant_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, latitude, longitude, area FROM restaurants WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRestaurant(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRestaurant(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, latitude, longitude, area FROM restaurants`).
		WithArgs("resto-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "latitude", "longitude", "area"}).
			AddRow("resto-1", "Warung Melati", -8.67, 115.21, "Seminyak"))

	r, err := s.GetRestaurant(context.Background(), "resto-1")
	require.NoError(t, err)
	assert.Equal(t, "Warung Melati", r.Name)
	assert.Equal(t, "Seminyak", r.Area)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRestaurant(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO restaurants .* ON CONFLICT`).
		WithArgs("resto-1", "Warung Melati", -8.67, 115.21, "Seminyak").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertRestaurant(context.Background(), model.Restaurant{
		ID: "resto-1", Name: "Warung Melati", Latitude: -8.67, Longitude: 115.21, Area: "Seminyak",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FetchPlatformRecords_Normalizes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM grab_stats`).
		WithArgs("resto-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{
			"stat_date", "sales", "orders", "ads_spend", "ads_sales", "rating",
			"cancelled_orders", "offline_rate", "driver_waiting_secs",
			"preparation_minutes", "delivery_minutes",
		}).AddRow(day, 2500000.0, 120, 100000.0, 450000.0, 4.7, 3, 25.0, 300.0, 18.0, 38.0))

	mock.ExpectQuery(`FROM gojek_stats`).
		WithArgs("resto-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{
			"stat_date", "sales", "orders", "ads_spend", "ads_sales", "rating",
			"cancelled_orders", "lost_orders", "close_minutes", "driver_waiting_mins",
			"preparation_minutes", "delivery_minutes",
		}).AddRow(day, 1800000.0, 90, 80000.0, 300000.0, 4.5, 2, 1, 84.0, 6.0, 20.0, 42.0))

	records, err := s.FetchPlatformRecords(context.Background(), "resto-1", day, day)
	require.NoError(t, err)
	require.Len(t, records, 2)

	grab := records[0]
	assert.Equal(t, model.PlatformGrab, grab.Platform)
	assert.InDelta(t, 5.0, grab.DriverWaitMinutes, 1e-9)
	assert.InDelta(t, 25.0, grab.OfflineRatio, 1e-9)

	gojek := records[1]
	assert.Equal(t, model.PlatformGojek, gojek.Platform)
	assert.Equal(t, 3, gojek.Cancelled) // cancelled + lost
	assert.InDelta(t, 10.0, gojek.OfflineRatio, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPlatformRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO grab_stats`).
		WithArgs("resto-1", day, 2500000.0, 120, 100000.0, 450000.0, 4.7, 3, 25.0, 300.0, 18.0, 38.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO gojek_stats`).
		WithArgs("resto-1", day, 1800000.0, 90, 80000.0, 300000.0, 4.5, 3, 84.0, 6.0, 20.0, 42.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.UpsertPlatformRecords(context.Background(), []model.DailyPlatformRecord{
		{
			RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: day,
			Sales: 2500000, Orders: 120, AdsSpend: 100000, AdsSales: 450000,
			Rating: 4.7, Cancelled: 3, OfflineRatio: 25,
			DriverWaitMinutes: 5, PrepMinutes: 18, DeliveryMinutes: 38,
		},
		{
			RestaurantID: "resto-1", Platform: model.PlatformGojek, Date: day,
			Sales: 1800000, Orders: 90, AdsSpend: 80000, AdsSales: 300000,
			Rating: 4.5, Cancelled: 3, OfflineRatio: 10,
			DriverWaitMinutes: 6, PrepMinutes: 20, DeliveryMinutes: 42,
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPlatformRecords_UnknownPlatform(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.UpsertPlatformRecords(context.Background(), []model.DailyPlatformRecord{
		{RestaurantID: "resto-1", Platform: "uber", Date: time.Now()},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown platform")
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO analysis_runs`).
		WithArgs(pgxmock.AnyArg(), "resto-1", start, end, RunStatusRunning, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "resto-1", start, end)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE analysis_runs SET status`).
		WithArgs(RunStatusComplete, pgxmock.AnyArg(), "ghost-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "ghost-run", &model.AnalysisReport{})
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE analysis_runs SET status`).
		WithArgs(RunStatusFailed, "weather provider unreachable", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailRun(context.Background(), "run-1", "weather provider unreachable")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, restaurant_id, start_date, end_date, status, report, created_at`).
		WithArgs("resto-1", RunStatusComplete, 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "restaurant_id", "start_date", "end_date", "status", "report", "created_at",
		}).AddRow("run-1", "resto-1", start, end, RunStatusComplete,
			[]byte(`{"run_id":"run-1"}`), created))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		RestaurantID: "resto-1",
		Status:       RunStatusComplete,
		Limit:        5,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	require.NotNil(t, runs[0].Report)
	assert.Equal(t, "run-1", runs[0].Report.RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

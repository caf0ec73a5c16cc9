package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/balidash/detective-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	latitude  REAL NOT NULL DEFAULT 0,
	longitude REAL NOT NULL DEFAULT 0,
	area      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS grab_stats (
	restaurant_id       TEXT NOT NULL REFERENCES restaurants(id),
	stat_date           TEXT NOT NULL,
	sales               REAL NOT NULL DEFAULT 0,
	orders              INTEGER NOT NULL DEFAULT 0,
	ads_spend           REAL NOT NULL DEFAULT 0,
	ads_sales           REAL NOT NULL DEFAULT 0,
	rating              REAL NOT NULL DEFAULT 0,
	cancelled_orders    INTEGER NOT NULL DEFAULT 0,
	offline_rate        REAL NOT NULL DEFAULT 0,
	driver_waiting_secs REAL NOT NULL DEFAULT 0,
	preparation_minutes REAL NOT NULL DEFAULT 0,
	delivery_minutes    REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (restaurant_id, stat_date)
);

CREATE TABLE IF NOT EXISTS gojek_stats (
	restaurant_id        TEXT NOT NULL REFERENCES restaurants(id),
	stat_date            TEXT NOT NULL,
	sales                REAL NOT NULL DEFAULT 0,
	orders               INTEGER NOT NULL DEFAULT 0,
	ads_spend            REAL NOT NULL DEFAULT 0,
	ads_sales            REAL NOT NULL DEFAULT 0,
	rating               REAL NOT NULL DEFAULT 0,
	cancelled_orders     INTEGER NOT NULL DEFAULT 0,
	lost_orders          INTEGER NOT NULL DEFAULT 0,
	close_minutes        REAL NOT NULL DEFAULT 0,
	driver_waiting_mins  REAL NOT NULL DEFAULT 0,
	preparation_minutes  REAL NOT NULL DEFAULT 0,
	delivery_minutes     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (restaurant_id, stat_date)
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	start_date    TEXT NOT NULL,
	end_date      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	report        TEXT,
	error         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_grab_stats_date ON grab_stats(stat_date);
CREATE INDEX IF NOT EXISTS idx_gojek_stats_date ON gojek_stats(stat_date);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_restaurant ON analysis_runs(restaurant_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const dateLayout = "2006-01-02"

func (s *SQLiteStore) GetRestaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, area FROM restaurants WHERE id = ?`, id)

	var r model.Restaurant
	if err := row.Scan(&r.ID, &r.Name, &r.Latitude, &r.Longitude, &r.Area); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get restaurant %s", id)
	}
	return &r, nil
}

func (s *SQLiteStore) UpsertRestaurant(ctx context.Context, r model.Restaurant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, latitude, longitude, area)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			area = excluded.area`,
		r.ID, r.Name, r.Latitude, r.Longitude, r.Area,
	)
	return eris.Wrapf(err, "sqlite: upsert restaurant %s", r.ID)
}

func (s *SQLiteStore) FetchPlatformRecords(ctx context.Context, restaurantID string, start, end time.Time) ([]model.DailyPlatformRecord, error) {
	var records []model.DailyPlatformRecord

	grabRows, err := s.db.QueryContext(ctx, `
		SELECT stat_date, sales, orders, ads_spend, ads_sales, rating,
		       cancelled_orders, offline_rate, driver_waiting_secs,
		       preparation_minutes, delivery_minutes
		FROM grab_stats
		WHERE restaurant_id = ? AND stat_date BETWEEN ? AND ?
		ORDER BY stat_date`,
		restaurantID, start.Format(dateLayout), end.Format(dateLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query grab_stats")
	}
	defer grabRows.Close()

	for grabRows.Next() {
		var dateStr string
		var r grabRow
		if err := grabRows.Scan(&dateStr, &r.Sales, &r.Orders, &r.AdsSpend, &r.AdsSales,
			&r.Rating, &r.Cancelled, &r.OfflineRate, &r.DriverWaitSecs,
			&r.PrepMinutes, &r.DeliveryMinutes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan grab row")
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse grab stat_date %q", dateStr)
		}
		records = append(records, r.Normalize(restaurantID, date))
	}
	if err := grabRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate grab rows")
	}

	gojekRows, err := s.db.QueryContext(ctx, `
		SELECT stat_date, sales, orders, ads_spend, ads_sales, rating,
		       cancelled_orders, lost_orders, close_minutes, driver_waiting_mins,
		       preparation_minutes, delivery_minutes
		FROM gojek_stats
		WHERE restaurant_id = ? AND stat_date BETWEEN ? AND ?
		ORDER BY stat_date`,
		restaurantID, start.Format(dateLayout), end.Format(dateLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query gojek_stats")
	}
	defer gojekRows.Close()

	for gojekRows.Next() {
		var dateStr string
		var r gojekRow
		if err := gojekRows.Scan(&dateStr, &r.Sales, &r.Orders, &r.AdsSpend, &r.AdsSales,
			&r.Rating, &r.Cancelled, &r.Lost, &r.ClosedMinutes, &r.DriverWaitMins,
			&r.PrepMinutes, &r.DeliveryMins); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gojek row")
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse gojek stat_date %q", dateStr)
		}
		records = append(records, r.Normalize(restaurantID, date))
	}
	if err := gojekRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate gojek rows")
	}

	return records, nil
}

func (s *SQLiteStore) UpsertPlatformRecords(ctx context.Context, records []model.DailyPlatformRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert tx")
	}
	defer tx.Rollback()

	for _, rec := range records {
		switch rec.Platform {
		case model.PlatformGrab:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO grab_stats (restaurant_id, stat_date, sales, orders, ads_spend,
					ads_sales, rating, cancelled_orders, offline_rate, driver_waiting_secs,
					preparation_minutes, delivery_minutes)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (restaurant_id, stat_date) DO UPDATE SET
					sales = excluded.sales, orders = excluded.orders,
					ads_spend = excluded.ads_spend, ads_sales = excluded.ads_sales,
					rating = excluded.rating, cancelled_orders = excluded.cancelled_orders,
					offline_rate = excluded.offline_rate,
					driver_waiting_secs = excluded.driver_waiting_secs,
					preparation_minutes = excluded.preparation_minutes,
					delivery_minutes = excluded.delivery_minutes`,
				rec.RestaurantID, rec.Date.Format(dateLayout), rec.Sales, rec.Orders,
				rec.AdsSpend, rec.AdsSales, rec.Rating, rec.Cancelled, rec.OfflineRatio,
				rec.DriverWaitMinutes*60, rec.PrepMinutes, rec.DeliveryMinutes,
			)
		case model.PlatformGojek:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO gojek_stats (restaurant_id, stat_date, sales, orders, ads_spend,
					ads_sales, rating, cancelled_orders, lost_orders, close_minutes,
					driver_waiting_mins, preparation_minutes, delivery_minutes)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
				ON CONFLICT (restaurant_id, stat_date) DO UPDATE SET
					sales = excluded.sales, orders = excluded.orders,
					ads_spend = excluded.ads_spend, ads_sales = excluded.ads_sales,
					rating = excluded.rating, cancelled_orders = excluded.cancelled_orders,
					close_minutes = excluded.close_minutes,
					driver_waiting_mins = excluded.driver_waiting_mins,
					preparation_minutes = excluded.preparation_minutes,
					delivery_minutes = excluded.delivery_minutes`,
				rec.RestaurantID, rec.Date.Format(dateLayout), rec.Sales, rec.Orders,
				rec.AdsSpend, rec.AdsSales, rec.Rating, rec.Cancelled,
				rec.OfflineRatio/100*gojekOpenMinutes,
				rec.DriverWaitMinutes, rec.PrepMinutes, rec.DeliveryMinutes,
			)
		default:
			err = eris.Errorf("sqlite: unknown platform %q", rec.Platform)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert %s record for %s",
				rec.Platform, rec.Date.Format(dateLayout))
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert tx")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, restaurantID string, start, end time.Time) (*model.AnalysisRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, restaurant_id, start_date, end_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, restaurantID, start.Format(dateLayout), end.Format(dateLayout), RunStatusRunning, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.AnalysisRun{
		ID:           id,
		RestaurantID: restaurantID,
		Start:        start,
		End:          end,
		Status:       RunStatusRunning,
		CreatedAt:    now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report *model.AnalysisReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_runs SET status = ?, report = ? WHERE id = ?`,
		RunStatusComplete, string(reportJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_runs SET status = ?, error = ? WHERE id = ?`,
		RunStatusFailed, cause, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AnalysisRun, error) {
	query := `SELECT id, restaurant_id, start_date, end_date, status, report, created_at
		FROM analysis_runs WHERE 1=1`
	var args []any

	if filter.RestaurantID != "" {
		query += ` AND restaurant_id = ?`
		args = append(args, filter.RestaurantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.AnalysisRun
	for rows.Next() {
		var run model.AnalysisRun
		var startStr, endStr string
		var reportJSON sql.NullString
		if err := rows.Scan(&run.ID, &run.RestaurantID, &startStr, &endStr,
			&run.Status, &reportJSON, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if run.Start, err = time.Parse(dateLayout, startStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse run start_date")
		}
		if run.End, err = time.Parse(dateLayout, endStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse run end_date")
		}
		if reportJSON.Valid && reportJSON.String != "" {
			var report model.AnalysisReport
			if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal report for run %s", run.ID)
			}
			run.Report = &report
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/balidash/detective-cli/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool through the same interface.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	latitude  DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	area      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS grab_stats (
	restaurant_id       TEXT NOT NULL REFERENCES restaurants(id),
	stat_date           DATE NOT NULL,
	sales               DOUBLE PRECISION NOT NULL DEFAULT 0,
	orders              INTEGER NOT NULL DEFAULT 0,
	ads_spend           DOUBLE PRECISION NOT NULL DEFAULT 0,
	ads_sales           DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating              DOUBLE PRECISION NOT NULL DEFAULT 0,
	cancelled_orders    INTEGER NOT NULL DEFAULT 0,
	offline_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	driver_waiting_secs DOUBLE PRECISION NOT NULL DEFAULT 0,
	preparation_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
	delivery_minutes    DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (restaurant_id, stat_date)
);

CREATE TABLE IF NOT EXISTS gojek_stats (
	restaurant_id        TEXT NOT NULL REFERENCES restaurants(id),
	stat_date            DATE NOT NULL,
	sales                DOUBLE PRECISION NOT NULL DEFAULT 0,
	orders               INTEGER NOT NULL DEFAULT 0,
	ads_spend            DOUBLE PRECISION NOT NULL DEFAULT 0,
	ads_sales            DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating               DOUBLE PRECISION NOT NULL DEFAULT 0,
	cancelled_orders     INTEGER NOT NULL DEFAULT 0,
	lost_orders          INTEGER NOT NULL DEFAULT 0,
	close_minutes        DOUBLE PRECISION NOT NULL DEFAULT 0,
	driver_waiting_mins  DOUBLE PRECISION NOT NULL DEFAULT 0,
	preparation_minutes  DOUBLE PRECISION NOT NULL DEFAULT 0,
	delivery_minutes     DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (restaurant_id, stat_date)
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id            TEXT PRIMARY KEY,
	restaurant_id TEXT NOT NULL,
	start_date    DATE NOT NULL,
	end_date      DATE NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	report        JSONB,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_grab_stats_date ON grab_stats(stat_date);
CREATE INDEX IF NOT EXISTS idx_gojek_stats_date ON gojek_stats(stat_date);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_restaurant ON analysis_runs(restaurant_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetRestaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, latitude, longitude, area FROM restaurants WHERE id = $1`, id)

	var r model.Restaurant
	if err := row.Scan(&r.ID, &r.Name, &r.Latitude, &r.Longitude, &r.Area); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get restaurant %s", id)
	}
	return &r, nil
}

func (s *PostgresStore) UpsertRestaurant(ctx context.Context, r model.Restaurant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO restaurants (id, name, latitude, longitude, area)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			area = EXCLUDED.area`,
		r.ID, r.Name, r.Latitude, r.Longitude, r.Area,
	)
	return eris.Wrapf(err, "postgres: upsert restaurant %s", r.ID)
}

func (s *PostgresStore) FetchPlatformRecords(ctx context.Context, restaurantID string, start, end time.Time) ([]model.DailyPlatformRecord, error) {
	var records []model.DailyPlatformRecord

	grabRows, err := s.pool.Query(ctx, `
		SELECT stat_date, sales, orders, ads_spend, ads_sales, rating,
		       cancelled_orders, offline_rate, driver_waiting_secs,
		       preparation_minutes, delivery_minutes
		FROM grab_stats
		WHERE restaurant_id = $1 AND stat_date BETWEEN $2 AND $3
		ORDER BY stat_date`,
		restaurantID, start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query grab_stats")
	}
	defer grabRows.Close()

	for grabRows.Next() {
		var date time.Time
		var r grabRow
		if err := grabRows.Scan(&date, &r.Sales, &r.Orders, &r.AdsSpend, &r.AdsSales,
			&r.Rating, &r.Cancelled, &r.OfflineRate, &r.DriverWaitSecs,
			&r.PrepMinutes, &r.DeliveryMinutes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan grab row")
		}
		records = append(records, r.Normalize(restaurantID, date))
	}
	if err := grabRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate grab rows")
	}

	gojekRows, err := s.pool.Query(ctx, `
		SELECT stat_date, sales, orders, ads_spend, ads_sales, rating,
		       cancelled_orders, lost_orders, close_minutes, driver_waiting_mins,
		       preparation_minutes, delivery_minutes
		FROM gojek_stats
		WHERE restaurant_id = $1 AND stat_date BETWEEN $2 AND $3
		ORDER BY stat_date`,
		restaurantID, start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query gojek_stats")
	}
	defer gojekRows.Close()

	for gojekRows.Next() {
		var date time.Time
		var r gojekRow
		if err := gojekRows.Scan(&date, &r.Sales, &r.Orders, &r.AdsSpend, &r.AdsSales,
			&r.Rating, &r.Cancelled, &r.Lost, &r.ClosedMinutes, &r.DriverWaitMins,
			&r.PrepMinutes, &r.DeliveryMins); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gojek row")
		}
		records = append(records, r.Normalize(restaurantID, date))
	}
	if err := gojekRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate gojek rows")
	}

	return records, nil
}

func (s *PostgresStore) UpsertPlatformRecords(ctx context.Context, records []model.DailyPlatformRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert tx")
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		switch rec.Platform {
		case model.PlatformGrab:
			_, err = tx.Exec(ctx, `
				INSERT INTO grab_stats (restaurant_id, stat_date, sales, orders, ads_spend,
					ads_sales, rating, cancelled_orders, offline_rate, driver_waiting_secs,
					preparation_minutes, delivery_minutes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				ON CONFLICT (restaurant_id, stat_date) DO UPDATE SET
					sales = EXCLUDED.sales, orders = EXCLUDED.orders,
					ads_spend = EXCLUDED.ads_spend, ads_sales = EXCLUDED.ads_sales,
					rating = EXCLUDED.rating, cancelled_orders = EXCLUDED.cancelled_orders,
					offline_rate = EXCLUDED.offline_rate,
					driver_waiting_secs = EXCLUDED.driver_waiting_secs,
					preparation_minutes = EXCLUDED.preparation_minutes,
					delivery_minutes = EXCLUDED.delivery_minutes`,
				rec.RestaurantID, rec.Date, rec.Sales, rec.Orders,
				rec.AdsSpend, rec.AdsSales, rec.Rating, rec.Cancelled, rec.OfflineRatio,
				rec.DriverWaitMinutes*60, rec.PrepMinutes, rec.DeliveryMinutes,
			)
		case model.PlatformGojek:
			_, err = tx.Exec(ctx, `
				INSERT INTO gojek_stats (restaurant_id, stat_date, sales, orders, ads_spend,
					ads_sales, rating, cancelled_orders, lost_orders, close_minutes,
					driver_waiting_mins, preparation_minutes, delivery_minutes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12)
				ON CONFLICT (restaurant_id, stat_date) DO UPDATE SET
					sales = EXCLUDED.sales, orders = EXCLUDED.orders,
					ads_spend = EXCLUDED.ads_spend, ads_sales = EXCLUDED.ads_sales,
					rating = EXCLUDED.rating, cancelled_orders = EXCLUDED.cancelled_orders,
					close_minutes = EXCLUDED.close_minutes,
					driver_waiting_mins = EXCLUDED.driver_waiting_mins,
					preparation_minutes = EXCLUDED.preparation_minutes,
					delivery_minutes = EXCLUDED.delivery_minutes`,
				rec.RestaurantID, rec.Date, rec.Sales, rec.Orders,
				rec.AdsSpend, rec.AdsSales, rec.Rating, rec.Cancelled,
				rec.OfflineRatio/100*gojekOpenMinutes,
				rec.DriverWaitMinutes, rec.PrepMinutes, rec.DeliveryMinutes,
			)
		default:
			err = eris.Errorf("postgres: unknown platform %q", rec.Platform)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert %s record for %s",
				rec.Platform, rec.Date.Format(dateLayout))
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert tx")
}

func (s *PostgresStore) CreateRun(ctx context.Context, restaurantID string, start, end time.Time) (*model.AnalysisRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_runs (id, restaurant_id, start_date, end_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, restaurantID, start, end, RunStatusRunning, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report *model.AnalysisReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_runs SET status = $1, report = $2 WHERE id = $3`,
		RunStatusComplete, reportJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_runs SET status = $1, error = $2 WHERE id = $3`,
		RunStatusFailed, cause, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.AnalysisRun, error) {
	query := `SELECT id, restaurant_id, start_date, end_date, status, report, created_at
		FROM analysis_runs WHERE 1=1`
	var args []any

	if filter.RestaurantID != "" {
		args = append(args, filter.RestaurantID)
		query += ` AND restaurant_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.AnalysisRun
	for rows.Next() {
		var run model.AnalysisRun
		var reportJSON []byte
		if err := rows.Scan(&run.ID, &run.RestaurantID, &run.Start, &run.End,
			&run.Status, &reportJSON, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(reportJSON) > 0 {
			var report model.AnalysisReport
			if err := json.Unmarshal(reportJSON, &report); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal report for run %s", run.ID)
			}
			run.Report = &report
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

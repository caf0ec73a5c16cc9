package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/balidash/detective-cli/internal/model"
)

// ErrNotFound is returned when a restaurant or run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing analysis runs.
type RunFilter struct {
	RestaurantID string `json:"restaurant_id,omitempty"`
	Status       string `json:"status,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the anomaly engine. Platform
// rows are normalized into model.DailyPlatformRecord at this boundary; no
// platform-specific column shapes leak downstream.
type Store interface {
	// Restaurants
	GetRestaurant(ctx context.Context, id string) (*model.Restaurant, error)
	UpsertRestaurant(ctx context.Context, r model.Restaurant) error

	// Platform records
	FetchPlatformRecords(ctx context.Context, restaurantID string, start, end time.Time) ([]model.DailyPlatformRecord, error)
	UpsertPlatformRecords(ctx context.Context, records []model.DailyPlatformRecord) error

	// Run history
	CreateRun(ctx context.Context, restaurantID string, start, end time.Time) (*model.AnalysisRun, error)
	CompleteRun(ctx context.Context, runID string, report *model.AnalysisReport) error
	FailRun(ctx context.Context, runID string, cause string) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.AnalysisRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

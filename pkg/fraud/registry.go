// Package fraud loads the fraud order registry published as a CSV sheet and
// indexes adjustments by restaurant, date, and platform. Fraud amounts are
// subtracted from daily sales before any baseline, training, or attribution
// sees the numbers.
package fraud

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/model"
	"github.com/balidash/detective-cli/internal/resilience"
)

const dateLayout = "2006-01-02"

// Registry is an in-memory index of confirmed fraud adjustments.
type Registry struct {
	entries map[key]model.FraudAdjustment
}

type key struct {
	restaurantID string
	date         string
	platform     model.Platform
}

// Empty returns a registry with no adjustments. Every lookup yields zero.
func Empty() *Registry {
	return &Registry{entries: map[key]model.FraudAdjustment{}}
}

// Lookup returns the adjustment for one (restaurant, date, platform) cell.
// The zero adjustment means no confirmed fraud.
func (r *Registry) Lookup(restaurantID string, date time.Time, platform model.Platform) model.FraudAdjustment {
	return r.entries[key{restaurantID, date.Format(dateLayout), platform}]
}

// DayTotal sums adjustments across all platforms for one date.
func (r *Registry) DayTotal(restaurantID string, date time.Time) model.FraudAdjustment {
	var total model.FraudAdjustment
	for _, p := range model.Platforms() {
		adj := r.Lookup(restaurantID, date, p)
		total.Orders += adj.Orders
		total.Amount += adj.Amount
	}
	return total
}

// Len reports the number of indexed adjustments.
func (r *Registry) Len() int { return len(r.entries) }

// Parse reads the registry CSV. Expected columns:
// restaurant_id,date,platform,orders,amount. Rows with an unknown platform
// or malformed date are skipped with a warning rather than failing the load.
func Parse(reader io.Reader) (*Registry, error) {
	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "fraud: read csv header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"restaurant_id", "date", "platform", "orders", "amount"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("fraud: csv missing column %q", required)
		}
	}

	reg := Empty()
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "fraud: read csv row")
		}

		platform := model.Platform(strings.ToLower(strings.TrimSpace(row[col["platform"]])))
		if platform != model.PlatformGrab && platform != model.PlatformGojek {
			zap.L().Warn("fraud: skipping row with unknown platform",
				zap.String("platform", string(platform)))
			continue
		}
		dateStr := strings.TrimSpace(row[col["date"]])
		if _, err := time.Parse(dateLayout, dateStr); err != nil {
			zap.L().Warn("fraud: skipping row with malformed date",
				zap.String("date", dateStr))
			continue
		}
		orders, err := strconv.Atoi(strings.TrimSpace(row[col["orders"]]))
		if err != nil {
			zap.L().Warn("fraud: skipping row with malformed orders",
				zap.String("orders", row[col["orders"]]))
			continue
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(row[col["amount"]]), 64)
		if err != nil {
			zap.L().Warn("fraud: skipping row with malformed amount",
				zap.String("amount", row[col["amount"]]))
			continue
		}

		k := key{strings.TrimSpace(row[col["restaurant_id"]]), dateStr, platform}
		adj := reg.entries[k]
		adj.Orders += orders
		adj.Amount += amount
		reg.entries[k] = adj
	}
	return reg, nil
}

// Fetch downloads and parses the published registry sheet. An empty URL
// yields an empty registry so the engine runs without a configured sheet.
func Fetch(ctx context.Context, httpClient *http.Client, sheetURL string) (*Registry, error) {
	if sheetURL == "" {
		return Empty(), nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	var body []byte
	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sheetURL, nil)
		if err != nil {
			return eris.Wrap(err, "fraud: build request")
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "fraud: request")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("fraud: unexpected status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return eris.Wrap(err, "fraud: read response")
	})
	if err != nil {
		return nil, err
	}

	return Parse(strings.NewReader(string(body)))
}

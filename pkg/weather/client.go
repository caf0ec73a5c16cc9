// Package weather fetches historical daily weather from the Open-Meteo
// archive API. Weather is contextual input for the anomaly engine: a failed
// fetch degrades the report, it never fails the run.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/balidash/detective-cli/internal/model"
	"github.com/balidash/detective-cli/internal/resilience"
)

const dateLayout = "2006-01-02"

// Options configures the weather client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
}

// Client queries the Open-Meteo archive endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retryCfg   resilience.RetryConfig
}

// NewClient creates a weather client with rate limiting and retry.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://archive-api.open-meteo.com/v1/archive"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		retryCfg:   resilience.DefaultRetryConfig(),
	}
}

// archiveResponse mirrors the daily block of the Open-Meteo archive payload.
type archiveResponse struct {
	Daily struct {
		Time          []string  `json:"time"`
		Precipitation []float64 `json:"precipitation_sum"`
		Temperature   []float64 `json:"temperature_2m_mean"`
		WindMax       []float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

// FetchRange returns observed daily weather for [start, end] at the given
// coordinates, keyed by date. Days the archive has no data for are absent
// from the map.
func (c *Client) FetchRange(ctx context.Context, lat, lon float64, start, end time.Time) (map[string]model.Weather, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "weather: rate limit wait")
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("start_date", start.Format(dateLayout))
	params.Set("end_date", end.Format(dateLayout))
	params.Set("daily", "precipitation_sum,temperature_2m_mean,wind_speed_10m_max")
	params.Set("timezone", "Asia/Jakarta")
	reqURL := c.baseURL + "?" + params.Encode()

	var body []byte
	err := resilience.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return eris.Wrap(err, "weather: build request")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "weather: request")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("weather: unexpected status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		return eris.Wrap(err, "weather: read response")
	})
	if err != nil {
		return nil, err
	}

	var parsed archiveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "weather: decode response")
	}

	out := make(map[string]model.Weather, len(parsed.Daily.Time))
	for i, day := range parsed.Daily.Time {
		w := model.Weather{}
		if i < len(parsed.Daily.Precipitation) {
			w.PrecipMM = parsed.Daily.Precipitation[i]
		}
		if i < len(parsed.Daily.Temperature) {
			w.TempC = parsed.Daily.Temperature[i]
		}
		if i < len(parsed.Daily.WindMax) {
			w.WindKPH = parsed.Daily.WindMax[i]
		}
		out[day] = w
	}

	zap.L().Debug("weather: fetched range",
		zap.String("start", start.Format(dateLayout)),
		zap.String("end", end.Format(dateLayout)),
		zap.Int("days", len(out)),
	)
	return out, nil
}

// Package holiday resolves calendar dates to public holidays using the
// Nager.Date API, with a compiled-in Indonesian fallback calendar for
// offline or degraded operation.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/model"
	"github.com/balidash/detective-cli/internal/resilience"
)

const dateLayout = "2006-01-02"

// Options configures the holiday client.
type Options struct {
	BaseURL     string
	CountryCode string
	Timeout     time.Duration
}

// Client fetches public holiday calendars by year.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	countryCode string
	retryCfg    resilience.RetryConfig
}

// NewClient creates a holiday client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://date.nager.at/api/v3"
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "ID"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     opts.BaseURL,
		countryCode: opts.CountryCode,
		retryCfg:    resilience.DefaultRetryConfig(),
	}
}

type apiHoliday struct {
	Date      string   `json:"date"`
	LocalName string   `json:"localName"`
	Name      string   `json:"name"`
	Types     []string `json:"types"`
}

// FetchRange returns holidays falling inside [start, end], keyed by date.
// When the API is unreachable the compiled-in fallback calendar is used, so
// a network outage never strips holiday context from a report.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) (map[string]model.Holiday, error) {
	out := make(map[string]model.Holiday)
	for year := start.Year(); year <= end.Year(); year++ {
		yearly, err := c.fetchYear(ctx, year)
		if err != nil {
			zap.L().Warn("holiday: api fetch failed, using fallback calendar",
				zap.Int("year", year), zap.Error(err))
			yearly = fallbackCalendar(year)
		}
		for dateStr, h := range yearly {
			d, err := time.Parse(dateLayout, dateStr)
			if err != nil {
				continue
			}
			if d.Before(start) || d.After(end) {
				continue
			}
			out[dateStr] = h
		}
	}
	return out, nil
}

func (c *Client) fetchYear(ctx context.Context, year int) (map[string]model.Holiday, error) {
	reqURL := fmt.Sprintf("%s/PublicHolidays/%d/%s", c.baseURL, year, c.countryCode)

	var body []byte
	err := resilience.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return eris.Wrap(err, "holiday: build request")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "holiday: request")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("holiday: unexpected status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		return eris.Wrap(err, "holiday: read response")
	})
	if err != nil {
		return nil, err
	}

	var parsed []apiHoliday
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "holiday: decode response")
	}

	out := make(map[string]model.Holiday, len(parsed))
	for _, h := range parsed {
		name := h.LocalName
		if name == "" {
			name = h.Name
		}
		out[h.Date] = model.Holiday{Name: name, Category: classify(name)}
	}
	return out, nil
}

// religiousMarkers are substrings that identify religious observances in
// Indonesian holiday names.
var religiousMarkers = []string{
	"nyepi", "idul", "eid", "natal", "christmas", "waisak", "vesak",
	"isra", "mi'raj", "maulid", "ascension", "kenaikan", "easter",
	"paskah", "galungan", "kuningan", "saraswati", "imlek",
}

func classify(name string) string {
	lower := strings.ToLower(name)
	for _, m := range religiousMarkers {
		if strings.Contains(lower, m) {
			return "religious"
		}
	}
	return "national"
}

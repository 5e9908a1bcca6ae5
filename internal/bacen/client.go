// internal/bacen/client.go
package bacen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"debt-tracker/internal/domain"
)

// SGS series codes at the Banco Central do Brasil time-series service.
const (
	SeriesSelic = 432  // SELIC target, % p.a.
	SeriesCDI   = 4389 // CDI annualized, % p.a.
)

// The service skips non-business days, so ask for a window wide enough to
// always contain an observation.
const lookbackDays = 90

// Client queries the BACEN SGS API. Every call re-fetches; there is no cache
// and no retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		now:        time.Now,
	}
}

// observation is one SGS data point. Values use a comma as decimal separator.
type observation struct {
	Date  string `json:"data"`
	Value string `json:"valor"`
}

// CurrentRates fetches the most recent SELIC and CDI observations. A series
// that cannot be fetched or parsed comes back nil; the call itself never
// fails.
func (c *Client) CurrentRates(ctx context.Context) domain.RateQuote {
	return domain.RateQuote{
		Selic:     c.fetchSeries(ctx, SeriesSelic, "SELIC"),
		CDI:       c.fetchSeries(ctx, SeriesCDI, "CDI"),
		FetchedAt: c.now(),
	}
}

func (c *Client) fetchSeries(ctx context.Context, code int, name string) *float64 {
	value, err := c.latestObservation(ctx, code)
	if err != nil {
		slog.Error("BACEN series fetch failed", "series", name, "code", code, "error", err)
		return nil
	}
	slog.Info("BACEN series fetched", "series", name, "rate", *value)
	return value
}

func (c *Client) latestObservation(ctx context.Context, code int) (*float64, error) {
	end := c.now()
	start := end.AddDate(0, 0, -lookbackDays)

	params := url.Values{}
	params.Set("formato", "json")
	params.Set("dataInicial", start.Format("02/01/2006"))
	params.Set("dataFinal", end.Format("02/01/2006"))

	endpoint := fmt.Sprintf("%s.%d/dados?%s", c.baseURL, code, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request series %d: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("series %d: unexpected status %d", code, resp.StatusCode)
	}

	var observations []observation
	if err := json.NewDecoder(resp.Body).Decode(&observations); err != nil {
		return nil, fmt.Errorf("decode series %d: %w", code, err)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("series %d: empty response", code)
	}

	last := observations[len(observations)-1]
	value, err := strconv.ParseFloat(strings.ReplaceAll(last.Value, ",", "."), 64)
	if err != nil {
		return nil, fmt.Errorf("parse value %q: %w", last.Value, err)
	}
	return &value, nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sparks1372/octopus-consumption-exporter/internal/config"
	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

var (
	ErrUpstreamRequest = errors.New("error making upstream request")
	ErrUpstreamStatus  = errors.New("error status from upstream api")
	ErrPagination      = errors.New("invalid pagination from upstream api")
	ErrUpstreamBody    = errors.New("malformed response body from upstream api")
)

// ConsumptionFetcher walks the paginated consumption listing of a meter.
type ConsumptionFetcher struct {
	client   *http.Client
	apiKey   string
	pageSize int
	limiter  *rate.Limiter
	logger   *logrus.Logger
}

func NewConsumptionFetcher(cfg config.APIConfig, logger *logrus.Logger) *ConsumptionFetcher {
	return &ConsumptionFetcher{
		client:   NewHTTPClient(cfg.Timeout),
		apiKey:   cfg.Key,
		pageSize: cfg.PageSize,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:   logger,
	}
}

// ElectricityEndpoint returns the consumption endpoint of an electricity meter.
// Export meters use the same endpoint with their own MPAN.
func ElectricityEndpoint(baseURL, mpan, serial string) string {
	return fmt.Sprintf("%s/electricity-meter-points/%s/meters/%s/consumption/",
		strings.TrimRight(baseURL, "/"), url.PathEscape(mpan), url.PathEscape(serial))
}

// GasEndpoint returns the consumption endpoint of a gas meter.
func GasEndpoint(baseURL, mprn, serial string) string {
	return fmt.Sprintf("%s/gas-meter-points/%s/meters/%s/consumption/",
		strings.TrimRight(baseURL, "/"), url.PathEscape(mprn), url.PathEscape(serial))
}

// Fetch returns every record in the window, following next links until the
// last page. Records are returned in the order the pages were received, which
// is not necessarily chronological.
func (f *ConsumptionFetcher) Fetch(ctx context.Context, endpoint string, window models.SyncWindow) ([]models.ConsumptionRecord, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint %q: %v", ErrUpstreamRequest, endpoint, err)
	}

	var records []models.ConsumptionRecord
	// page 1 is the unnumbered first request
	seen := map[string]bool{"1": true}
	page := ""

	for {
		resp, err := f.fetchPage(ctx, base, window, page)
		if err != nil {
			return nil, err
		}
		records = append(records, resp.Results...)

		f.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"page":     page,
			"results":  len(resp.Results),
		}).Debug("Fetched consumption page")

		if resp.Next == nil || *resp.Next == "" {
			return records, nil
		}

		next, err := nextPage(*resp.Next)
		if err != nil {
			return nil, err
		}
		if seen[next] {
			return nil, fmt.Errorf("%w: page %s requested twice", ErrPagination, next)
		}
		seen[next] = true
		page = next
	}
}

func (f *ConsumptionFetcher) fetchPage(ctx context.Context, base *url.URL, window models.SyncWindow, page string) (*models.ConsumptionPage, error) {
	q := base.Query()
	q.Set("period_from", window.From.Format(time.RFC3339))
	q.Set("period_to", window.To.Format(time.RFC3339))
	if f.pageSize > 0 {
		q.Set("page_size", strconv.Itoa(f.pageSize))
	}
	if page != "" {
		q.Set("page", page)
	}
	u := *base
	u.RawQuery = q.Encode()

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRequest, err)
	}
	req.SetBasicAuth(f.apiKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: got %d: %s", ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var consumptionPage models.ConsumptionPage
	if err := json.NewDecoder(resp.Body).Decode(&consumptionPage); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUpstreamBody, err)
	}

	return &consumptionPage, nil
}

// nextPage extracts the page number from a next link.
func nextPage(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: cannot parse next link %q: %v", ErrPagination, next, err)
	}
	page := u.Query().Get("page")
	if page == "" {
		return "", fmt.Errorf("%w: next link %q has no page parameter", ErrPagination, next)
	}
	return page, nil
}

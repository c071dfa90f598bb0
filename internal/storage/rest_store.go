package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

const (
	restPathPrefix   = "/rest/v1"
	restErrorBodyMax = 512
)

var (
	// ErrUnexpectedStatus is returned when the REST API answers with an unexpected status code.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	_ ingestion.Store = (*RESTStore)(nil)
)

type (
	// RESTStore implements ingestion.Store against a PostgREST-compatible API,
	// such as a hosted Supabase project carrying the migrations schema.
	//
	// The API offers no atomic insert-if-absent for a batch, so each observation
	// is looked up by (catalog_number, epoch) and posted only when absent. Two
	// writers can both miss the lookup; the table's unique constraint then
	// rejects the second POST with 409 and SQLSTATE 23505, which is counted as
	// skipped. The store does not implement ingestion.AtomicInserter, so the
	// pipeline never flushes to it concurrently.
	RESTStore struct {
		baseURL string
		key     string
		client  *http.Client
		limiter *rate.Limiter
		logger  *slog.Logger
	}

	// RESTStoreOption configures optional RESTStore behavior.
	RESTStoreOption func(*RESTStore)

	restSatellite struct {
		CatalogNumber           int       `json:"catalog_number"` //nolint: tagliatelle
		Name                    string    `json:"name"`
		InternationalDesignator string    `json:"international_designator"` //nolint: tagliatelle
		IsActive                bool      `json:"is_active"`                //nolint: tagliatelle
		UpdatedAt               time.Time `json:"updated_at"`               //nolint: tagliatelle
	}

	restObservation struct {
		CatalogNumber     int       `json:"catalog_number"` //nolint: tagliatelle
		Epoch             time.Time `json:"epoch"`
		Line1             string    `json:"line1"`
		Line2             string    `json:"line2"`
		Inclination       float64   `json:"inclination"`
		RAAN              float64   `json:"raan"`
		Eccentricity      float64   `json:"eccentricity"`
		ArgumentOfPerigee float64   `json:"argument_of_perigee"` //nolint: tagliatelle
		MeanAnomaly       float64   `json:"mean_anomaly"`        //nolint: tagliatelle
		MeanMotion        float64   `json:"mean_motion"`         //nolint: tagliatelle
		RevolutionNumber  int       `json:"revolution_number"`   //nolint: tagliatelle
		BStar             float64   `json:"bstar"`
		MeanMotionDot     float64   `json:"mean_motion_dot"` //nolint: tagliatelle
		Source            string    `json:"source"`
	}

	restStats struct {
		TotalSatellites   int64      `json:"total_satellites"`   //nolint: tagliatelle
		ActiveSatellites  int64      `json:"active_satellites"`  //nolint: tagliatelle
		TotalObservations int64      `json:"total_observations"` //nolint: tagliatelle
		LatestEpoch       *time.Time `json:"latest_epoch"`       //nolint: tagliatelle
	}
)

// WithRESTLogger sets the store logger.
func WithRESTLogger(l *slog.Logger) RESTStoreOption {
	return func(s *RESTStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) RESTStoreOption {
	return func(s *RESTStore) {
		if c != nil {
			s.client = c
		}
	}
}

// NewRESTStore creates a store for the API at cfg.RESTURL.
func NewRESTStore(cfg *Config, opts ...RESTStoreOption) (*RESTStore, error) {
	if strings.TrimSpace(cfg.RESTURL) == "" {
		return nil, ErrRESTURLEmpty
	}

	if strings.TrimSpace(cfg.restKey) == "" {
		return nil, ErrRESTKeyEmpty
	}

	limit := rate.Inf
	if cfg.RESTRequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RESTRequestsPerSecond)
	}

	s := &RESTStore{
		baseURL: strings.TrimRight(cfg.RESTURL, "/"),
		key:     cfg.restKey,
		client:  &http.Client{Timeout: cfg.RESTTimeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// UpsertSatellites implements ingestion.Store with a single merge-duplicates POST.
func (s *RESTStore) UpsertSatellites(ctx context.Context, records []*ingestion.SatelliteRecord) (int, error) {
	records = ingestion.DedupeSatellites(records)
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([]restSatellite, 0, len(records))
	for _, r := range records {
		rows = append(rows, restSatellite{
			CatalogNumber:           r.CatalogNumber,
			Name:                    r.Name,
			InternationalDesignator: r.InternationalDesignator,
			IsActive:                r.IsActive,
			UpdatedAt:               r.UpdatedAt.UTC(),
		})
	}

	query := url.Values{"on_conflict": {"catalog_number"}}

	resp, err := s.do(ctx, http.MethodPost, "/satellites", query, rows,
		"resolution=merge-duplicates,return=minimal")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpsertFailed, err)
	}

	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		return 0, fmt.Errorf("%w: %w", ErrUpsertFailed, statusError(resp))
	}

	return len(records), nil
}

// InsertObservations implements ingestion.Store with a lookup followed by a conditional POST.
//
// Per-row HTTP failures are absorbed into InsertResult.Failed. Only context
// cancellation aborts the call.
func (s *RESTStore) InsertObservations(
	ctx context.Context,
	observations []*ingestion.Observation,
) (*ingestion.InsertResult, error) {
	result := &ingestion.InsertResult{}

	for _, o := range observations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInsertFailed, err)
		}

		inserted, err := s.insertIfAbsent(ctx, o)

		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %w", ErrInsertFailed, ctx.Err())
		case err != nil:
			result.Failed++
			s.logger.Warn("observation insert failed",
				slog.Int("catalog_number", o.CatalogNumber),
				slog.Time("epoch", o.Epoch),
				slog.Any("error", err))
		case inserted:
			result.Inserted++
			result.New = append(result.New, o)
		default:
			result.Skipped++
		}
	}

	return result, nil
}

func (s *RESTStore) insertIfAbsent(ctx context.Context, o *ingestion.Observation) (bool, error) {
	exists, err := s.observationExists(ctx, o)
	if err != nil {
		return false, err
	}

	if exists {
		return false, nil
	}

	resp, err := s.do(ctx, http.MethodPost, "/observations", nil, toRESTObservation(o), "return=minimal")
	if err != nil {
		return false, err
	}

	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusConflict && isUniqueViolation(resp):
		return false, nil
	case !isSuccess(resp.StatusCode):
		return false, statusError(resp)
	default:
		return true, nil
	}
}

func (s *RESTStore) observationExists(ctx context.Context, o *ingestion.Observation) (bool, error) {
	query := url.Values{
		"select":         {"id"},
		"catalog_number": {"eq." + strconv.Itoa(o.CatalogNumber)},
		"epoch":          {"eq." + o.Epoch.UTC().Format(time.RFC3339Nano)},
		"limit":          {"1"},
	}

	resp, err := s.do(ctx, http.MethodGet, "/observations", query, nil, "")
	if err != nil {
		return false, err
	}

	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		return false, statusError(resp)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return false, fmt.Errorf("decode lookup response: %w", err)
	}

	return len(rows) > 0, nil
}

// GetStats implements ingestion.Store via the get_tle_stats RPC.
func (s *RESTStore) GetStats(ctx context.Context) (*ingestion.StoreStats, error) {
	resp, err := s.do(ctx, http.MethodPost, "/rpc/get_tle_stats", nil, struct{}{}, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatsFailed, err)
	}

	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: %w", ErrStatsFailed, statusError(resp))
	}

	var rows []restStats
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrStatsFailed, err)
	}

	if len(rows) == 0 {
		return &ingestion.StoreStats{}, nil
	}

	r := rows[0]
	stats := &ingestion.StoreStats{
		TotalSatellites:   r.TotalSatellites,
		ActiveSatellites:  r.ActiveSatellites,
		TotalObservations: r.TotalObservations,
	}

	if r.LatestEpoch != nil {
		t := r.LatestEpoch.UTC()
		stats.LatestEpoch = &t
	}

	return stats, nil
}

// HealthCheck implements ingestion.Store with a one-row read of the satellites table.
func (s *RESTStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	query := url.Values{"select": {"catalog_number"}, "limit": {"1"}}

	resp, err := s.do(ctx, http.MethodGet, "/satellites", query, nil, "")
	if err != nil {
		return fmt.Errorf("rest health check failed: %w", err)
	}

	defer closeBody(resp)

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("rest health check failed: %w", statusError(resp))
	}

	return nil
}

// Close releases idle HTTP connections.
func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()

	return nil
}

func (s *RESTStore) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	body any,
	prefer string,
) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := s.baseURL + restPathPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return resp, nil
}

func toRESTObservation(o *ingestion.Observation) restObservation {
	return restObservation{
		CatalogNumber:     o.CatalogNumber,
		Epoch:             o.Epoch.UTC(),
		Line1:             o.Line1,
		Line2:             o.Line2,
		Inclination:       o.Inclination,
		RAAN:              o.RAAN,
		Eccentricity:      o.Eccentricity,
		ArgumentOfPerigee: o.ArgumentOfPerigee,
		MeanAnomaly:       o.MeanAnomaly,
		MeanMotion:        o.MeanMotion,
		RevolutionNumber:  o.RevolutionNumber,
		BStar:             o.BStar,
		MeanMotionDot:     o.MeanMotionDot,
		Source:            o.Source,
	}
}

// isUniqueViolation reports whether a 409 body carries SQLSTATE 23505. The API
// also answers 409 for foreign key violations, which are real failures.
func isUniqueViolation(resp *http.Response) bool {
	var body struct {
		Code string `json:"code"`
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, restErrorBodyMax))
	closeBody(resp)

	resp.Body = io.NopCloser(bytes.NewReader(data))

	if err != nil {
		return false
	}

	if err := json.Unmarshal(data, &body); err != nil {
		return false
	}

	return body.Code == pgUniqueViolation
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, restErrorBodyMax))

	return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

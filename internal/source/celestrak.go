package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const errorBodyMax = 512

type (
	// CelestrakSource pulls one catalog group over plain HTTP.
	CelestrakSource struct {
		group   string
		url     string
		client  *http.Client
		limiter *rate.Limiter
		logger  *slog.Logger
	}

	// CelestrakOption configures optional CelestrakSource behavior.
	CelestrakOption func(*CelestrakSource)
)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) CelestrakOption {
	return func(s *CelestrakSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLimiter shares a request limiter between sources so that consecutive
// group pulls are spaced out.
func WithLimiter(l *rate.Limiter) CelestrakOption {
	return func(s *CelestrakSource) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithLogger sets the source logger.
func WithLogger(l *slog.Logger) CelestrakOption {
	return func(s *CelestrakSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLimiter returns a limiter allowing rps requests per second with a burst of one.
// A non-positive rps disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Limit(rps), 1)
}

// NewCelestrakSource returns a source for group at url.
func NewCelestrakSource(group, url string, cfg *Config, opts ...CelestrakOption) *CelestrakSource {
	s := &CelestrakSource{
		group:   group,
		url:     url,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		limiter: NewLimiter(cfg.CelestrakRPS),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name implements Source. Observations are labelled with the group name.
func (s *CelestrakSource) Name() string {
	return s.group
}

// Fetch implements Source.
func (s *CelestrakSource) Fetch(ctx context.Context) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.group, err)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.group, err)
	}

	req.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.group, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyMax))

		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrFetch, s.group, resp.StatusCode, body)
	}

	lines, err := ReadLines(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.group, err)
	}

	s.logger.Info("catalog fetched",
		slog.String("group", s.group),
		slog.Int("lines", len(lines)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return lines, nil
}

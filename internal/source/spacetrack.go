package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// SpaceTrackName labels observations pulled from Space-Track.
const SpaceTrackName = "spacetrack"

// SpaceTrackSource pulls the 3LE catalog from Space-Track through a
// cookie-authenticated session. The session is established on first Fetch.
type SpaceTrackSource struct {
	cfg    *Config
	client *http.Client
	logger *slog.Logger

	mu            sync.Mutex
	authenticated bool
}

// NewSpaceTrackSource returns a Space-Track source. Credentials are checked on Fetch.
func NewSpaceTrackSource(cfg *Config, logger *slog.Logger) (*SpaceTrackSource, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SpaceTrackSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout, Jar: jar},
		logger: logger,
	}, nil
}

// Name implements Source.
func (s *SpaceTrackSource) Name() string {
	return SpaceTrackName
}

// Fetch implements Source.
func (s *SpaceTrackSource) Fetch(ctx context.Context) ([]string, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.SpaceTrackQueryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, SpaceTrackName, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, SpaceTrackName, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		s.mu.Lock()
		s.authenticated = false
		s.mu.Unlock()

		return nil, fmt.Errorf("%w: session rejected by query endpoint", ErrAuthentication)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyMax))

		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrFetch, SpaceTrackName, resp.StatusCode, body)
	}

	lines, err := ReadLines(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, SpaceTrackName, err)
	}

	s.logger.Info("catalog fetched",
		slog.String("source", SpaceTrackName),
		slog.Int("lines", len(lines)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return lines, nil
}

func (s *SpaceTrackSource) authenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authenticated {
		return nil
	}

	if err := s.cfg.ValidateSpaceTrack(); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	form := url.Values{
		"identity": {s.cfg.SpaceTrackIdentity},
		"password": {s.cfg.spaceTrackPassword},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SpaceTrackLoginURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyMax))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrAuthentication, resp.StatusCode, body)
	}

	// A rejected login still answers 200 with a JSON failure marker.
	if bytes.Contains(body, []byte(`"Login":"Failed"`)) {
		return fmt.Errorf("%w: credentials rejected", ErrAuthentication)
	}

	s.authenticated = true

	s.logger.Info("authenticated with space-track",
		slog.String("identity", s.cfg.SpaceTrackIdentity),
		slog.String("password", s.cfg.MaskedSpaceTrackPassword()))

	return nil
}

package source

import (
	"errors"
	"strings"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/config"
	"github.com/astrolabe-io/astrolabe/internal/storage"
)

const (
	defaultFetchTimeout       = 30 * time.Second
	defaultCelestrakRPS       = 0.5 // one request every two seconds
	defaultSpaceTrackLoginURL = "https://www.space-track.org/ajaxauth/login"
	defaultSpaceTrackQueryURL = "https://www.space-track.org/basicspacedata/query/class/gp/" +
		"EPOCH/%3Enow-30/orderby/NORAD_CAT_ID/format/3le"
)

// ErrCredentialsMissing is returned when Space-Track is selected without credentials.
var ErrCredentialsMissing = errors.New("space-track credentials not set (SPACETRACK_IDENTITY, SPACETRACK_PASSWORD)")

// Config holds fetch settings for every source.
type Config struct {
	FetchTimeout       time.Duration
	CelestrakRPS       float64
	SpaceTrackIdentity string
	spaceTrackPassword string
	SpaceTrackLoginURL string
	SpaceTrackQueryURL string
}

// LoadConfig reads source settings from the environment.
func LoadConfig() *Config {
	return &Config{
		FetchTimeout:       config.GetEnvDuration("FETCH_TIMEOUT", defaultFetchTimeout),
		CelestrakRPS:       config.GetEnvFloat("CELESTRAK_RPS", defaultCelestrakRPS),
		SpaceTrackIdentity: config.GetEnvStr("SPACETRACK_IDENTITY", ""),
		spaceTrackPassword: config.GetEnvStr("SPACETRACK_PASSWORD", ""),
		SpaceTrackLoginURL: config.GetEnvStr("SPACETRACK_URL", defaultSpaceTrackLoginURL),
		SpaceTrackQueryURL: config.GetEnvStr("SPACETRACK_QUERY_URL", defaultSpaceTrackQueryURL),
	}
}

// ValidateSpaceTrack checks that Space-Track credentials are present.
func (c *Config) ValidateSpaceTrack() error {
	if strings.TrimSpace(c.SpaceTrackIdentity) == "" || strings.TrimSpace(c.spaceTrackPassword) == "" {
		return ErrCredentialsMissing
	}

	return nil
}

// MaskedSpaceTrackPassword returns the password masked for logging.
func (c *Config) MaskedSpaceTrackPassword() string {
	return storage.MaskKey(c.spaceTrackPassword)
}

package publish

import (
	"time"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

// ObservationMessage is the JSON value of a published observation.
type ObservationMessage struct {
	RunID             string    `json:"run_id"`         //nolint: tagliatelle
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

// NewObservationMessage converts an observation for publishing.
func NewObservationMessage(runID string, o *ingestion.Observation) ObservationMessage {
	return ObservationMessage{
		RunID:             runID,
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

// Package ingestion turns raw element-set lines into persisted satellite and observation rows.
package ingestion

import (
	"cmp"
	"slices"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/tle"
)

// DefaultSource labels observations when the caller does not name a source.
const DefaultSource = "celestrak"

type (
	// SatelliteRecord is the identity row for one catalog number.
	// Upserts are last-write-wins on Name, InternationalDesignator and IsActive.
	SatelliteRecord struct {
		CatalogNumber           int
		Name                    string
		InternationalDesignator string
		IsActive                bool
		UpdatedAt               time.Time
	}

	// Observation is the persisted element set for one catalog number at one epoch.
	// (CatalogNumber, Epoch) is unique across the store; rows are never updated.
	Observation struct {
		CatalogNumber     int
		Epoch             time.Time
		Line1             string
		Line2             string
		Inclination       float64
		RAAN              float64
		Eccentricity      float64
		ArgumentOfPerigee float64
		MeanAnomaly       float64
		MeanMotion        float64
		RevolutionNumber  int
		BStar             float64
		MeanMotionDot     float64
		Source            string
	}

	// ObservationKey is the uniqueness key of an Observation.
	ObservationKey struct {
		CatalogNumber int
		Epoch         time.Time
	}

	// InsertResult reports the outcome of one InsertObservations call.
	InsertResult struct {
		Inserted int
		Skipped  int // already present, not an error
		Failed   int // per-row failures a backend chose to absorb
		New      []*Observation
	}

	// StoreStats are store-wide totals, independent of any run.
	StoreStats struct {
		TotalSatellites   int64
		ActiveSatellites  int64
		TotalObservations int64
		LatestEpoch       *time.Time
	}
)

// Key returns the uniqueness key of o.
func (o *Observation) Key() ObservationKey {
	return ObservationKey{CatalogNumber: o.CatalogNumber, Epoch: o.Epoch.UTC()}
}

// NewSatelliteRecord builds the identity row for a decoded element set.
func NewSatelliteRecord(es *tle.ElementSet, now time.Time) *SatelliteRecord {
	return &SatelliteRecord{
		CatalogNumber:           es.CatalogNumber,
		Name:                    es.Name,
		InternationalDesignator: es.InternationalDesignator,
		IsActive:                true,
		UpdatedAt:               now.UTC(),
	}
}

// NewObservation builds the per-epoch row for a decoded element set.
func NewObservation(es *tle.ElementSet, source string) *Observation {
	if source == "" {
		source = DefaultSource
	}

	return &Observation{
		CatalogNumber:     es.CatalogNumber,
		Epoch:             es.Epoch.UTC(),
		Line1:             es.Line1,
		Line2:             es.Line2,
		Inclination:       es.Inclination,
		RAAN:              es.RAAN,
		Eccentricity:      es.Eccentricity,
		ArgumentOfPerigee: es.ArgumentOfPerigee,
		MeanAnomaly:       es.MeanAnomaly,
		MeanMotion:        es.MeanMotion,
		RevolutionNumber:  es.RevolutionNumber,
		BStar:             es.BStar,
		MeanMotionDot:     es.MeanMotionDot,
		Source:            source,
	}
}

// DedupeSatellites collapses records sharing a catalog number, keeping the last
// occurrence's values at the position of the first occurrence.
func DedupeSatellites(records []*SatelliteRecord) []*SatelliteRecord {
	index := make(map[int]int, len(records))
	out := make([]*SatelliteRecord, 0, len(records))

	for _, r := range records {
		if r == nil {
			continue
		}

		if i, ok := index[r.CatalogNumber]; ok {
			out[i] = r
			continue
		}

		index[r.CatalogNumber] = len(out)
		out = append(out, r)
	}

	return out
}

// SortSatellitesByCatalog returns records ordered by ascending catalog number.
// Stores that lock rows take them in this order. The input is not modified.
func SortSatellitesByCatalog(records []*SatelliteRecord) []*SatelliteRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b *SatelliteRecord) int {
		return cmp.Compare(a.CatalogNumber, b.CatalogNumber)
	})

	return out
}

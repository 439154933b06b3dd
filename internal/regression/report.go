package regression

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"time"
)

// P0Thresholds are the minimum acceptable rates from the testable
// properties spec: anchor relocation and claim grounding must each clear
// their bar across the whole fixture suite, not just on average.
var P0Thresholds = map[string]float64{
	"anchor_locate_rate":   0.98,
	"claim_grounding_rate": 0.95,
}

// manifest is the on-disk shape of testdata/manifest.json.
type manifest struct {
	Fixtures []Fixture `json:"fixtures"`
}

// FixtureReport is one fixture's computed metrics, alongside its identity.
type FixtureReport struct {
	FixtureID string  `json:"fixture_id"`
	Domain    string  `json:"domain"`
	Metrics   Metrics `json:"metrics"`
}

// Summary rolls the per-fixture reports up into the suite-wide minimums
// the P0 thresholds are checked against.
type Summary struct {
	FixturesCount         int     `json:"fixtures_count"`
	AnchorLocateRateMin   float64 `json:"anchor_locate_rate_min"`
	ClaimGroundingRateMin float64 `json:"claim_grounding_rate_min"`
}

// Report is the full offline regression report: one entry per fixture
// plus the suite-wide summary and the thresholds it was checked against.
type Report struct {
	Version     int                `json:"version"`
	GeneratedAt time.Time          `json:"generated_at"`
	Thresholds  map[string]float64 `json:"thresholds"`
	Fixtures    []FixtureReport    `json:"fixtures"`
	Summary     Summary            `json:"summary"`
}

// loadManifest reads and parses testdata/manifest.json from fixturesFS.
func loadManifest(fixturesFS fs.FS) (manifest, error) {
	raw, err := fs.ReadFile(fixturesFS, "manifest.json")
	if err != nil {
		return manifest{}, fmt.Errorf("regression: read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return manifest{}, fmt.Errorf("regression: parse manifest: %w", err)
	}
	return m, nil
}

// GenerateReport computes metrics for every fixture in fixturesFS's
// manifest.json and rolls them up into a suite-wide report. generatedAt is
// taken as a parameter (rather than time.Now()) so report generation stays
// deterministic and callable from tests.
func GenerateReport(fixturesFS fs.FS, generatedAt time.Time) (Report, error) {
	m, err := loadManifest(fixturesFS)
	if err != nil {
		return Report{}, err
	}

	perFixture := make([]FixtureReport, 0, len(m.Fixtures))
	anchorMin, groundingMin := 1.0, 1.0
	for _, f := range m.Fixtures {
		metrics := ComputeMetricsForFixture(f)
		perFixture = append(perFixture, FixtureReport{
			FixtureID: f.FixtureID,
			Domain:    f.Domain,
			Metrics:   metrics,
		})
		if metrics.AnchorLocateRate < anchorMin {
			anchorMin = metrics.AnchorLocateRate
		}
		if metrics.ClaimGroundingRate < groundingMin {
			groundingMin = metrics.ClaimGroundingRate
		}
	}
	if len(perFixture) == 0 {
		anchorMin, groundingMin = 0, 0
	}

	return Report{
		Version:     1,
		GeneratedAt: generatedAt,
		Thresholds:  P0Thresholds,
		Fixtures:    perFixture,
		Summary: Summary{
			FixturesCount:         len(perFixture),
			AnchorLocateRateMin:   anchorMin,
			ClaimGroundingRateMin: groundingMin,
		},
	}, nil
}

// RenderText formats a Report as the short plain-text summary a CI job logs.
func RenderText(r Report) string {
	return fmt.Sprintf(
		"Evidentia P0 Offline Regression Report\nfixtures_count: %d\nanchor_locate_rate_min: %v (threshold %v)\nclaim_grounding_rate_min: %v (threshold %v)\n",
		r.Summary.FixturesCount,
		r.Summary.AnchorLocateRateMin, r.Thresholds["anchor_locate_rate"],
		r.Summary.ClaimGroundingRateMin, r.Thresholds["claim_grounding_rate"],
	)
}

// Package regression computes the offline regression metrics from the
// testable-properties spec: anchor_locate_rate (can a persisted AnchorSet
// be relocated in its source text?) and claim_grounding_rate (is a
// SourceClaim's quote actually present in its chunk?), rolled up across a
// fixture suite rather than checked claim-by-claim in isolation.
package regression

import (
	"github.com/evidentia-ai/evidentia/internal/ingestion"
	"github.com/evidentia-ai/evidentia/internal/model"
)

// AnchorCase is one (AnchorSet, current source text) pair drawn from a
// fixture: the anchor as originally computed, and the text it must still
// be locatable within (identical to the original text for most fixtures;
// a handful of fixtures use a lightly-edited copy to exercise Locate's
// fallback paths).
type AnchorCase struct {
	Anchor model.AnchorSet `json:"anchor"`
	Text   string          `json:"text"`
}

// ClaimCase is one (SourceClaim, chunk text) pair drawn from a fixture.
type ClaimCase struct {
	Claim     model.SourceClaim `json:"claim"`
	ChunkText string            `json:"chunk_text"`
}

// Fixture is one entry in the regression fixture suite: a named scenario
// (an ingested document, a chat answer, a re-fetch) contributing some
// number of anchor-relocation and claim-grounding checks.
type Fixture struct {
	FixtureID string       `json:"fixture_id"`
	Domain    string       `json:"domain"`
	Anchors   []AnchorCase `json:"anchors"`
	Claims    []ClaimCase  `json:"claims"`
}

// Metrics is the per-fixture rate pair the P0 thresholds are evaluated
// against.
type Metrics struct {
	AnchorLocateRate   float64 `json:"anchor_locate_rate"`
	ClaimGroundingRate float64 `json:"claim_grounding_rate"`
	AnchorsTotal       int     `json:"anchors_total"`
	ClaimsTotal        int     `json:"claims_total"`
}

// ComputeMetricsForFixture relocates every anchor and checks every claim's
// grounding for one fixture, returning the resulting rates. An empty
// anchor or claim set yields a rate of 1.0 (vacuously satisfied) rather
// than 0/0, matching the all-quantifier reading of the testable property
// ("for every claim, ..." is true when there are no claims).
func ComputeMetricsForFixture(f Fixture) Metrics {
	m := Metrics{
		AnchorLocateRate:   1.0,
		ClaimGroundingRate: 1.0,
		AnchorsTotal:       len(f.Anchors),
		ClaimsTotal:        len(f.Claims),
	}

	if len(f.Anchors) > 0 {
		located := 0
		for _, c := range f.Anchors {
			if _, _, ok := ingestion.Locate(c.Anchor, c.Text); ok {
				located++
			}
		}
		m.AnchorLocateRate = float64(located) / float64(len(f.Anchors))
	}

	if len(f.Claims) > 0 {
		grounded := 0
		for _, c := range f.Claims {
			if c.Claim.IsGrounded(c.ChunkText) {
				grounded++
			}
		}
		m.ClaimGroundingRate = float64(grounded) / float64(len(f.Claims))
	}

	return m
}

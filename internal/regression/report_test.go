package regression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineRegressionMetricsMeetP0Thresholds(t *testing.T) {
	m, err := loadManifest(Fixtures)
	require.NoError(t, err)
	require.NotEmpty(t, m.Fixtures)

	for _, f := range m.Fixtures {
		metrics := ComputeMetricsForFixture(f)
		assert.GreaterOrEqualf(t, metrics.AnchorLocateRate, 0.98, "fixture %s anchor_locate_rate", f.FixtureID)
		assert.GreaterOrEqualf(t, metrics.ClaimGroundingRate, 0.95, "fixture %s claim_grounding_rate", f.FixtureID)
	}
}

func TestGenerateReportSummarizesSuite(t *testing.T) {
	generatedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	report, err := GenerateReport(Fixtures, generatedAt)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Version)
	assert.NotEmpty(t, report.Fixtures)
	assert.Equal(t, len(report.Fixtures), report.Summary.FixturesCount)
	assert.GreaterOrEqual(t, report.Summary.AnchorLocateRateMin, P0Thresholds["anchor_locate_rate"])
	assert.GreaterOrEqual(t, report.Summary.ClaimGroundingRateMin, P0Thresholds["claim_grounding_rate"])

	text := RenderText(report)
	assert.Contains(t, text, "anchor_locate_rate")
	assert.Contains(t, text, "claim_grounding_rate")
}

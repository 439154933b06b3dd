package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPlaybookOrder(t *testing.T) {
	pb := DefaultPlaybook()
	require.Equal(t, "full_analysis", pb.Name)

	names := make([]string, len(pb.Stages))
	for i, s := range pb.Stages {
		names[i] = s.Name
	}
	require.Equal(t, []string{
		StageAssertionFuse,
		StageHypothesisAnalyze,
		StageAdversarialEvaluate,
		StageNarrativeBuild,
		StageKGBuild,
		StageForecastGenerate,
		StageQualityScore,
		StageReportGenerate,
	}, names)
}

func TestMultiPerspectivePlaybookReplacesAnalyzeStage(t *testing.T) {
	pb := MultiPerspectivePlaybook()
	found := false
	for _, s := range pb.Stages {
		if s.Name == StageHypothesisMultiPerspective {
			found = true
		}
		require.NotEqual(t, StageHypothesisAnalyze, s.Name)
	}
	require.True(t, found)
}

func TestOSINTPlaybookPrependsCollectionStage(t *testing.T) {
	pb := OSINTPlaybook()
	require.Equal(t, StageOSINTCollect, pb.Stages[0].Name)
	require.Equal(t, len(DefaultPlaybook().Stages)+1, len(pb.Stages))
}

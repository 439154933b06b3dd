// Package pipeline implements the Pipeline Orchestrator: a sequence of
// named Stages run against a shared StageContext, tracked by a
// PipelineTracker and checkpointed after each successful stage so a run
// can resume where it left off.
package pipeline

// Stage name constants. Concrete Stage implementations are registered
// against these names in a Registry; a Playbook is just an ordered list
// of them plus optional per-stage config overrides.
const (
	StageAssertionFuse            = "assertion_fuse"
	StageHypothesisAnalyze        = "hypothesis_analyze"
	StageHypothesisMultiPerspective = "hypothesis_multi_perspective"
	StageAdversarialEvaluate      = "adversarial_evaluate"
	StageNarrativeBuild           = "narrative_build"
	StageKGBuild                  = "kg_build"
	StageForecastGenerate         = "forecast_generate"
	StageQualityScore             = "quality_score"
	StageReportGenerate           = "report_generate"
	StageOSINTCollect             = "osint_collect"
)

// StageSpec is one entry in a Playbook: a stage name plus config overrides
// applied to that stage's StageContext.Config for this run only.
type StageSpec struct {
	Name   string
	Config map[string]any
}

// Playbook is an ordered list of stages a pipeline run executes.
type Playbook struct {
	Name   string
	Stages []StageSpec
}

func specs(names ...string) []StageSpec {
	out := make([]StageSpec, len(names))
	for i, n := range names {
		out[i] = StageSpec{Name: n}
	}
	return out
}

// DefaultPlaybook is the standard end-to-end analysis pipeline.
func DefaultPlaybook() Playbook {
	return Playbook{
		Name: "full_analysis",
		Stages: specs(
			StageAssertionFuse,
			StageHypothesisAnalyze,
			StageAdversarialEvaluate,
			StageNarrativeBuild,
			StageKGBuild,
			StageForecastGenerate,
			StageQualityScore,
			StageReportGenerate,
		),
	}
}

// MultiPerspectivePlaybook swaps the single-pass hypothesis_analyze stage
// for the persona fan-out, keeping every other stage identical to
// DefaultPlaybook.
func MultiPerspectivePlaybook() Playbook {
	return Playbook{
		Name: "multi_perspective",
		Stages: specs(
			StageAssertionFuse,
			StageHypothesisMultiPerspective,
			StageAdversarialEvaluate,
			StageNarrativeBuild,
			StageKGBuild,
			StageForecastGenerate,
			StageQualityScore,
			StageReportGenerate,
		),
	}
}

// OSINTPlaybook prepends a collection stage ahead of the default pipeline,
// for runs that need to gather fresh source material before analysis.
func OSINTPlaybook() Playbook {
	def := DefaultPlaybook()
	return Playbook{
		Name:   "osint_full_analysis",
		Stages: append(specs(StageOSINTCollect), def.Stages...),
	}
}

package model

import "time"

// PerEvidenceAssessment is one line item of an AchResult: how a single
// piece of evidence bears on the hypothesis under analysis.
type PerEvidenceAssessment struct {
	EvidenceUID string             `json:"evidence_uid"`
	Relation    AssessmentRelation `json:"relation"`
	Strength    float64            `json:"strength"`
	Likelihood  float64            `json:"likelihood"`
}

// AchResult is the Hypothesis Engine's analyze() output: an
// Analysis-of-Competing-Hypotheses style breakdown of how a hypothesis
// fares against the available evidence.
type AchResult struct {
	HypothesisText    string                  `json:"hypothesis_text"`
	Assessments       []PerEvidenceAssessment `json:"assessments"`
	CoverageScore     float64                 `json:"coverage_score"`
	InitialConfidence float64                 `json:"initial_confidence"`
	GapList           []GapListEntry          `json:"gap_list,omitempty"`
}

// QualityDimensions breaks a QualityReportV1 down into its four scored
// factors, each in [0,1].
type QualityDimensions struct {
	EvidenceCoverage      float64 `json:"evidence_coverage"`
	SourceDiversity       float64 `json:"source_diversity"`
	ConfidenceCalibration float64 `json:"confidence_calibration"`
	NarrativeCoherence    float64 `json:"narrative_coherence"`
}

// QualityReportV1 is the Hypothesis Engine's meta-cognitive self-assessment
// of a Judgment: how well-supported and well-calibrated it is, independent
// of the confidence score baked into the Judgment's Assertions.
type QualityReportV1 struct {
	TraceID      string            `json:"trace_id"`
	JudgmentUID  string            `json:"judgment_uid,omitempty"`
	Dimensions   QualityDimensions `json:"dimensions"`
	OverallScore float64           `json:"overall_score"`
	Notes        []string          `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

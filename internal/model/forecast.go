package model

import "time"

// Forecast is a dated, probability-scored projection derived from a
// Hypothesis's current posterior, produced by the pipeline's
// forecast_generate stage.
type Forecast struct {
	UID           string    `json:"uid"`
	CaseUID       string    `json:"case_uid"`
	HypothesisUID string    `json:"hypothesis_uid"`
	Statement     string    `json:"statement"`
	Probability   float64   `json:"probability"`
	HorizonDays   int       `json:"horizon_days"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewForecast constructs a Forecast projecting a Hypothesis's current
// posterior probability forward by horizonDays.
func NewForecast(caseUID, hypothesisUID, statement string, probability float64, horizonDays int) Forecast {
	return Forecast{
		UID:           NewID("fc"),
		CaseUID:       caseUID,
		HypothesisUID: hypothesisUID,
		Statement:     statement,
		Probability:   probability,
		HorizonDays:   horizonDays,
		CreatedAt:     time.Now().UTC(),
	}
}

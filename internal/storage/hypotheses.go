package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateHypothesis inserts a Hypothesis. Callers must have already run
// model.Hypothesis.Validate (supporting/contradicting disjointness).
func (db *DB) CreateHypothesis(ctx context.Context, h model.Hypothesis) error {
	gapJSON, err := json.Marshal(h.GapList)
	if err != nil {
		return fmt.Errorf("storage: marshal gap list: %w", err)
	}
	adversarialJSON, err := json.Marshal(h.AdversarialResult)
	if err != nil {
		return fmt.Errorf("storage: marshal adversarial result: %w", err)
	}
	personaJSON, err := json.Marshal(h.Persona)
	if err != nil {
		return fmt.Errorf("storage: marshal persona: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO hypotheses (
			uid, case_uid, label, statement, supporting_assertion_uids, contradicting_assertion_uids,
			coverage_score, confidence, gap_list, prior_probability, posterior_probability,
			adversarial_result, persona, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12::jsonb, $13::jsonb, $14, $15)`,
		h.UID, h.CaseUID, h.Label, h.Statement, h.SupportingAssertionUIDs, h.ContradictingAssertionUIDs,
		h.CoverageScore, h.Confidence, gapJSON, h.PriorProbability, h.PosteriorProbability,
		adversarialJSON, personaJSON, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert hypothesis: %w", err)
	}
	return nil
}

// UpdateHypothesisProbabilities persists a new posterior (and the prior it
// was derived from) after a fusion update, without touching the rest of
// the hypothesis's fields.
func (db *DB) UpdateHypothesisProbabilities(ctx context.Context, uid string, prior, posterior float64) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE hypotheses SET prior_probability = $2, posterior_probability = $3, updated_at = now()
		 WHERE uid = $1`,
		uid, prior, posterior,
	)
	if err != nil {
		return fmt.Errorf("storage: update hypothesis probabilities: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHypothesesByCase returns all hypotheses for a case, ordered by
// descending posterior; hypotheses with no posterior come last.
func (db *DB) ListHypothesesByCase(ctx context.Context, caseUID string) ([]model.Hypothesis, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, label, statement, supporting_assertion_uids, contradicting_assertion_uids,
		        coverage_score, confidence, gap_list, prior_probability, posterior_probability,
		        adversarial_result, persona, created_at, updated_at
		 FROM hypotheses WHERE case_uid = $1
		 ORDER BY posterior_probability DESC NULLS LAST`, caseUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list hypotheses: %w", err)
	}
	defer rows.Close()

	var out []model.Hypothesis
	for rows.Next() {
		h, err := scanHypothesis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHypothesis(rows pgx.Rows) (model.Hypothesis, error) {
	var h model.Hypothesis
	var gapJSON, adversarialJSON, personaJSON []byte
	if err := rows.Scan(&h.UID, &h.CaseUID, &h.Label, &h.Statement, &h.SupportingAssertionUIDs, &h.ContradictingAssertionUIDs,
		&h.CoverageScore, &h.Confidence, &gapJSON, &h.PriorProbability, &h.PosteriorProbability,
		&adversarialJSON, &personaJSON, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return model.Hypothesis{}, fmt.Errorf("storage: scan hypothesis: %w", err)
	}
	_ = json.Unmarshal(gapJSON, &h.GapList)
	if len(adversarialJSON) > 4 {
		_ = json.Unmarshal(adversarialJSON, &h.AdversarialResult)
	}
	if len(personaJSON) > 4 {
		_ = json.Unmarshal(personaJSON, &h.Persona)
	}
	return h, nil
}

// CreateEvidenceAssessment inserts an EvidenceAssessment. Unique on
// (HypothesisUID, EvidenceUID); a conflict indicates the same evidence was
// already assessed against this hypothesis.
func (db *DB) CreateEvidenceAssessment(ctx context.Context, a model.EvidenceAssessment) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO evidence_assessments (uid, case_uid, hypothesis_uid, evidence_uid, relation, strength, likelihood, assessed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (hypothesis_uid, evidence_uid) DO NOTHING`,
		a.UID, a.CaseUID, a.HypothesisUID, a.EvidenceUID, a.Relation, a.Strength, a.Likelihood, a.AssessedBy, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert evidence assessment: %w", err)
	}
	return nil
}

// ListEvidenceAssessmentsByHypothesis returns every assessment recorded
// against a hypothesis, in the order they were created (the order the
// Bayesian fusion update was actually applied in).
func (db *DB) ListEvidenceAssessmentsByHypothesis(ctx context.Context, hypothesisUID string) ([]model.EvidenceAssessment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, hypothesis_uid, evidence_uid, relation, strength, likelihood, assessed_by, created_at
		 FROM evidence_assessments WHERE hypothesis_uid = $1 ORDER BY created_at`, hypothesisUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list evidence assessments: %w", err)
	}
	defer rows.Close()

	var out []model.EvidenceAssessment
	for rows.Next() {
		var a model.EvidenceAssessment
		if err := rows.Scan(&a.UID, &a.CaseUID, &a.HypothesisUID, &a.EvidenceUID, &a.Relation, &a.Strength, &a.Likelihood, &a.AssessedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan evidence assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateProbabilityUpdate appends one Bayesian fusion step to the
// append-only audit trail.
func (db *DB) CreateProbabilityUpdate(ctx context.Context, u model.ProbabilityUpdate) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO probability_updates (uid, hypothesis_uid, evidence_uid, prior, posterior, likelihood, likelihood_ratio, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.UID, u.HypothesisUID, u.EvidenceUID, u.Prior, u.Posterior, u.Likelihood, u.LikelihoodRatio, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert probability update: %w", err)
	}
	return nil
}

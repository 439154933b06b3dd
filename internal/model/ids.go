// Package model defines the core domain types for Evidentia.
//
// Types correspond directly to the entities described in the evidence →
// hypothesis data model and use strong typing (UUIDs, time.Time, enums)
// rather than ad-hoc maps wherever a concrete shape is known.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind prefixes identify an entity's type in its rendered uid, e.g.
// "case_3f9a..." or "tt_04bd...". Prefixes aid debuggability when a bare
// identifier shows up in a log line or bug report.
const (
	KindCase              = "case"
	KindArtifactID        = "aid"
	KindArtifactVer       = "av"
	KindChunk             = "chunk"
	KindEvidence          = "ev"
	KindSourceClaim       = "sc"
	KindAssertion         = "a"
	KindHypothesis        = "h"
	KindAction            = "act"
	KindToolTrace         = "tt"
	KindNarrative         = "nar"
	KindJudgment          = "j"
	KindAssessment        = "ea"
	KindProbUpdate        = "pu"
	KindInvestigation     = "inv"
	KindSubscription      = "sub"
	KindEventLog          = "evl"
	KindPushLog           = "pl"
	KindRun               = "run"
	KindActor             = "actor"
	KindAPIKey            = "ak"
	KindAssertionFeedback = "fb"
)

// NewID generates a fresh random uid with the given kind prefix, e.g.
// NewID(KindCase) -> "case_3f2b8c1e-7d4a-4b6e-9c1f-2a5d8e0b7c43".
func NewID(kind string) string {
	return fmt.Sprintf("%s_%s", kind, uuid.New().String())
}

package model

import "time"

// Checkpoint is a durable snapshot of pipeline state written after each
// successful stage, keyed by ThreadID (the owning pipeline run's uid).
// Resumption loads the latest Checkpoint for a ThreadID and replays
// subsequent stages from StateJSON.
type Checkpoint struct {
	UID                string         `json:"uid"`
	ThreadID           string         `json:"thread_id"`
	Step               string         `json:"step"`
	StateJSON          map[string]any `json:"state_json"`
	ParentCheckpointID string         `json:"parent_checkpoint_id,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewCheckpoint constructs a Checkpoint linked to its predecessor in the
// same run, if any.
func NewCheckpoint(threadID, step string, stateJSON map[string]any, parentCheckpointID string) Checkpoint {
	return Checkpoint{
		UID:                NewID("ckpt"),
		ThreadID:           threadID,
		Step:               step,
		StateJSON:          stateJSON,
		ParentCheckpointID: parentCheckpointID,
		Metadata:           map[string]any{},
		CreatedAt:          time.Now().UTC(),
	}
}

package model

import "time"

// ActorRole represents the RBAC role assigned to an actor. Recorded on
// every Action as the authenticated actor_id, not a free-text field.
type ActorRole string

const (
	RoleAdmin   ActorRole = "admin"
	RoleAnalyst ActorRole = "analyst"
	RoleReader  ActorRole = "reader"
)

// RoleRank returns the numeric rank of a role (higher = more privileges).
// Only relative ordering matters; RoleAtLeast uses >= comparison.
func RoleRank(r ActorRole) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleAnalyst:
		return 2
	case RoleReader:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole ActorRole) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// Actor is a registered identity that can author Cases and Actions. The
// actor_id recorded throughout the evidence graph refers to Actor.ActorID,
// authenticated via a JWT issued by internal/auth or an API key verified
// against APIKeyHash.
type Actor struct {
	UID        string    `json:"uid"`
	ActorID    string    `json:"actor_id"`
	Name       string    `json:"name"`
	Role       ActorRole `json:"role"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewActor constructs an Actor with a freshly minted identifier.
func NewActor(actorID, name string, role ActorRole) Actor {
	now := time.Now().UTC()
	return Actor{
		UID:       NewID(KindActor),
		ActorID:   actorID,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

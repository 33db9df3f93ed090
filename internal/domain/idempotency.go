package domain

import "time"

// Idempotency records the resource produced by a previously processed request,
// keyed by (actor_id, scope, key). Scope is the route that created the
// resource, so the same key may be reused across different endpoints.
// Replays return the stored resource without re-executing side effects.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	ActorID    string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_actor_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_actor_scope_key,priority:2"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_actor_scope_key,priority:3"`
	ResourceID string    `gorm:"type:varchar(64);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

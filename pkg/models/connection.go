package models

import "time"

// EntityTypeNote is the entity type carried by connections between notes.
const EntityTypeNote = "note"

// Connection is a typed edge between two graph entities.
type Connection struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	SourceID   string    `json:"source_id" db:"source_id"`
	TargetID   string    `json:"target_id" db:"target_id"`
	SourceType string    `json:"source_type" db:"source_type"`
	TargetType string    `json:"target_type" db:"target_type"`
	Type       string    `json:"type" db:"type"`
	Label      string    `json:"label" db:"label"`
	Confidence float64   `json:"confidence" db:"confidence"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Touches reports whether the connection has the given entity on either side.
func (c *Connection) Touches(entityID string) bool {
	return c.SourceID == entityID || c.TargetID == entityID
}

package models

import (
	"encoding/json"
	"time"
)

// Note is a single entry in the knowledge graph. Content holds the rich-text
// document tree as stored (see pkg/content for the node shape).
type Note struct {
	ID        string          `json:"id" db:"id"`
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	Title     string          `json:"title" db:"title"`
	Content   json.RawMessage `json:"content" db:"content"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// NoteRef is the read-model used for candidate review. It is derived at query
// time and not authoritative.
type NoteRef struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ContentPreview  string    `json:"content_preview"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ConnectionCount int       `json:"connection_count"`
	ClusterCount    int       `json:"cluster_count"`
}

// NoteListResponse is the response for listing notes
type NoteListResponse struct {
	Items      []Note `json:"items"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

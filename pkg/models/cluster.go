package models

import "time"

// ClusterRoleParticipant is the membership role given to notes that join a
// cluster through a merge.
const ClusterRoleParticipant = "participant"

// Cluster is a named group of notes.
type Cluster struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	Name      string     `json:"name" db:"name"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ClusterMember links a note to a cluster.
type ClusterMember struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	ClusterID string    `json:"cluster_id" db:"cluster_id"`
	NoteID    string    `json:"note_id" db:"note_id"`
	Role      string    `json:"role" db:"role"`
	AddedAt   time.Time `json:"added_at" db:"added_at"`
}

package models

import "time"

// Candidate review statuses.
const (
	CandidateStatusPending  = "pending"
	CandidateStatusApproved = "approved"
	CandidateStatusRejected = "rejected"
	CandidateStatusMerged   = "merged"
)

// Content strategies for resolving a merge.
const (
	ContentStrategyKeepPrimary   = "keep_primary"
	ContentStrategyKeepSecondary = "keep_secondary"
	ContentStrategyConcatenate   = "concatenate"
	ContentStrategyManual        = "manual"
)

// SimilarityWeights controls how the per-signal scores are combined. The
// weights are expected to sum to 1.
type SimilarityWeights struct {
	Title     float64 `json:"title"`
	Content   float64 `json:"content"`
	Embedding float64 `json:"embedding"`
}

// DefaultWeights returns the standard weighting of the similarity signals.
func DefaultWeights() SimilarityWeights {
	return SimilarityWeights{
		Title:     0.3,
		Content:   0.2,
		Embedding: 0.5,
	}
}

// SimilarityScores holds the per-signal scores and their weighted combination
// for one pair of notes. All values are in [0, 1].
type SimilarityScores struct {
	Title     float64 `json:"title"`
	Content   float64 `json:"content"`
	Embedding float64 `json:"embedding"`
	Combined  float64 `json:"combined"`
}

// MergeCandidate is a scored pair of notes awaiting review. NoteAID and
// NoteBID are stored in canonical order (NoteAID < NoteBID) so each unordered
// pair appears at most once.
type MergeCandidate struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	NoteAID        string     `json:"note_a_id" db:"note_a_id"`
	NoteBID        string     `json:"note_b_id" db:"note_b_id"`
	TitleScore     float64    `json:"title_score" db:"title_score"`
	ContentScore   float64    `json:"content_score" db:"content_score"`
	EmbeddingScore float64    `json:"embedding_score" db:"embedding_score"`
	CombinedScore  float64    `json:"combined_score" db:"combined_score"`
	Status         string     `json:"status" db:"status"`
	DetectedAt     time.Time  `json:"detected_at" db:"detected_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

// Scores returns the candidate's stored scores as a SimilarityScores.
func (c *MergeCandidate) Scores() SimilarityScores {
	return SimilarityScores{
		Title:     c.TitleScore,
		Content:   c.ContentScore,
		Embedding: c.EmbeddingScore,
		Combined:  c.CombinedScore,
	}
}

// References reports whether the candidate involves the given note.
func (c *MergeCandidate) References(noteID string) bool {
	return c.NoteAID == noteID || c.NoteBID == noteID
}

// CandidateWithRefs is a candidate joined with summaries of both notes for
// review.
type CandidateWithRefs struct {
	MergeCandidate
	NoteA NoteRef `json:"note_a"`
	NoteB NoteRef `json:"note_b"`
}

// CandidateListResponse is the response for listing candidates
type CandidateListResponse struct {
	Items      []MergeCandidate `json:"items"`
	TotalCount int              `json:"total_count"`
}

// Scan lifecycle statuses.
const (
	ScanStatusIdle     = "idle"
	ScanStatusScanning = "scanning"
	ScanStatusComplete = "complete"
	ScanStatusError    = "error"
)

// ScanProgress is a snapshot of the pairwise scan state.
type ScanProgress struct {
	Status          string     `json:"status"`
	NotesScanned    int        `json:"notes_scanned"`
	TotalNotes      int        `json:"total_notes"`
	CandidatesFound int        `json:"candidates_found"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// MergeOptions describes how an approved candidate should be resolved.
type MergeOptions struct {
	PrimaryID           string `json:"primary_id" validate:"required"`
	SecondaryID         string `json:"secondary_id" validate:"required"`
	ContentStrategy     string `json:"content_strategy" validate:"required,oneof=keep_primary keep_secondary concatenate manual"`
	TransferConnections bool   `json:"transfer_connections"`
	TransferClusters    bool   `json:"transfer_clusters"`
}

// MergeResult reports the outcome of a merge resolution.
type MergeResult struct {
	Success                bool   `json:"success"`
	SurvivorID             string `json:"survivor_id,omitempty"`
	MergedID               string `json:"merged_id,omitempty"`
	ConnectionsTransferred int    `json:"connections_transferred"`
	ClustersUpdated        int    `json:"clusters_updated"`
	Error                  string `json:"error,omitempty"`
}

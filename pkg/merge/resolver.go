// Package merge resolves approved merge candidates against the note graph.
package merge

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/content"
	"github.com/Ramsey-B/fern/pkg/models"
)

// NoteStore is the note persistence the resolver mutates.
type NoteStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Note, error)
	UpdateContent(ctx context.Context, tenantID, id string, content json.RawMessage) error
	SoftDelete(ctx context.Context, tenantID, id string) error
}

// ConnectionStore is the edge persistence the resolver rewires.
type ConnectionStore interface {
	GetForNote(ctx context.Context, tenantID, noteID string) ([]models.Connection, error)
	GetBetween(ctx context.Context, tenantID, aID, bID string) ([]models.Connection, error)
	Create(ctx context.Context, connection *models.Connection) error
	Delete(ctx context.Context, tenantID, id string) error
}

// ClusterStore is the group membership persistence the resolver updates.
type ClusterStore interface {
	GetForNote(ctx context.Context, tenantID, noteID string) ([]models.Cluster, error)
	IsMember(ctx context.Context, tenantID, clusterID, noteID string) (bool, error)
	AddMember(ctx context.Context, tenantID, clusterID, noteID, role string) error
	RemoveMember(ctx context.Context, tenantID, clusterID, noteID string) error
}

// CandidateStore is the candidate persistence the resolver transitions.
type CandidateStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.MergeCandidate, error)
	UpdateStatus(ctx context.Context, tenantID, id, status string) error
	DeleteForNote(ctx context.Context, tenantID, noteID, exceptID string) error
}

// Mirror propagates a resolved merge to the graph database. Mirror failures
// never roll back the relational merge.
type Mirror interface {
	ApplyMerge(ctx context.Context, tenantID, survivorID, mergedID string) error
}

// Emitter publishes candidate lifecycle events.
type Emitter interface {
	EmitNoteMerged(ctx context.Context, tenantID string, result *models.MergeResult) error
	EmitCandidateRejected(ctx context.Context, candidate *models.MergeCandidate) error
}

// Resolver executes merge and reject decisions on candidates. All relational
// steps of a merge run inside a single transaction; the graph mirror and
// event emission happen after commit, best effort.
type Resolver struct {
	logger      ectologger.Logger
	db          database.DB
	notes       NoteStore
	connections ConnectionStore
	clusters    ClusterStore
	candidates  CandidateStore
	mirror      Mirror
	emitter     Emitter
}

// NewResolver creates a new Resolver. db may be nil to run without
// transactions, mirror and emitter may be nil.
func NewResolver(
	logger ectologger.Logger,
	db database.DB,
	notes NoteStore,
	connections ConnectionStore,
	clusters ClusterStore,
	candidates CandidateStore,
	mirror Mirror,
	emitter Emitter,
) *Resolver {
	return &Resolver{
		logger:      logger,
		db:          db,
		notes:       notes,
		connections: connections,
		clusters:    clusters,
		candidates:  candidates,
		mirror:      mirror,
		emitter:     emitter,
	}
}

// Merge resolves the candidate by folding the secondary note into the
// primary. Business failures (missing notes, mismatched pair) are reported in
// the result, not as errors.
func (r *Resolver) Merge(ctx context.Context, tenantID, candidateID string, options models.MergeOptions) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Resolver.Merge")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"candidate_id": candidateID,
		"primary_id":   options.PrimaryID,
		"secondary_id": options.SecondaryID,
		"strategy":     options.ContentStrategy,
	})

	candidate, err := r.candidates.GetByID(ctx, tenantID, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "candidate %s not found", candidateID)
	}
	if candidate.Status == models.CandidateStatusMerged {
		return nil, httperror.NewHTTPError(http.StatusConflict, "candidate is already merged")
	}

	pairMatches := candidate.References(options.PrimaryID) && candidate.References(options.SecondaryID) &&
		options.PrimaryID != options.SecondaryID
	if !pairMatches {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "primary and secondary must be the candidate's pair")
	}

	ctx, commit, rollback, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	result, err := r.performMerge(ctx, tenantID, candidate, options)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		log.WithFields(map[string]any{"reason": result.Error}).Warn("Merge not applied")
		return result, nil
	}

	if err := commit(); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"connections_transferred": result.ConnectionsTransferred,
		"clusters_updated":        result.ClustersUpdated,
	}).Info("Merge resolved")

	r.propagate(ctx, tenantID, result)

	return result, nil
}

// performMerge runs the merge steps in order. The caller owns the
// transaction.
func (r *Resolver) performMerge(ctx context.Context, tenantID string, candidate *models.MergeCandidate, options models.MergeOptions) (*models.MergeResult, error) {
	primary, err := r.notes.GetByID(ctx, tenantID, options.PrimaryID)
	if err != nil {
		return nil, err
	}
	secondary, err := r.notes.GetByID(ctx, tenantID, options.SecondaryID)
	if err != nil {
		return nil, err
	}
	if primary == nil || secondary == nil {
		return &models.MergeResult{Success: false, Error: "Note not found"}, nil
	}

	result := &models.MergeResult{
		Success:    true,
		SurvivorID: primary.ID,
		MergedID:   secondary.ID,
	}

	if err := r.applyContentStrategy(ctx, primary, secondary, options.ContentStrategy); err != nil {
		return nil, err
	}

	if options.TransferConnections {
		transferred, err := r.transferConnections(ctx, tenantID, primary.ID, secondary.ID)
		if err != nil {
			return nil, err
		}
		result.ConnectionsTransferred = transferred
	}

	if options.TransferClusters {
		updated, err := r.transferClusters(ctx, tenantID, primary.ID, secondary.ID)
		if err != nil {
			return nil, err
		}
		result.ClustersUpdated = updated
	}

	if err := r.notes.SoftDelete(ctx, tenantID, secondary.ID); err != nil {
		return nil, err
	}

	if err := r.candidates.UpdateStatus(ctx, tenantID, candidate.ID, models.CandidateStatusMerged); err != nil {
		return nil, err
	}

	// Other candidates referencing the absorbed note are meaningless now.
	if err := r.candidates.DeleteForNote(ctx, tenantID, secondary.ID, candidate.ID); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Resolver) applyContentStrategy(ctx context.Context, primary, secondary *models.Note, strategy string) error {
	switch strategy {
	case models.ContentStrategyKeepPrimary, models.ContentStrategyManual:
		return nil

	case models.ContentStrategyKeepSecondary:
		return r.notes.UpdateContent(ctx, primary.TenantID, primary.ID, secondary.Content)

	case models.ContentStrategyConcatenate:
		primaryTree, err := content.Parse(primary.Content)
		if err != nil {
			return err
		}
		secondaryTree, err := content.Parse(secondary.Content)
		if err != nil {
			return err
		}
		merged, err := content.Marshal(content.Concatenate(primaryTree, secondaryTree))
		if err != nil {
			return err
		}
		return r.notes.UpdateContent(ctx, primary.TenantID, primary.ID, merged)

	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown content strategy %s", strategy)
	}
}

// transferConnections rewrites every edge touching the secondary note onto
// the primary, skipping self-loops and duplicates, then removes all of the
// secondary's original edges.
func (r *Resolver) transferConnections(ctx context.Context, tenantID, primaryID, secondaryID string) (int, error) {
	edges, err := r.connections.GetForNote(ctx, tenantID, secondaryID)
	if err != nil {
		return 0, err
	}

	transferred := 0
	for _, edge := range edges {
		rewritten := edge
		rewritten.ID = ""
		if rewritten.SourceID == secondaryID {
			rewritten.SourceID = primaryID
		}
		if rewritten.TargetID == secondaryID {
			rewritten.TargetID = primaryID
		}

		if rewritten.SourceID == rewritten.TargetID {
			continue
		}

		existing, err := r.connections.GetBetween(ctx, tenantID, rewritten.SourceID, rewritten.TargetID)
		if err != nil {
			return 0, err
		}
		if hasEquivalent(existing, &rewritten) {
			continue
		}

		if err := r.connections.Create(ctx, &rewritten); err != nil {
			return 0, err
		}
		transferred++
	}

	// All original edges go, including the skipped ones. The secondary note
	// must end up with zero edges.
	for _, edge := range edges {
		if err := r.connections.Delete(ctx, tenantID, edge.ID); err != nil {
			return 0, err
		}
	}

	return transferred, nil
}

func hasEquivalent(existing []models.Connection, edge *models.Connection) bool {
	for _, e := range existing {
		if e.Type == edge.Type {
			return true
		}
	}
	return false
}

// transferClusters moves the secondary note's cluster memberships onto the
// primary note.
func (r *Resolver) transferClusters(ctx context.Context, tenantID, primaryID, secondaryID string) (int, error) {
	clusters, err := r.clusters.GetForNote(ctx, tenantID, secondaryID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, cluster := range clusters {
		isMember, err := r.clusters.IsMember(ctx, tenantID, cluster.ID, primaryID)
		if err != nil {
			return 0, err
		}
		if !isMember {
			if err := r.clusters.AddMember(ctx, tenantID, cluster.ID, primaryID, models.ClusterRoleParticipant); err != nil {
				return 0, err
			}
		}

		if err := r.clusters.RemoveMember(ctx, tenantID, cluster.ID, secondaryID); err != nil {
			return 0, err
		}
		updated++
	}

	return updated, nil
}

// Reject marks the candidate rejected. The graph is untouched.
func (r *Resolver) Reject(ctx context.Context, tenantID, candidateID string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Resolver.Reject")
	defer span.End()

	candidate, err := r.candidates.GetByID(ctx, tenantID, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "candidate %s not found", candidateID)
	}
	if candidate.Status == models.CandidateStatusMerged {
		return nil, httperror.NewHTTPError(http.StatusConflict, "candidate is already merged")
	}

	if err := r.candidates.UpdateStatus(ctx, tenantID, candidateID, models.CandidateStatusRejected); err != nil {
		return nil, err
	}
	candidate.Status = models.CandidateStatusRejected

	if r.emitter != nil {
		if err := r.emitter.EmitCandidateRejected(ctx, candidate); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit candidate rejected event")
		}
	}

	return candidate, nil
}

// Approve marks a pending candidate approved for a later merge call.
func (r *Resolver) Approve(ctx context.Context, tenantID, candidateID string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Resolver.Approve")
	defer span.End()

	candidate, err := r.candidates.GetByID(ctx, tenantID, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "candidate %s not found", candidateID)
	}
	if candidate.Status != models.CandidateStatusPending {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "candidate is %s, only pending candidates can be approved", candidate.Status)
	}

	if err := r.candidates.UpdateStatus(ctx, tenantID, candidateID, models.CandidateStatusApproved); err != nil {
		return nil, err
	}
	candidate.Status = models.CandidateStatusApproved

	return candidate, nil
}

// begin opens a transaction when a database is configured. The returned
// commit and rollback are no-ops otherwise.
func (r *Resolver) begin(ctx context.Context) (context.Context, func() error, func(), error) {
	if r.db == nil {
		return ctx, func() error { return nil }, func() {}, nil
	}

	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return ctx, nil, nil, err
	}

	commit := func() error { return tx.Commit(ctxTx) }
	rollback := func() { _ = tx.Rollback(ctxTx) }
	return ctxTx, commit, rollback, nil
}

// propagate mirrors the merge into the graph database and publishes the
// event. Failures here are logged and dropped.
func (r *Resolver) propagate(ctx context.Context, tenantID string, result *models.MergeResult) {
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id": result.SurvivorID,
		"merged_id":   result.MergedID,
	})

	if r.mirror != nil {
		if err := r.mirror.ApplyMerge(ctx, tenantID, result.SurvivorID, result.MergedID); err != nil {
			log.WithError(err).Warn("Failed to mirror merge to graph database")
		}
	}

	if r.emitter != nil {
		if err := r.emitter.EmitNoteMerged(ctx, tenantID, result); err != nil {
			log.WithError(err).Warn("Failed to emit note merged event")
		}
	}
}

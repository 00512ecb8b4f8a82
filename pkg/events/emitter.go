// Package events handles event emission for candidate lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for fern
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitCandidateCreated emits an event when the scan detects a new candidate
func (e *Emitter) EmitCandidateCreated(ctx context.Context, candidate *models.MergeCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidateCreated")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"candidate_id":   candidate.ID,
		"scores":         candidate.Scores(),
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.DedupeEvent{
		EventType: "candidate.created",
		TenantID:  candidate.TenantID,
		NoteAID:   candidate.NoteAID,
		NoteBID:   candidate.NoteBID,
		Data:      dataJSON,
	}

	if err := e.producer.PublishDedupeEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit candidate.created event")
		return err
	}

	return nil
}

// EmitCandidateRejected emits an event when a candidate is rejected
func (e *Emitter) EmitCandidateRejected(ctx context.Context, candidate *models.MergeCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidateRejected")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"candidate_id":   candidate.ID,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.DedupeEvent{
		EventType: "candidate.rejected",
		TenantID:  candidate.TenantID,
		NoteAID:   candidate.NoteAID,
		NoteBID:   candidate.NoteBID,
		Data:      dataJSON,
	}

	if err := e.producer.PublishDedupeEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit candidate.rejected event")
		return err
	}

	return nil
}

// EmitNoteMerged emits an event when a merge is resolved
func (e *Emitter) EmitNoteMerged(ctx context.Context, tenantID string, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitNoteMerged")
	defer span.End()

	data := map[string]any{
		"schema_version":          SchemaVersion,
		"connections_transferred": result.ConnectionsTransferred,
		"clusters_updated":        result.ClustersUpdated,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.DedupeEvent{
		EventType: "note.merged",
		TenantID:  tenantID,
		NoteAID:   result.SurvivorID,
		NoteBID:   result.MergedID,
		Data:      dataJSON,
	}

	if err := e.producer.PublishDedupeEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit note.merged event")
		return err
	}

	return nil
}

package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/internal/tracing"
)

// Mirror applies resolved merges to the graph mirror. The relational store is
// the source of truth; mirror writes are best effort.
type Mirror struct {
	client *Client
	logger ectologger.Logger
}

// NewMirror creates a new graph mirror
func NewMirror(client *Client, logger ectologger.Logger) *Mirror {
	return &Mirror{
		client: client,
		logger: logger,
	}
}

// ApplyMerge rewires the merged note's edges onto the survivor and tombstones
// the merged node. Self-loops are not created and duplicate edges collapse
// through MERGE.
func (m *Mirror) ApplyMerge(ctx context.Context, tenantID, survivorID, mergedID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Mirror.ApplyMerge")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"survivor_id": survivorID,
		"merged_id":   mergedID,
	})

	params := map[string]any{
		"tenant_id": tenantID,
		"survivor":  survivorID,
		"merged":    mergedID,
	}

	rewireOut := `
		MATCH (b:Note {id: $merged, tenant_id: $tenant_id})-[r:CONNECTED]->(c)
		WHERE c.id <> $survivor
		MATCH (a:Note {id: $survivor, tenant_id: $tenant_id})
		MERGE (a)-[n:CONNECTED {type: r.type}]->(c)
	`
	rewireIn := `
		MATCH (c)-[r:CONNECTED]->(b:Note {id: $merged, tenant_id: $tenant_id})
		WHERE c.id <> $survivor
		MATCH (a:Note {id: $survivor, tenant_id: $tenant_id})
		MERGE (c)-[n:CONNECTED {type: r.type}]->(a)
	`
	tombstone := `
		MATCH (b:Note {id: $merged, tenant_id: $tenant_id})
		OPTIONAL MATCH (b)-[r]-()
		DELETE r
		SET b.deleted_at = datetime()
	`

	_, err := m.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, cypher := range []string{rewireOut, rewireIn, tombstone} {
			result, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to apply merge to graph mirror")
		return fmt.Errorf("failed to apply merge to graph mirror: %w", err)
	}

	log.Debug("Applied merge to graph mirror")
	return nil
}

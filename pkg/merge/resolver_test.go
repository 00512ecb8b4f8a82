package merge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/content"
	"github.com/Ramsey-B/fern/pkg/models"
)

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

const testTenant = "tenant-1"

type fakeNoteStore struct {
	notes map[string]*models.Note
}

func (f *fakeNoteStore) GetByID(_ context.Context, _, id string) (*models.Note, error) {
	note, ok := f.notes[id]
	if !ok || note.DeletedAt != nil {
		return nil, nil
	}
	copied := *note
	return &copied, nil
}

func (f *fakeNoteStore) UpdateContent(_ context.Context, _, id string, raw json.RawMessage) error {
	f.notes[id].Content = raw
	return nil
}

func (f *fakeNoteStore) SoftDelete(_ context.Context, _, id string) error {
	now := time.Now().UTC()
	f.notes[id].DeletedAt = &now
	return nil
}

type fakeConnectionStore struct {
	edges []models.Connection
}

func (f *fakeConnectionStore) GetForNote(_ context.Context, _, noteID string) ([]models.Connection, error) {
	result := []models.Connection{}
	for _, e := range f.edges {
		if e.Touches(noteID) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeConnectionStore) GetBetween(_ context.Context, _, aID, bID string) ([]models.Connection, error) {
	result := []models.Connection{}
	for _, e := range f.edges {
		if (e.SourceID == aID && e.TargetID == bID) || (e.SourceID == bID && e.TargetID == aID) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeConnectionStore) Create(_ context.Context, connection *models.Connection) error {
	connection.ID = uuid.New().String()
	f.edges = append(f.edges, *connection)
	return nil
}

func (f *fakeConnectionStore) Delete(_ context.Context, _, id string) error {
	for i, e := range f.edges {
		if e.ID == id {
			f.edges = append(f.edges[:i], f.edges[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeClusterStore struct {
	clusters map[string]models.Cluster
	members  map[string][]string // clusterID -> noteIDs
}

func (f *fakeClusterStore) GetForNote(_ context.Context, _, noteID string) ([]models.Cluster, error) {
	result := []models.Cluster{}
	for clusterID, noteIDs := range f.members {
		for _, id := range noteIDs {
			if id == noteID {
				result = append(result, f.clusters[clusterID])
			}
		}
	}
	return result, nil
}

func (f *fakeClusterStore) IsMember(_ context.Context, _, clusterID, noteID string) (bool, error) {
	for _, id := range f.members[clusterID] {
		if id == noteID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClusterStore) AddMember(_ context.Context, _, clusterID, noteID, _ string) error {
	f.members[clusterID] = append(f.members[clusterID], noteID)
	return nil
}

func (f *fakeClusterStore) RemoveMember(_ context.Context, _, clusterID, noteID string) error {
	noteIDs := f.members[clusterID]
	for i, id := range noteIDs {
		if id == noteID {
			f.members[clusterID] = append(noteIDs[:i], noteIDs[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeCandidateStore struct {
	candidates map[string]*models.MergeCandidate
}

func (f *fakeCandidateStore) GetByID(_ context.Context, _, id string) (*models.MergeCandidate, error) {
	candidate, ok := f.candidates[id]
	if !ok {
		return nil, nil
	}
	copied := *candidate
	return &copied, nil
}

func (f *fakeCandidateStore) UpdateStatus(_ context.Context, _, id, status string) error {
	now := time.Now().UTC()
	f.candidates[id].Status = status
	f.candidates[id].ReviewedAt = &now
	return nil
}

func (f *fakeCandidateStore) DeleteForNote(_ context.Context, _, noteID, exceptID string) error {
	for id, c := range f.candidates {
		if id != exceptID && c.References(noteID) {
			delete(f.candidates, id)
		}
	}
	return nil
}

type fixture struct {
	notes       *fakeNoteStore
	connections *fakeConnectionStore
	clusters    *fakeClusterStore
	candidates  *fakeCandidateStore
	resolver    *Resolver
}

func noteDoc(text string) json.RawMessage {
	raw, _ := content.Marshal(content.Node{
		Type: content.NodeDoc,
		Content: []content.Node{
			{Type: content.NodeParagraph, Content: []content.Node{{Type: content.NodeText, Text: text}}},
		},
	})
	return raw
}

func newFixture() *fixture {
	f := &fixture{
		notes: &fakeNoteStore{notes: map[string]*models.Note{
			"note-a": {ID: "note-a", TenantID: testTenant, Title: "Quantum Computing Fundamentals", Content: noteDoc("primary body")},
			"note-b": {ID: "note-b", TenantID: testTenant, Title: "Quantum Computing Basics", Content: noteDoc("secondary body")},
			"note-c": {ID: "note-c", TenantID: testTenant, Title: "Linear Algebra", Content: noteDoc("unrelated")},
		}},
		connections: &fakeConnectionStore{},
		clusters: &fakeClusterStore{
			clusters: map[string]models.Cluster{},
			members:  map[string][]string{},
		},
		candidates: &fakeCandidateStore{candidates: map[string]*models.MergeCandidate{
			"cand-1": {
				ID:       "cand-1",
				TenantID: testTenant,
				NoteAID:  "note-a",
				NoteBID:  "note-b",
				Status:   models.CandidateStatusPending,
			},
		}},
	}
	f.resolver = NewResolver(testLogger, nil, f.notes, f.connections, f.clusters, f.candidates, nil, nil)
	return f
}

func defaultOptions() models.MergeOptions {
	return models.MergeOptions{
		PrimaryID:           "note-a",
		SecondaryID:         "note-b",
		ContentStrategy:     models.ContentStrategyKeepPrimary,
		TransferConnections: true,
		TransferClusters:    true,
	}
}

func TestMerge(t *testing.T) {
	t.Run("concatenate folds secondary content into the primary", func(t *testing.T) {
		f := newFixture()
		options := defaultOptions()
		options.ContentStrategy = models.ContentStrategyConcatenate

		result, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", options)

		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Equal(t, "note-a", result.SurvivorID)
		assert.Equal(t, "note-b", result.MergedID)

		tree, err := content.Parse(f.notes.notes["note-a"].Content)
		require.NoError(t, err)
		assert.Equal(t, "primary body\nMerged content\nsecondary body", content.PlainText(tree))

		assert.NotNil(t, f.notes.notes["note-b"].DeletedAt)
		assert.Equal(t, models.CandidateStatusMerged, f.candidates.candidates["cand-1"].Status)
	})

	t.Run("keep_secondary overwrites the primary content", func(t *testing.T) {
		f := newFixture()
		options := defaultOptions()
		options.ContentStrategy = models.ContentStrategyKeepSecondary

		_, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", options)

		require.NoError(t, err)
		tree, err := content.Parse(f.notes.notes["note-a"].Content)
		require.NoError(t, err)
		assert.Equal(t, "secondary body", content.PlainText(tree))
	})

	t.Run("keep_primary leaves the primary content untouched", func(t *testing.T) {
		f := newFixture()

		_, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", defaultOptions())

		require.NoError(t, err)
		tree, err := content.Parse(f.notes.notes["note-a"].Content)
		require.NoError(t, err)
		assert.Equal(t, "primary body", content.PlainText(tree))
	})

	t.Run("transfers connections and leaves the secondary with zero edges", func(t *testing.T) {
		f := newFixture()
		f.connections.edges = []models.Connection{
			// Rewrites to a-c.
			{ID: "e1", TenantID: testTenant, SourceID: "note-b", TargetID: "note-c", Type: "references"},
			// Becomes a self-loop, skipped.
			{ID: "e2", TenantID: testTenant, SourceID: "note-b", TargetID: "note-a", Type: "references"},
			// Pre-existing a-c edge of the same type makes e3 a duplicate.
			{ID: "e3", TenantID: testTenant, SourceID: "note-c", TargetID: "note-b", Type: "mentions"},
			{ID: "e4", TenantID: testTenant, SourceID: "note-a", TargetID: "note-c", Type: "mentions"},
		}

		result, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", defaultOptions())

		require.NoError(t, err)
		assert.Equal(t, 1, result.ConnectionsTransferred)

		for _, e := range f.connections.edges {
			assert.False(t, e.Touches("note-b"), "edge %s still touches the merged note", e.ID)
			assert.NotEqual(t, e.SourceID, e.TargetID, "edge %s is a self-loop", e.ID)
		}

		// e4 survived and exactly one new a-c edge was created from e1.
		between, err := f.connections.GetBetween(context.Background(), testTenant, "note-a", "note-c")
		require.NoError(t, err)
		assert.Len(t, between, 2)
	})

	t.Run("moves cluster memberships onto the primary", func(t *testing.T) {
		f := newFixture()
		f.clusters.clusters["cluster-1"] = models.Cluster{ID: "cluster-1", TenantID: testTenant, Name: "Physics"}
		f.clusters.clusters["cluster-2"] = models.Cluster{ID: "cluster-2", TenantID: testTenant, Name: "Reading"}
		f.clusters.members["cluster-1"] = []string{"note-b"}
		f.clusters.members["cluster-2"] = []string{"note-a", "note-b"}

		result, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", defaultOptions())

		require.NoError(t, err)
		assert.Equal(t, 2, result.ClustersUpdated)
		assert.Equal(t, []string{"note-a"}, f.clusters.members["cluster-1"])
		assert.Equal(t, []string{"note-a"}, f.clusters.members["cluster-2"])
	})

	t.Run("cascades away other candidates referencing the merged note", func(t *testing.T) {
		f := newFixture()
		f.candidates.candidates["cand-2"] = &models.MergeCandidate{
			ID: "cand-2", TenantID: testTenant, NoteAID: "note-b", NoteBID: "note-c",
			Status: models.CandidateStatusPending,
		}
		f.candidates.candidates["cand-3"] = &models.MergeCandidate{
			ID: "cand-3", TenantID: testTenant, NoteAID: "note-a", NoteBID: "note-c",
			Status: models.CandidateStatusPending,
		}

		_, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", defaultOptions())

		require.NoError(t, err)
		assert.Contains(t, f.candidates.candidates, "cand-1")
		assert.NotContains(t, f.candidates.candidates, "cand-2")
		assert.Contains(t, f.candidates.candidates, "cand-3")
	})

	t.Run("missing note is reported in the result", func(t *testing.T) {
		f := newFixture()
		delete(f.notes.notes, "note-b")

		result, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", defaultOptions())

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "Note not found", result.Error)
		assert.Equal(t, models.CandidateStatusPending, f.candidates.candidates["cand-1"].Status)
	})

	t.Run("unknown candidate is a not found error", func(t *testing.T) {
		f := newFixture()

		_, err := f.resolver.Merge(context.Background(), testTenant, "missing", defaultOptions())

		assert.Error(t, err)
	})

	t.Run("pair outside the candidate is rejected", func(t *testing.T) {
		f := newFixture()
		options := defaultOptions()
		options.SecondaryID = "note-c"

		_, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", options)

		assert.Error(t, err)
	})

	t.Run("already merged candidate cannot be merged again", func(t *testing.T) {
		f := newFixture()
		f.candidates.candidates["cand-1"].Status = models.CandidateStatusMerged

		_, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", defaultOptions())

		assert.Error(t, err)
	})

	t.Run("secondary can be the candidate's first note", func(t *testing.T) {
		f := newFixture()
		options := models.MergeOptions{
			PrimaryID:       "note-b",
			SecondaryID:     "note-a",
			ContentStrategy: models.ContentStrategyKeepPrimary,
		}

		result, err := f.resolver.Merge(context.Background(), testTenant, "cand-1", options)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "note-b", result.SurvivorID)
		assert.NotNil(t, f.notes.notes["note-a"].DeletedAt)
	})
}

func TestReject(t *testing.T) {
	t.Run("sets the status and leaves the graph unchanged", func(t *testing.T) {
		f := newFixture()
		f.connections.edges = []models.Connection{
			{ID: "e1", TenantID: testTenant, SourceID: "note-b", TargetID: "note-c", Type: "references"},
		}

		candidate, err := f.resolver.Reject(context.Background(), testTenant, "cand-1")

		require.NoError(t, err)
		assert.Equal(t, models.CandidateStatusRejected, candidate.Status)
		assert.NotNil(t, f.candidates.candidates["cand-1"].ReviewedAt)
		assert.Nil(t, f.notes.notes["note-b"].DeletedAt)
		assert.Len(t, f.connections.edges, 1)
	})

	t.Run("unknown candidate is a not found error", func(t *testing.T) {
		f := newFixture()

		_, err := f.resolver.Reject(context.Background(), testTenant, "missing")

		assert.Error(t, err)
	})
}

func TestApprove(t *testing.T) {
	t.Run("pending candidates can be approved", func(t *testing.T) {
		f := newFixture()

		candidate, err := f.resolver.Approve(context.Background(), testTenant, "cand-1")

		require.NoError(t, err)
		assert.Equal(t, models.CandidateStatusApproved, candidate.Status)
	})

	t.Run("rejected candidates cannot be approved", func(t *testing.T) {
		f := newFixture()
		f.candidates.candidates["cand-1"].Status = models.CandidateStatusRejected

		_, err := f.resolver.Approve(context.Background(), testTenant, "cand-1")

		assert.Error(t, err)
	})
}

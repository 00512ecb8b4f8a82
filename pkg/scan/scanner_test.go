package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/content"
	"github.com/Ramsey-B/fern/pkg/models"
)

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

const testTenant = "tenant-1"

func testNote(id, title, text string) models.Note {
	raw, _ := content.Marshal(content.Node{
		Type: content.NodeDoc,
		Content: []content.Node{
			{Type: content.NodeParagraph, Content: []content.Node{{Type: content.NodeText, Text: text}}},
		},
	})
	return models.Note{ID: id, TenantID: testTenant, Title: title, Content: raw}
}

type fakeNoteStore struct {
	notes  []models.Note
	getErr error
}

func (f *fakeNoteStore) GetAll(_ context.Context, _ string) ([]models.Note, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return append([]models.Note{}, f.notes...), nil
}

func (f *fakeNoteStore) GetByID(_ context.Context, _, id string) (*models.Note, error) {
	for i := range f.notes {
		if f.notes[i].ID == id {
			note := f.notes[i]
			return &note, nil
		}
	}
	return nil, nil
}

type fakeEmbeddingStore struct {
	vectors map[string][]float32
}

func (f *fakeEmbeddingStore) GetForNote(_ context.Context, _, noteID string) ([]float32, error) {
	return f.vectors[noteID], nil
}

type fakeCandidateStore struct {
	mu         sync.Mutex
	candidates []models.MergeCandidate
	createErr  error
}

func (f *fakeCandidateStore) Exists(_ context.Context, _, noteAID, noteBID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.candidates {
		if (c.NoteAID == noteAID && c.NoteBID == noteBID) || (c.NoteAID == noteBID && c.NoteBID == noteAID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCandidateStore) Create(_ context.Context, tenantID, noteAID, noteBID string, scores models.SimilarityScores) (*models.MergeCandidate, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}

	if noteBID < noteAID {
		noteAID, noteBID = noteBID, noteAID
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	candidate := models.MergeCandidate{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		NoteAID:        noteAID,
		NoteBID:        noteBID,
		TitleScore:     scores.Title,
		ContentScore:   scores.Content,
		EmbeddingScore: scores.Embedding,
		CombinedScore:  scores.Combined,
		Status:         models.CandidateStatusPending,
		DetectedAt:     time.Now().UTC(),
	}
	f.candidates = append(f.candidates, candidate)
	return &candidate, nil
}

func newTestScanner(notes *fakeNoteStore, candidates *fakeCandidateStore, vectors map[string][]float32) *Scanner {
	if vectors == nil {
		vectors = map[string][]float32{}
	}
	return NewScanner(testLogger, notes, &fakeEmbeddingStore{vectors: vectors}, candidates, nil, DefaultConfig())
}

func TestScanAll(t *testing.T) {
	t.Run("creates a candidate for near-duplicate notes", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "Quantum Computing Fundamentals", "Qubits, superposition and entanglement explained for beginners."),
			testNote("note-2", "Quantum Computing Basics", "Qubits, superposition and entanglement explained for beginners!"),
			testNote("note-3", "Sourdough Starter Log", "Day 4: bubbles forming, fed 50g flour and 50g water."),
		}}
		candidates := &fakeCandidateStore{}
		scanner := newTestScanner(notes, candidates, nil)

		progress, err := scanner.ScanAll(context.Background(), testTenant, nil)

		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusComplete, progress.Status)
		assert.Equal(t, 3, progress.TotalNotes)
		assert.Equal(t, 3, progress.NotesScanned)
		assert.Equal(t, 1, progress.CandidatesFound)
		require.Len(t, candidates.candidates, 1)
		created := candidates.candidates[0]
		assert.Equal(t, "note-1", created.NoteAID)
		assert.Equal(t, "note-2", created.NoteBID)
		assert.Equal(t, models.CandidateStatusPending, created.Status)
		assert.GreaterOrEqual(t, created.CombinedScore, 0.85)
		require.NotNil(t, progress.CompletedAt)
	})

	t.Run("is idempotent across runs", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "Quantum Computing Fundamentals", "Qubits, superposition and entanglement explained."),
			testNote("note-2", "Quantum Computing Basics", "Qubits, superposition and entanglement explained."),
		}}
		candidates := &fakeCandidateStore{}
		scanner := newTestScanner(notes, candidates, nil)

		first, err := scanner.ScanAll(context.Background(), testTenant, nil)
		require.NoError(t, err)
		require.Equal(t, 1, first.CandidatesFound)

		second, err := scanner.ScanAll(context.Background(), testTenant, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, second.CandidatesFound)
		assert.Len(t, candidates.candidates, 1)
	})

	t.Run("uses embeddings when both notes have them", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "Reading List", "Books to read this year."),
			testNote("note-2", "Books To Read", "Books to read this year."),
		}}
		candidates := &fakeCandidateStore{}
		vectors := map[string][]float32{
			"note-1": {0.1, 0.9, 0.3},
			"note-2": {0.1, 0.9, 0.3},
		}
		scanner := newTestScanner(notes, candidates, vectors)

		_, err := scanner.ScanAll(context.Background(), testTenant, nil)

		require.NoError(t, err)
		require.Len(t, candidates.candidates, 1)
		assert.InDelta(t, 1.0, candidates.candidates[0].EmbeddingScore, 1e-9)
	})

	t.Run("reports progress after each outer note", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "A", "alpha"),
			testNote("note-2", "B", "beta"),
			testNote("note-3", "C", "gamma"),
		}}
		scanner := newTestScanner(notes, &fakeCandidateStore{}, nil)

		scanned := []int{}
		_, err := scanner.ScanAll(context.Background(), testTenant, func(p models.ScanProgress) {
			scanned = append(scanned, p.NotesScanned)
		})

		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, scanned)
	})

	t.Run("rejects a second concurrent scan", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{})
		notes := &blockingNoteStore{release: release, started: started}
		scanner := newTestScanner(nil, &fakeCandidateStore{}, nil)
		scanner.notes = notes

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = scanner.ScanAll(context.Background(), testTenant, nil)
		}()

		<-started
		_, err := scanner.ScanAll(context.Background(), testTenant, nil)
		assert.ErrorIs(t, err, ErrScanActive)

		close(release)
		<-done

		// The slot frees up once the first scan finishes.
		_, err = scanner.ScanAll(context.Background(), testTenant, nil)
		assert.NoError(t, err)
	})

	t.Run("abort stops the scan and keeps persisted candidates", func(t *testing.T) {
		noteList := []models.Note{}
		for _, id := range []string{"a", "b", "c", "d"} {
			noteList = append(noteList, testNote("note-"+id, "Weekly Review "+id, "Review of the week number "+id+"."))
		}
		notes := &fakeNoteStore{notes: noteList}
		candidates := &fakeCandidateStore{}
		scanner := newTestScanner(notes, candidates, nil)

		progress, err := scanner.ScanAll(context.Background(), testTenant, func(p models.ScanProgress) {
			if p.NotesScanned == 1 {
				require.True(t, scanner.Abort())
			}
		})

		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusIdle, progress.Status)
		assert.Equal(t, 1, progress.NotesScanned)
		assert.Nil(t, progress.CompletedAt)
		// Whatever was found before the abort stays.
		assert.Equal(t, progress.CandidatesFound, len(candidates.candidates))
	})

	t.Run("store errors set the error status and message", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "Same Title", "same text"),
			testNote("note-2", "Same Title", "same text"),
		}}
		candidates := &fakeCandidateStore{createErr: errors.New("connection refused")}
		scanner := newTestScanner(notes, candidates, nil)

		progress, err := scanner.ScanAll(context.Background(), testTenant, nil)

		require.Error(t, err)
		assert.Equal(t, models.ScanStatusError, progress.Status)
		assert.Contains(t, progress.Error, "connection refused")
		assert.Equal(t, progress, scanner.Progress())
	})

	t.Run("abort returns false when idle", func(t *testing.T) {
		scanner := newTestScanner(&fakeNoteStore{}, &fakeCandidateStore{}, nil)

		assert.False(t, scanner.Abort())
	})
}

type blockingNoteStore struct {
	release   chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func (b *blockingNoteStore) GetAll(ctx context.Context, _ string) ([]models.Note, error) {
	b.startOnce.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func (b *blockingNoteStore) GetByID(_ context.Context, _, _ string) (*models.Note, error) {
	return nil, nil
}

func TestScanNote(t *testing.T) {
	t.Run("returns new candidates for the target note only", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "Quantum Computing Fundamentals", "Qubits, superposition and entanglement explained."),
			testNote("note-2", "Quantum Computing Basics", "Qubits, superposition and entanglement explained."),
			testNote("note-3", "Grocery List", "Eggs, milk, flour."),
		}}
		candidates := &fakeCandidateStore{}
		scanner := newTestScanner(notes, candidates, nil)

		created, err := scanner.ScanNote(context.Background(), testTenant, "note-1")

		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.True(t, created[0].References("note-1"))
		assert.True(t, created[0].References("note-2"))
	})

	t.Run("skips pairs that already have a candidate", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "Same Title", "same text"),
			testNote("note-2", "Same Title", "same text"),
		}}
		candidates := &fakeCandidateStore{}
		scanner := newTestScanner(notes, candidates, nil)

		_, err := scanner.ScanNote(context.Background(), testTenant, "note-1")
		require.NoError(t, err)

		created, err := scanner.ScanNote(context.Background(), testTenant, "note-2")

		require.NoError(t, err)
		assert.Empty(t, created)
		assert.Len(t, candidates.candidates, 1)
	})

	t.Run("missing note is an error", func(t *testing.T) {
		scanner := newTestScanner(&fakeNoteStore{}, &fakeCandidateStore{}, nil)

		_, err := scanner.ScanNote(context.Background(), testTenant, "missing")

		assert.Error(t, err)
	})

	t.Run("does not touch scan progress", func(t *testing.T) {
		notes := &fakeNoteStore{notes: []models.Note{
			testNote("note-1", "Same Title", "same text"),
			testNote("note-2", "Same Title", "same text"),
		}}
		scanner := newTestScanner(notes, &fakeCandidateStore{}, nil)

		_, err := scanner.ScanNote(context.Background(), testTenant, "note-1")

		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusIdle, scanner.Progress().Status)
	})
}

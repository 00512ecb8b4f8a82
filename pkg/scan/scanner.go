// Package scan implements the pairwise duplicate scan over the note graph.
package scan

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/content"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// ErrScanActive is returned when a scan is requested while one is running.
var ErrScanActive = errors.New("a scan is already running")

// NoteStore provides the note snapshot the scan runs over.
type NoteStore interface {
	GetAll(ctx context.Context, tenantID string) ([]models.Note, error)
	GetByID(ctx context.Context, tenantID, id string) (*models.Note, error)
}

// EmbeddingStore resolves the embedding vector for a note. A nil vector means
// no embedding exists.
type EmbeddingStore interface {
	GetForNote(ctx context.Context, tenantID, noteID string) ([]float32, error)
}

// CandidateStore persists scored pairs. Create canonicalizes the pair order
// and Exists is order-independent.
type CandidateStore interface {
	Exists(ctx context.Context, tenantID, noteAID, noteBID string) (bool, error)
	Create(ctx context.Context, tenantID, noteAID, noteBID string, scores models.SimilarityScores) (*models.MergeCandidate, error)
}

// Emitter publishes candidate lifecycle events. Emission failures do not fail
// the scan.
type Emitter interface {
	EmitCandidateCreated(ctx context.Context, candidate *models.MergeCandidate) error
}

// Config contains configuration for the scanner
type Config struct {
	Weights   models.SimilarityWeights
	Threshold float64
}

// DefaultConfig returns the default scan configuration
func DefaultConfig() Config {
	return Config{
		Weights:   models.DefaultWeights(),
		Threshold: 0.85,
	}
}

// Scanner runs the O(n²) pairwise comparison and tracks its progress. Only
// one full scan may run at a time per Scanner.
type Scanner struct {
	logger     ectologger.Logger
	notes      NoteStore
	embeddings EmbeddingStore
	candidates CandidateStore
	emitter    Emitter
	scorer     *similarity.Scorer
	config     Config

	active atomic.Bool

	mu       sync.Mutex
	progress models.ScanProgress
	cancel   context.CancelFunc

	// createMu serializes the exists/create window for incremental scans so
	// concurrent calls cannot race the same pair past the dedup check.
	createMu sync.Mutex
}

// NewScanner creates a new Scanner. The emitter may be nil.
func NewScanner(
	logger ectologger.Logger,
	notes NoteStore,
	embeddings EmbeddingStore,
	candidates CandidateStore,
	emitter Emitter,
	config Config,
) *Scanner {
	return &Scanner{
		logger:     logger,
		notes:      notes,
		embeddings: embeddings,
		candidates: candidates,
		emitter:    emitter,
		scorer:     similarity.NewScorer(),
		config:     config,
		progress:   models.ScanProgress{Status: models.ScanStatusIdle},
	}
}

// Running reports whether a full scan is in flight.
func (s *Scanner) Running() bool {
	return s.active.Load()
}

// Progress returns a snapshot of the current scan state.
func (s *Scanner) Progress() models.ScanProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Abort cancels the running scan, if any. Candidates already persisted are
// kept. Returns false when no scan was running.
func (s *Scanner) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// ScanAll compares every unordered pair of notes in the tenant's snapshot,
// persisting a candidate for each new pair at or above the threshold.
// onProgress, if set, is called after each outer-loop note. Returns
// ErrScanActive if a scan is already running.
func (s *Scanner) ScanAll(ctx context.Context, tenantID string, onProgress func(models.ScanProgress)) (models.ScanProgress, error) {
	if !s.active.CompareAndSwap(false, true) {
		return s.Progress(), ErrScanActive
	}
	defer s.active.Store(false)

	ctx, span := tracing.StartSpan(ctx, "scan.Scanner.ScanAll")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now().UTC()
	s.mu.Lock()
	s.cancel = cancel
	s.progress = models.ScanProgress{
		Status:    models.ScanStatusScanning,
		StartedAt: &started,
	}
	s.mu.Unlock()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID})
	log.Info("Starting full scan")

	progress, err := s.run(ctx, tenantID, onProgress)

	s.mu.Lock()
	s.cancel = nil
	s.progress = progress
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).Error("Scan failed")
		return progress, err
	}

	log.WithFields(map[string]any{
		"notes_scanned":    progress.NotesScanned,
		"candidates_found": progress.CandidatesFound,
		"status":           progress.Status,
	}).Info("Scan finished")

	return progress, nil
}

func (s *Scanner) run(ctx context.Context, tenantID string, onProgress func(models.ScanProgress)) (models.ScanProgress, error) {
	progress := s.Progress()

	fail := func(err error) (models.ScanProgress, error) {
		progress.Status = models.ScanStatusError
		progress.Error = err.Error()
		return progress, err
	}

	// Stable snapshot. Notes created mid-scan are picked up by the next run.
	notes, err := s.notes.GetAll(ctx, tenantID)
	if err != nil {
		return fail(errors.Wrap(err, "failed to load note snapshot"))
	}

	progress.TotalNotes = len(notes)
	s.setProgress(progress)

	entities := make([]similarity.Entity, len(notes))
	for i, note := range notes {
		entity, err := s.buildEntity(ctx, tenantID, &note)
		if err != nil {
			return fail(err)
		}
		entities[i] = entity
	}

	for i := range entities {
		// Cancellation is polled once per outer note, not per pair.
		if ctx.Err() != nil {
			progress.Status = models.ScanStatusIdle
			return progress, nil
		}

		for j := i + 1; j < len(entities); j++ {
			created, err := s.scorePair(ctx, tenantID, entities[i], entities[j])
			if err != nil {
				return fail(err)
			}
			if created != nil {
				progress.CandidatesFound++
				s.emitCreated(ctx, created)
			}
		}

		progress.NotesScanned = i + 1
		s.setProgress(progress)
		if onProgress != nil {
			onProgress(progress)
		}
	}

	completed := time.Now().UTC()
	progress.Status = models.ScanStatusComplete
	progress.CompletedAt = &completed
	return progress, nil
}

// ScanNote compares one note against every other note in the tenant and
// returns the candidates it created. Progress state is untouched.
func (s *Scanner) ScanNote(ctx context.Context, tenantID, noteID string) ([]models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "scan.Scanner.ScanNote")
	defer span.End()

	note, err := s.notes.GetByID(ctx, tenantID, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "note %s not found", noteID)
	}

	target, err := s.buildEntity(ctx, tenantID, note)
	if err != nil {
		return nil, err
	}

	others, err := s.notes.GetAll(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load note snapshot")
	}

	created := []models.MergeCandidate{}
	for i := range others {
		if others[i].ID == noteID {
			continue
		}

		other, err := s.buildEntity(ctx, tenantID, &others[i])
		if err != nil {
			return nil, err
		}

		candidate, err := s.scorePair(ctx, tenantID, target, other)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			created = append(created, *candidate)
			s.emitCreated(ctx, candidate)
		}
	}

	return created, nil
}

// scorePair scores one pair and persists a candidate when the combined score
// clears the threshold and no candidate exists for the pair yet. Returns the
// created candidate or nil.
func (s *Scanner) scorePair(ctx context.Context, tenantID string, a, b similarity.Entity) (*models.MergeCandidate, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	exists, err := s.candidates.Exists(ctx, tenantID, a.ID, b.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check for existing candidate")
	}
	if exists {
		return nil, nil
	}

	scores := s.scorer.Score(a, b, s.config.Weights)
	if scores.Combined < s.config.Threshold {
		return nil, nil
	}

	candidate, err := s.candidates.Create(ctx, tenantID, a.ID, b.ID, scores)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create candidate")
	}

	return candidate, nil
}

func (s *Scanner) buildEntity(ctx context.Context, tenantID string, note *models.Note) (similarity.Entity, error) {
	tree, err := content.Parse(note.Content)
	if err != nil {
		return similarity.Entity{}, errors.Wrapf(err, "failed to parse content for note %s", note.ID)
	}

	embedding, err := s.embeddings.GetForNote(ctx, tenantID, note.ID)
	if err != nil {
		return similarity.Entity{}, errors.Wrapf(err, "failed to load embedding for note %s", note.ID)
	}

	return similarity.Entity{
		ID:        note.ID,
		Title:     note.Title,
		Excerpt:   content.Excerpt(tree, content.ScoringExcerptLength),
		Embedding: embedding,
	}, nil
}

func (s *Scanner) setProgress(progress models.ScanProgress) {
	s.mu.Lock()
	s.progress = progress
	s.mu.Unlock()
}

func (s *Scanner) emitCreated(ctx context.Context, candidate *models.MergeCandidate) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitCandidateCreated(ctx, candidate); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": candidate.ID,
		}).Warn("Failed to emit candidate created event")
	}
}

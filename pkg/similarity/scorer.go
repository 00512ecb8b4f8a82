// Package similarity scores pairs of notes. All scores are in [0, 1].
package similarity

import (
	"math"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Entity is the comparable projection of a note: its title, the plain-text
// excerpt of its content, and its embedding vector if one exists.
type Entity struct {
	ID        string
	Title     string
	Excerpt   string
	Embedding []float32
}

// HasEmbedding reports whether the entity carries an embedding vector.
func (e Entity) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// Scorer provides the string and vector comparison algorithms
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score compares two entities signal by signal and combines the results using
// the given weights. Titles are compared with Jaro-Winkler, content excerpts
// with normalized Levenshtein, embeddings with cosine similarity. If either
// embedding is missing, the embedding weight is redistributed proportionally
// across the remaining signals.
func (s *Scorer) Score(a, b Entity, weights models.SimilarityWeights) models.SimilarityScores {
	scores := models.SimilarityScores{
		Title:   s.JaroWinkler(normalize(a.Title), normalize(b.Title)),
		Content: s.Levenshtein(normalize(a.Excerpt), normalize(b.Excerpt)),
	}

	hasEmbeddings := a.HasEmbedding() && b.HasEmbedding()
	if hasEmbeddings {
		scores.Embedding = s.Cosine(a.Embedding, b.Embedding)
	}

	scores.Combined = s.Combine(scores, weights, hasEmbeddings)
	return scores
}

// Combine applies the weights to the per-signal scores. When the embedding
// signal is unavailable its weight is split across title and content in
// proportion to their own weights. If both remaining weights are zero the
// combined score is 0.
func (s *Scorer) Combine(scores models.SimilarityScores, weights models.SimilarityWeights, hasEmbeddings bool) float64 {
	if hasEmbeddings {
		return scores.Title*weights.Title + scores.Content*weights.Content + scores.Embedding*weights.Embedding
	}

	remaining := weights.Title + weights.Content
	if remaining == 0 {
		return 0.0
	}

	return scores.Title*(weights.Title/remaining) + scores.Content*(weights.Content/remaining)
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	// Winkler scaling factor is typically 0.1
	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	// Maximum distance for character matching
	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	// Find matches
	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions
	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Levenshtein calculates the Levenshtein distance between two strings
// Returns a similarity score between 0.0 and 1.0
func (s *Scorer) Levenshtein(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create two rows for dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// Cosine calculates the cosine similarity between two embedding vectors.
// Mismatched lengths and zero-magnitude vectors score 0. Negative similarity
// is clamped to 0 to keep combined scores in [0, 1].
func (s *Scorer) Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0.0
	}
	return cos
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

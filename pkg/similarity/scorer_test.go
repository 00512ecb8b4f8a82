package similarity

import (
	"testing"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
		delta    float64
	}{
		{
			name:     "identical strings",
			a:        "quantum computing",
			b:        "quantum computing",
			expected: 1.0,
			delta:    0,
		},
		{
			name:     "both empty",
			a:        "",
			b:        "",
			expected: 1.0,
			delta:    0,
		},
		{
			name:     "one empty",
			a:        "quantum",
			b:        "",
			expected: 0.0,
			delta:    0,
		},
		{
			name:     "completely different",
			a:        "abc",
			b:        "xyz",
			expected: 0.0,
			delta:    0,
		},
		{
			name:     "shared prefix boosts the score",
			a:        "martha",
			b:        "marhta",
			expected: 0.961,
			delta:    0.001,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.InDelta(t, test.expected, scorer.JaroWinkler(test.a, test.b), test.delta)
		})
	}

	t.Run("is symmetric", func(t *testing.T) {
		assert.Equal(t, scorer.JaroWinkler("dwayne", "duane"), scorer.JaroWinkler("duane", "dwayne"))
	})
}

func TestLevenshtein(t *testing.T) {
	scorer := NewScorer()

	t.Run("identical strings score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Levenshtein("same text", "same text"))
	})

	t.Run("both empty score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Levenshtein("", ""))
	})

	t.Run("one empty scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Levenshtein("abcd", ""))
	})

	t.Run("normalizes by the longer length", func(t *testing.T) {
		// distance 1 over max length 7
		assert.InDelta(t, 1.0-1.0/7.0, scorer.Levenshtein("kitten", "kittens"), 1e-9)
	})

	t.Run("is symmetric", func(t *testing.T) {
		assert.Equal(t, scorer.Levenshtein("kitten", "sitting"), scorer.Levenshtein("sitting", "kitten"))
	})

	t.Run("distance matches known values", func(t *testing.T) {
		assert.Equal(t, 3, scorer.LevenshteinDistance("kitten", "sitting"))
		assert.Equal(t, 0, scorer.LevenshteinDistance("flaw", "flaw"))
		assert.Equal(t, 4, scorer.LevenshteinDistance("", "flaw"))
	})
}

func TestCosine(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{0.5, 0.5, 0.5},
			b:        []float32{0.5, 0.5, 0.5},
			expected: 1.0,
		},
		{
			name:     "orthogonal unit vectors",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite vectors clamp to zero",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: 0.0,
		},
		{
			name:     "mismatched lengths",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0},
			expected: 0.0,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0},
			b:        []float32{1, 1},
			expected: 0.0,
		},
		{
			name:     "empty vectors",
			a:        nil,
			b:        nil,
			expected: 0.0,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.InDelta(t, test.expected, scorer.Cosine(test.a, test.b), 1e-9)
		})
	}

	t.Run("is symmetric", func(t *testing.T) {
		a := []float32{0.1, 0.7, 0.2}
		b := []float32{0.4, 0.3, 0.9}
		assert.Equal(t, scorer.Cosine(a, b), scorer.Cosine(b, a))
	})
}

func TestScore(t *testing.T) {
	scorer := NewScorer()
	weights := models.DefaultWeights()

	t.Run("combines all three signals when both embeddings exist", func(t *testing.T) {
		a := Entity{Title: "Quantum Computing", Excerpt: "qubits and gates", Embedding: []float32{1, 0}}
		b := Entity{Title: "Quantum Computing", Excerpt: "qubits and gates", Embedding: []float32{1, 0}}

		scores := scorer.Score(a, b, weights)

		assert.Equal(t, 1.0, scores.Title)
		assert.Equal(t, 1.0, scores.Content)
		assert.Equal(t, 1.0, scores.Embedding)
		assert.InDelta(t, 1.0, scores.Combined, 1e-9)
	})

	t.Run("redistributes the embedding weight when one side lacks a vector", func(t *testing.T) {
		a := Entity{Title: "Quantum Computing Fundamentals", Excerpt: "an introduction to qubits", Embedding: []float32{1, 0}}
		b := Entity{Title: "Quantum Computing Basics", Excerpt: "an introduction to qubits!"}

		scores := scorer.Score(a, b, weights)

		assert.Zero(t, scores.Embedding)
		expected := scores.Title*0.6 + scores.Content*0.4
		assert.InDelta(t, expected, scores.Combined, 1e-9)
	})

	t.Run("combined is 0 when only the embedding weight is set and embeddings are missing", func(t *testing.T) {
		a := Entity{Title: "same", Excerpt: "same"}
		b := Entity{Title: "same", Excerpt: "same"}

		scores := scorer.Score(a, b, models.SimilarityWeights{Embedding: 1})

		assert.Zero(t, scores.Combined)
	})

	t.Run("title comparison ignores case and surrounding whitespace", func(t *testing.T) {
		a := Entity{Title: "  Quantum Computing "}
		b := Entity{Title: "quantum computing"}

		scores := scorer.Score(a, b, weights)

		assert.Equal(t, 1.0, scores.Title)
	})

	t.Run("is symmetric across all signals", func(t *testing.T) {
		a := Entity{Title: "Graph Databases", Excerpt: "nodes and edges", Embedding: []float32{0.2, 0.8}}
		b := Entity{Title: "Graph Stores", Excerpt: "nodes, edges, labels", Embedding: []float32{0.6, 0.4}}

		ab := scorer.Score(a, b, weights)
		ba := scorer.Score(b, a, weights)

		assert.Equal(t, ab, ba)
	})

	t.Run("near-duplicate notes without embeddings clear the default threshold", func(t *testing.T) {
		excerpt := "Quantum computing uses qubits, superposition and entanglement to perform computation."
		a := Entity{Title: "Quantum Computing Fundamentals", Excerpt: excerpt}
		b := Entity{Title: "Quantum Computing Basics", Excerpt: excerpt + " Draft."}

		scores := scorer.Score(a, b, weights)

		assert.Greater(t, scores.Title, 0.85)
		assert.Greater(t, scores.Content, 0.9)
		assert.GreaterOrEqual(t, scores.Combined, 0.85)
	})
}

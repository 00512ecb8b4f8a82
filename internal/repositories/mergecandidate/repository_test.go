package mergecandidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPair(t *testing.T) {
	tests := []struct {
		name      string
		aID       string
		bID       string
		expectedA string
		expectedB string
	}{
		{
			name:      "already ordered",
			aID:       "note-1",
			bID:       "note-2",
			expectedA: "note-1",
			expectedB: "note-2",
		},
		{
			name:      "swaps when out of order",
			aID:       "note-2",
			bID:       "note-1",
			expectedA: "note-1",
			expectedB: "note-2",
		},
		{
			name:      "uuid pairs order lexicographically",
			aID:       "b3d9f1a0-0000-0000-0000-000000000000",
			bID:       "a1c2e3d4-0000-0000-0000-000000000000",
			expectedA: "a1c2e3d4-0000-0000-0000-000000000000",
			expectedB: "b3d9f1a0-0000-0000-0000-000000000000",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a, b := CanonicalPair(test.aID, test.bID)
			assert.Equal(t, test.expectedA, a)
			assert.Equal(t, test.expectedB, b)
		})
	}

	t.Run("is order independent", func(t *testing.T) {
		a1, b1 := CanonicalPair("x", "y")
		a2, b2 := CanonicalPair("y", "x")
		assert.Equal(t, a1, a2)
		assert.Equal(t, b1, b2)
	})
}

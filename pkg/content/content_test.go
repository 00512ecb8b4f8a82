package content

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(children ...Node) Node {
	return Node{Type: NodeDoc, Content: children}
}

func paragraph(text string) Node {
	return Node{Type: NodeParagraph, Content: []Node{{Type: NodeText, Text: text}}}
}

func TestParse(t *testing.T) {
	t.Run("parses a document tree", func(t *testing.T) {
		raw := json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}`)

		node, err := Parse(raw)

		require.NoError(t, err)
		assert.Equal(t, NodeDoc, node.Type)
		require.Len(t, node.Content, 1)
		assert.Equal(t, NodeParagraph, node.Content[0].Type)
	})

	t.Run("empty payload parses to an empty doc", func(t *testing.T) {
		node, err := Parse(nil)

		require.NoError(t, err)
		assert.Equal(t, NodeDoc, node.Type)
		assert.Empty(t, node.Content)
	})

	t.Run("null payload parses to an empty doc", func(t *testing.T) {
		node, err := Parse(json.RawMessage(`null`))

		require.NoError(t, err)
		assert.Equal(t, NodeDoc, node.Type)
	})

	t.Run("invalid json is an error", func(t *testing.T) {
		_, err := Parse(json.RawMessage(`{not json`))

		assert.Error(t, err)
	})
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		expected string
	}{
		{
			name:     "empty doc",
			node:     EmptyDoc(),
			expected: "",
		},
		{
			name:     "single paragraph",
			node:     doc(paragraph("hello world")),
			expected: "hello world",
		},
		{
			name:     "paragraphs are separated by newlines",
			node:     doc(paragraph("first"), paragraph("second")),
			expected: "first\nsecond",
		},
		{
			name: "adjacent text leaves are concatenated",
			node: doc(Node{Type: NodeParagraph, Content: []Node{
				{Type: NodeText, Text: "hello "},
				{Type: NodeText, Text: "world"},
			}}),
			expected: "hello world",
		},
		{
			name: "nested lists fold in document order",
			node: doc(
				Node{Type: NodeHeading, Level: 1, Content: []Node{{Type: NodeText, Text: "Title"}}},
				Node{Type: NodeBulletList, Content: []Node{
					{Type: NodeListItem, Content: []Node{paragraph("one")}},
					{Type: NodeListItem, Content: []Node{paragraph("two")}},
				}},
			),
			expected: "Title\none\ntwo",
		},
		{
			name: "blockquote and code block",
			node: doc(
				Node{Type: NodeBlockquote, Content: []Node{paragraph("quoted")}},
				Node{Type: NodeCodeBlock, Content: []Node{{Type: NodeText, Text: "x := 1"}}},
			),
			expected: "quoted\nx := 1",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, PlainText(test.node))
		})
	}
}

func TestExcerpt(t *testing.T) {
	t.Run("short text is returned whole", func(t *testing.T) {
		node := doc(paragraph("short"))

		assert.Equal(t, "short", Excerpt(node, ScoringExcerptLength))
	})

	t.Run("long text is truncated to the limit", func(t *testing.T) {
		node := doc(paragraph(strings.Repeat("a", 600)))

		excerpt := Excerpt(node, ScoringExcerptLength)

		assert.Len(t, excerpt, ScoringExcerptLength)
	})

	t.Run("truncation counts runes not bytes", func(t *testing.T) {
		node := doc(paragraph(strings.Repeat("é", 10)))

		excerpt := Excerpt(node, 5)

		assert.Equal(t, strings.Repeat("é", 5), excerpt)
	})
}

func TestPreview(t *testing.T) {
	node := doc(paragraph(strings.Repeat("b", 300)))

	preview := Preview(node)

	assert.Len(t, preview, PreviewLength)
}

func TestConcatenate(t *testing.T) {
	t.Run("appends secondary content after a separator heading", func(t *testing.T) {
		primary := doc(paragraph("keep me"))
		secondary := doc(paragraph("absorbed"))

		merged := Concatenate(primary, secondary)

		require.Len(t, merged.Content, 3)
		assert.Equal(t, NodeParagraph, merged.Content[0].Type)
		assert.Equal(t, NodeHeading, merged.Content[1].Type)
		assert.Equal(t, NodeParagraph, merged.Content[2].Type)
		assert.Equal(t, "keep me\nMerged content\nabsorbed", PlainText(merged))
	})

	t.Run("empty secondary adds no separator", func(t *testing.T) {
		primary := doc(paragraph("keep me"))

		merged := Concatenate(primary, EmptyDoc())

		require.Len(t, merged.Content, 1)
		assert.Equal(t, "keep me", PlainText(merged))
	})
}

// Package content models the rich-text document tree stored on notes and the
// plain-text projections used for scoring and previews.
package content

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Node kinds. Text carries the actual characters, every other kind is a
// container.
const (
	NodeDoc        = "doc"
	NodeParagraph  = "paragraph"
	NodeHeading    = "heading"
	NodeBulletList = "bulletList"
	NodeListItem   = "listItem"
	NodeBlockquote = "blockquote"
	NodeCodeBlock  = "codeBlock"
	NodeText       = "text"
)

// Plain-text projection lengths.
const (
	ScoringExcerptLength = 500
	PreviewLength        = 200
)

// Node is one node of the document tree. Text is only set on text nodes and
// Content only on container nodes.
type Node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Level   int    `json:"level,omitempty"`
	Content []Node `json:"content,omitempty"`
}

// EmptyDoc returns a document with no content.
func EmptyDoc() Node {
	return Node{Type: NodeDoc}
}

// Parse decodes a stored document tree. An empty or null payload parses to an
// empty document.
func Parse(raw json.RawMessage) (Node, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return EmptyDoc(), nil
	}

	var node Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return Node{}, errors.Wrap(err, "failed to parse content tree")
	}
	if node.Type == "" {
		node.Type = NodeDoc
	}
	return node, nil
}

// Marshal encodes a document tree for storage.
func Marshal(node Node) (json.RawMessage, error) {
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal content tree")
	}
	return raw, nil
}

// PlainText folds the tree into plain text. Text leaves are concatenated in
// document order and block boundaries become single newlines.
func PlainText(node Node) string {
	var sb strings.Builder
	writePlainText(&sb, node)
	return strings.TrimSpace(sb.String())
}

func writePlainText(sb *strings.Builder, node Node) {
	if node.Type == NodeText {
		sb.WriteString(node.Text)
		return
	}

	for i, child := range node.Content {
		if i > 0 && isBlock(child.Type) {
			sb.WriteString("\n")
		}
		writePlainText(sb, child)
	}
}

func isBlock(nodeType string) bool {
	switch nodeType {
	case NodeParagraph, NodeHeading, NodeBulletList, NodeListItem, NodeBlockquote, NodeCodeBlock:
		return true
	}
	return false
}

// Excerpt returns the first limit characters of the plain-text projection.
func Excerpt(node Node, limit int) string {
	text := PlainText(node)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Preview returns the short plain-text summary shown alongside candidates.
func Preview(node Node) string {
	return Excerpt(node, PreviewLength)
}

// Concatenate appends the secondary document to the primary one, separated by
// a heading marking where the absorbed note begins.
func Concatenate(primary, secondary Node) Node {
	merged := Node{Type: NodeDoc}
	merged.Content = append(merged.Content, primary.Content...)

	if len(secondary.Content) > 0 {
		merged.Content = append(merged.Content, Node{
			Type:  NodeHeading,
			Level: 2,
			Content: []Node{
				{Type: NodeText, Text: "Merged content"},
			},
		})
		merged.Content = append(merged.Content, secondary.Content...)
	}

	return merged
}

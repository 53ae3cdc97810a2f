package rag

import (
	"fmt"
	"strings"

	"github.com/ragweb/ragweb/internal/knowledge"
)

// BuildContext renders retrieved documents into the prompt context,
// greedily in ranking order, never exceeding budget characters.
// Assembly stops at the first document that would not fit; an empty
// string means nothing fit.
func BuildContext(results []knowledge.Result, budget int) string {
	var b strings.Builder
	for _, r := range results {
		block := fmt.Sprintf("Document: %s\nContent: %s\n", r.Document.Title, r.Document.Content)

		need := len(block)
		if b.Len() > 0 {
			need++ // joining "\n"
		}
		if b.Len()+need > budget {
			break
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block)
	}
	return b.String()
}

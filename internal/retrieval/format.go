package retrieval

import (
	"fmt"
	"strings"

	"github.com/harborlight/corpusd/internal/tenant"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

// Formatting budgets, in characters.
const (
	// DefaultContextBudget caps the whole formatted context string.
	DefaultContextBudget = 12000

	// docContentBudget and slackContentBudget cap one row's content.
	// Documents get more room than short-form conversational content.
	docContentBudget   = 2000
	slackContentBudget = 600

	ellipsis        = "..."
	truncatedMarker = "\n[Context truncated]"
)

// FormatContext renders fused rows as numbered blocks with score and a
// bounded set of metadata pairs. The result is hard-capped at the context
// budget with a visible truncation marker rather than silently dropped.
func (s *Service) FormatContext(rows []vectorstore.Row) string {
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(formatRow(i+1, row))
	}

	formatted := b.String()
	if runes := []rune(formatted); len(runes) > s.cfg.ContextBudget {
		formatted = string(runes[:s.cfg.ContextBudget]) + truncatedMarker
	}
	return formatted
}

func formatRow(position int, row vectorstore.Row) string {
	var b strings.Builder

	score := 0.0
	if row.Dist != nil {
		score = *row.Dist
	}
	fmt.Fprintf(&b, "[%d] score=%.3f", position, score)

	for _, pair := range metadataPairs(row) {
		fmt.Fprintf(&b, " %s=%s", pair[0], pair[1])
	}

	b.WriteString("\n")
	b.WriteString(capContent(row.Content, contentBudget(row.SourceType)))
	return b.String()
}

// metadataPairs returns the bounded set of metadata shown per row, in a
// fixed order.
func metadataPairs(row vectorstore.Row) [][2]string {
	candidates := [][2]string{
		{"source", row.SourceType},
		{"file", row.Filename},
		{"category", row.Category},
		{"type", row.DocType},
		{"channel", row.Channel},
		{"user", row.User},
		{"created", row.SourceCreatedAt},
	}

	var pairs [][2]string
	for _, c := range candidates {
		if c[1] != "" {
			pairs = append(pairs, c)
		}
	}
	return pairs
}

func contentBudget(sourceType string) int {
	if sourceType == string(tenant.SourceSlack) {
		return slackContentBudget
	}
	return docContentBudget
}

// capContent cuts on rune boundaries so multi-byte content never yields
// invalid UTF-8.
func capContent(content string, budget int) string {
	runes := []rune(content)
	if len(runes) <= budget {
		return content
	}
	return string(runes[:budget]) + ellipsis
}

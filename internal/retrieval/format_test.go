package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/vectorstore"
)

func formatService(budget int) *Service {
	return NewService(nil, nil, zap.NewNop(), Config{ContextBudget: budget})
}

func TestFormatContext_Empty(t *testing.T) {
	svc := formatService(0)
	assert.Equal(t, "", svc.FormatContext(nil))
}

func TestFormatContext_NumberedBlocksWithMetadata(t *testing.T) {
	svc := formatService(0)
	rows := []vectorstore.Row{
		{ID: "a", Content: "first chunk", Dist: dist(0.123), SourceType: "docs", Filename: "report.pdf"},
		{ID: "b", Content: "second chunk", Dist: dist(0.456), SourceType: "slack", Channel: "general", User: "U1"},
	}

	got := svc.FormatContext(rows)

	assert.Contains(t, got, "[1] score=0.123 source=docs file=report.pdf\nfirst chunk")
	assert.Contains(t, got, "[2] score=0.456 source=slack channel=general user=U1\nsecond chunk")
	assert.Less(t, strings.Index(got, "[1]"), strings.Index(got, "[2]"))
}

func TestFormatContext_PerSourceContentBudget(t *testing.T) {
	svc := formatService(0)

	longDoc := strings.Repeat("d", docContentBudget+500)
	longSlack := strings.Repeat("s", slackContentBudget+500)
	rows := []vectorstore.Row{
		{Content: longDoc, SourceType: "docs", Dist: dist(0.1)},
		{Content: longSlack, SourceType: "slack", Dist: dist(0.2)},
	}

	got := svc.FormatContext(rows)

	assert.Contains(t, got, strings.Repeat("d", docContentBudget)+ellipsis)
	assert.NotContains(t, got, strings.Repeat("d", docContentBudget+1))
	assert.Contains(t, got, strings.Repeat("s", slackContentBudget)+ellipsis)
	assert.NotContains(t, got, strings.Repeat("s", slackContentBudget+1))
}

func TestFormatContext_OverallBudgetHardTruncates(t *testing.T) {
	budget := 500
	svc := formatService(budget)

	var rows []vectorstore.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, vectorstore.Row{
			Content:    strings.Repeat("x", 200),
			SourceType: "docs",
			Dist:       dist(float64(i)),
		})
	}

	got := svc.FormatContext(rows)

	require.LessOrEqual(t, len(got), budget+len(truncatedMarker))
	assert.True(t, strings.HasSuffix(got, truncatedMarker))
}

func TestFormatContext_MultibyteContentStaysValidUTF8(t *testing.T) {
	svc := formatService(0)
	rows := []vectorstore.Row{
		{Content: strings.Repeat("世", docContentBudget+10), SourceType: "docs", Dist: dist(0.1)},
	}

	got := svc.FormatContext(rows)
	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, strings.Repeat("世", docContentBudget)+ellipsis)

	// The overall budget also cuts on rune boundaries.
	svc = formatService(100)
	got = svc.FormatContext(rows)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, truncatedMarker))
}

func TestFormatContext_UnderBudgetUntouched(t *testing.T) {
	svc := formatService(10000)
	rows := []vectorstore.Row{{Content: "short", SourceType: "docs", Dist: dist(0.1)}}

	got := svc.FormatContext(rows)
	assert.False(t, strings.HasSuffix(got, truncatedMarker))
	assert.Contains(t, got, "short")
}

package vectorstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalFilter(t *testing.T, f Filter) string {
	t.Helper()
	b, err := json.Marshal(f)
	require.NoError(t, err)
	return string(b)
}

func TestFilter_Eq(t *testing.T) {
	assert.Equal(t, `["doc_id","Eq","abc"]`, marshalFilter(t, Eq("doc_id", "abc")))
}

func TestFilter_NotEq(t *testing.T) {
	assert.Equal(t, `["doc_type","NotEq","invoice"]`, marshalFilter(t, NotEq("doc_type", "invoice")))
}

func TestFilter_In(t *testing.T) {
	assert.Equal(t, `["doc_id","In",["a","b"]]`, marshalFilter(t, In("doc_id", []string{"a", "b"})))
}

func TestFilter_NotIn(t *testing.T) {
	assert.Equal(t, `["doc_id","NotIn",["a"]]`, marshalFilter(t, NotIn("doc_id", []string{"a"})))
}

func TestFilter_Range(t *testing.T) {
	f := And(
		Gte("source_created_at", "2024-01-01T00:00:00Z"),
		Lte("source_created_at", "2024-02-01T00:00:00Z"),
	)
	assert.Equal(t,
		`["And",[["source_created_at","Gte","2024-01-01T00:00:00Z"],["source_created_at","Lte","2024-02-01T00:00:00Z"]]]`,
		marshalFilter(t, f))
}

func TestFilter_NoNullComparisons(t *testing.T) {
	// absent values can never become a comparison against null
	assert.True(t, Eq("doc_id", "").IsZero())
	assert.True(t, Eq("", "x").IsZero())
	assert.True(t, NotEq("doc_id", "").IsZero())
	assert.True(t, In("doc_id", nil).IsZero())
	assert.True(t, In("doc_id", []string{}).IsZero())
	assert.True(t, In("doc_id", []string{"", ""}).IsZero())
	assert.True(t, NotIn("doc_id", nil).IsZero())
	assert.True(t, Gte("ts", "").IsZero())
}

func TestAnd_SkipsZeroFilters(t *testing.T) {
	f := And(Filter{}, Eq("project_id", "p1"), NotIn("doc_id", nil))
	// single survivor collapses to itself
	assert.Equal(t, `["project_id","Eq","p1"]`, marshalFilter(t, f))

	assert.True(t, And().IsZero())
	assert.True(t, And(Filter{}, Filter{}).IsZero())
}

func TestAnd_Nested(t *testing.T) {
	f := And(
		Eq("project_id", "p1"),
		NotIn("doc_id", []string{"d1", "d2"}),
	)
	assert.Equal(t,
		`["And",[["project_id","Eq","p1"],["doc_id","NotIn",["d1","d2"]]]]`,
		marshalFilter(t, f))
}

func TestFilter_InDropsEmptyValues(t *testing.T) {
	assert.Equal(t, `["doc_id","In",["a"]]`, marshalFilter(t, In("doc_id", []string{"", "a"})))
}

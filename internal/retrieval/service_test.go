package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/tenant"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeQuerier struct {
	mu      sync.Mutex
	rows    map[string][]vectorstore.Row
	filters map[string]vectorstore.Filter
	err     error
}

func (f *fakeQuerier) Query(ctx context.Context, namespace string, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filters == nil {
		f.filters = make(map[string]vectorstore.Filter)
	}
	f.filters[namespace] = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[namespace], nil
}

func dist(v float64) *float64 { return &v }

func newTestService(embedder Embedder, store Querier) *Service {
	return NewService(embedder, store, zap.NewNop(), Config{})
}

func TestRetrieve_FusesAcrossNamespacesByDistance(t *testing.T) {
	store := &fakeQuerier{rows: map[string][]vectorstore.Row{
		"shared_slack": {
			{ID: "s1", Dist: dist(0.9)},
			{ID: "s2", Dist: dist(0.3)},
		},
		"shared_docs": {
			{ID: "d1", Dist: dist(0.5)},
		},
	}}
	embedder := &fakeEmbedder{vector: []float32{0.1}}
	svc := newTestService(embedder, store)

	rows, err := svc.Retrieve(context.Background(), Query{
		Text:      "quarterly results",
		Sources:   []tenant.SourceType{tenant.SourceSlack, tenant.SourceDocs},
		Scope:     tenant.SharedScope(),
		ProjectID: "p1",
	})
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "s2", rows[0].ID) // 0.3
	assert.Equal(t, "d1", rows[1].ID) // 0.5
	assert.Equal(t, "s1", rows[2].ID) // 0.9

	// the query text is embedded exactly once
	assert.Equal(t, 1, embedder.calls)
}

func TestRetrieve_MissingDistanceSortsLast(t *testing.T) {
	store := &fakeQuerier{rows: map[string][]vectorstore.Row{
		"shared_docs": {
			{ID: "nodist"},
			{ID: "near", Dist: dist(0.1)},
		},
	}}
	svc := newTestService(&fakeEmbedder{vector: []float32{1}}, store)

	rows, err := svc.Retrieve(context.Background(), Query{
		Text:      "q",
		Sources:   []tenant.SourceType{tenant.SourceDocs},
		Scope:     tenant.SharedScope(),
		ProjectID: "p1",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "near", rows[0].ID)
	assert.Equal(t, "nodist", rows[1].ID)
}

func TestRetrieve_CapsToFinalTopK(t *testing.T) {
	var many []vectorstore.Row
	for i := 0; i < 30; i++ {
		many = append(many, vectorstore.Row{ID: "r", Dist: dist(float64(i) / 100)})
	}
	store := &fakeQuerier{rows: map[string][]vectorstore.Row{"proj_p1_docs": many}}
	svc := newTestService(&fakeEmbedder{vector: []float32{1}}, store)

	rows, err := svc.Retrieve(context.Background(), Query{
		Text:    "q",
		Sources: []tenant.SourceType{tenant.SourceDocs},
		Scope:   tenant.ProjectScope("p1"),
	})
	require.NoError(t, err)
	assert.Len(t, rows, DefaultFinalTopK)
}

func TestRetrieve_SharedNamespaceAlwaysFiltersProject(t *testing.T) {
	store := &fakeQuerier{}
	svc := newTestService(&fakeEmbedder{vector: []float32{1}}, store)

	_, err := svc.Retrieve(context.Background(), Query{
		Text:      "q",
		Sources:   []tenant.SourceType{tenant.SourceDocs},
		Scope:     tenant.SharedScope(),
		ProjectID: "p1",
	})
	require.NoError(t, err)

	f := store.filters["shared_docs"]
	b, _ := f.MarshalJSON()
	assert.Contains(t, string(b), `["project_id","Eq","p1"]`)
}

func TestRetrieve_ExcludeDocIDs(t *testing.T) {
	store := &fakeQuerier{}
	svc := newTestService(&fakeEmbedder{vector: []float32{1}}, store)

	_, err := svc.Retrieve(context.Background(), Query{
		Text:          "q",
		Sources:       []tenant.SourceType{tenant.SourceDocs},
		Scope:         tenant.ProjectScope("p1"),
		ExcludeDocIDs: []string{"d1", "d2"},
	})
	require.NoError(t, err)

	b, _ := store.filters["proj_p1_docs"].MarshalJSON()
	assert.Contains(t, string(b), `["doc_id","NotIn",["d1","d2"]]`)
}

func TestRetrieve_SlackFiltersOnlyOnSlackNamespace(t *testing.T) {
	store := &fakeQuerier{}
	svc := newTestService(&fakeEmbedder{vector: []float32{1}}, store)

	_, err := svc.Retrieve(context.Background(), Query{
		Text:      "q",
		Sources:   []tenant.SourceType{tenant.SourceSlack, tenant.SourceDocs},
		Scope:     tenant.SharedScope(),
		ProjectID: "p1",
		Channel:   "general",
		User:      "U123",
	})
	require.NoError(t, err)

	slackFilter, _ := store.filters["shared_slack"].MarshalJSON()
	assert.Contains(t, string(slackFilter), `["channel","Eq","general"]`)
	assert.Contains(t, string(slackFilter), `["user","Eq","U123"]`)

	docsFilter, _ := store.filters["shared_docs"].MarshalJSON()
	assert.NotContains(t, string(docsFilter), "channel")
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	svc := newTestService(&fakeEmbedder{err: errors.New("no provider")}, &fakeQuerier{})

	_, err := svc.Retrieve(context.Background(), Query{
		Text:    "q",
		Sources: []tenant.SourceType{tenant.SourceDocs},
		Scope:   tenant.ProjectScope("p1"),
	})
	assert.Error(t, err)
}

func TestRetrieveContext_AbsorbsFailures(t *testing.T) {
	svc := newTestService(&fakeEmbedder{err: errors.New("provider down")}, &fakeQuerier{})

	got := svc.RetrieveContext(context.Background(), Query{
		Text:    "q",
		Sources: []tenant.SourceType{tenant.SourceDocs},
		Scope:   tenant.ProjectScope("p1"),
	})
	assert.Equal(t, "", got)
}

func TestRetrieveContext_StoreFailureIsNoContext(t *testing.T) {
	svc := newTestService(
		&fakeEmbedder{vector: []float32{1}},
		&fakeQuerier{err: errors.New("index down")},
	)

	got := svc.RetrieveContext(context.Background(), Query{
		Text:    "q",
		Sources: []tenant.SourceType{tenant.SourceDocs},
		Scope:   tenant.ProjectScope("p1"),
	})
	assert.Equal(t, "", got)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/extraction"
	"github.com/harborlight/corpusd/internal/ingest"
	"github.com/harborlight/corpusd/internal/retrieval"
	"github.com/harborlight/corpusd/internal/store"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

type fakeDocs struct {
	docs map[string]*store.Document
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (*store.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

type fakeIngestor struct {
	ingested  chan string
	deleteErr error
	deleted   []string
}

func (f *fakeIngestor) Ingest(_ context.Context, docID string) (*ingest.IngestResult, error) {
	if f.ingested != nil {
		f.ingested <- docID
	}
	return &ingest.IngestResult{Namespace: "proj_p1_docs", ChunkCount: 1}, nil
}

func (f *fakeIngestor) Delete(_ context.Context, docID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, docID)
	return nil
}

type fakeExtractor struct {
	extracted chan string
}

func (f *fakeExtractor) Extract(_ context.Context, docID string) (*extraction.Result, error) {
	if f.extracted != nil {
		f.extracted <- docID
	}
	return &extraction.Result{Rows: 2}, nil
}

type fakeRetriever struct {
	gotQuery retrieval.Query
	rows     []vectorstore.Row
	err      error
}

func (f *fakeRetriever) Retrieve(_ context.Context, q retrieval.Query) ([]vectorstore.Row, error) {
	f.gotQuery = q
	return f.rows, f.err
}

func (f *fakeRetriever) FormatContext(rows []vectorstore.Row) string {
	if len(rows) == 0 {
		return ""
	}
	return "formatted context"
}

type serverFixture struct {
	server    *Server
	docs      *fakeDocs
	ingestor  *fakeIngestor
	extractor *fakeExtractor
	retriever *fakeRetriever
}

func newFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		docs:      &fakeDocs{docs: make(map[string]*store.Document)},
		ingestor:  &fakeIngestor{ingested: make(chan string, 1)},
		extractor: &fakeExtractor{extracted: make(chan string, 1)},
		retriever: &fakeRetriever{},
	}
	server, err := NewServer(f.docs, f.ingestor, f.extractor, f.retriever, zap.NewNop(), nil)
	require.NoError(t, err)
	f.server = server
	return f
}

func (f *serverFixture) request(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)
	return rec
}

func waitFor(t *testing.T, ch chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("background task for %s never ran", want)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.request(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngest_Accepted(t *testing.T) {
	f := newFixture(t)
	f.docs.docs["doc-1"] = &store.Document{ID: "doc-1"}

	rec := f.request(http.MethodPost, "/api/v1/documents/doc-1/ingest", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp TaskAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.DocID)
	assert.Equal(t, "pending", resp.Status)

	waitFor(t, f.ingestor.ingested, "doc-1")
}

func TestIngest_UnknownDocument(t *testing.T) {
	f := newFixture(t)
	rec := f.request(http.MethodPost, "/api/v1/documents/missing/ingest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngest_DeletingConflict(t *testing.T) {
	f := newFixture(t)
	f.docs.docs["doc-1"] = &store.Document{ID: "doc-1", IndexStatus: store.IndexDeleting}

	rec := f.request(http.MethodPost, "/api/v1/documents/doc-1/ingest", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExtract_Accepted(t *testing.T) {
	f := newFixture(t)
	f.docs.docs["doc-1"] = &store.Document{ID: "doc-1", DocType: store.DocTypeBankStatement}

	rec := f.request(http.MethodPost, "/api/v1/documents/doc-1/extract", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	waitFor(t, f.extractor.extracted, "doc-1")
}

func TestExtract_UnsupportedDocType(t *testing.T) {
	f := newFixture(t)
	f.docs.docs["doc-1"] = &store.Document{ID: "doc-1", DocType: store.DocTypeNote}

	rec := f.request(http.MethodPost, "/api/v1/documents/doc-1/extract", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteVectors(t *testing.T) {
	f := newFixture(t)
	rec := f.request(http.MethodDelete, "/api/v1/documents/doc-1/vectors", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"doc-1"}, f.ingestor.deleted)
}

func TestDeleteVectors_NotFound(t *testing.T) {
	f := newFixture(t)
	f.ingestor.deleteErr = store.ErrNotFound

	rec := f.request(http.MethodDelete, "/api/v1/documents/doc-1/vectors", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t)
	d := 0.2
	f.retriever.rows = []vectorstore.Row{{ID: "r1", Content: "hello", Dist: &d}}

	rec := f.request(http.MethodPost, "/api/v1/retrieve",
		`{"query":"q3 revenue","project_id":"p1","sources":["docs"],"include_context":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RetrieveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "r1", resp.Rows[0].ID)
	assert.Equal(t, "formatted context", resp.Context)

	assert.Equal(t, "q3 revenue", f.retriever.gotQuery.Text)
	assert.Equal(t, "p1", f.retriever.gotQuery.ProjectID)
	assert.False(t, f.retriever.gotQuery.Scope.IsShared())
}

func TestRetrieve_SharedScope(t *testing.T) {
	f := newFixture(t)
	rec := f.request(http.MethodPost, "/api/v1/retrieve",
		`{"query":"standup notes","project_id":"p1","shared":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.retriever.gotQuery.Scope.IsShared())
	// Empty sources default to all of them.
	assert.Len(t, f.retriever.gotQuery.Sources, 2)
}

func TestRetrieve_Validation(t *testing.T) {
	f := newFixture(t)

	rec := f.request(http.MethodPost, "/api/v1/retrieve", `{"project_id":"p1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(http.MethodPost, "/api/v1/retrieve", `{"query":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(http.MethodPost, "/api/v1/retrieve",
		`{"query":"x","project_id":"p1","sources":["email"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(http.MethodPost, "/api/v1/retrieve",
		`{"query":"x","project_id":"p1","created_after":"yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrieve_ServiceError(t *testing.T) {
	f := newFixture(t)
	f.retriever.err = errors.New("embedder down")

	rec := f.request(http.MethodPost, "/api/v1/retrieve",
		`{"query":"x","project_id":"p1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRetrieve_EmptyRowsNotNull(t *testing.T) {
	f := newFixture(t)
	rec := f.request(http.MethodPost, "/api/v1/retrieve",
		`{"query":"x","project_id":"p1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows":[]`)
}

// Package ingest drives the document indexing pipeline: chunk, embed,
// upsert, and reconcile the document's index state.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/chunk"
	"github.com/harborlight/corpusd/internal/store"
	"github.com/harborlight/corpusd/internal/tenant"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

var (
	// ErrDocumentDeleting indicates the document was marked for deletion
	// before or during indexing.
	ErrDocumentDeleting = errors.New("document is being deleted")

	// ErrNoContent indicates the document has no extracted text to index.
	ErrNoContent = errors.New("document has no extracted text")
)

// rowContentCap bounds the stored copy of a chunk. The embedding sees the
// full chunk; the stored content is display material only.
const rowContentCap = 3800

// DocumentStore is the metadata persistence the orchestrator needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	SetIndexPending(ctx context.Context, id string) error
	SetIndexed(ctx context.Context, id, namespace, contentHash string) error
	SetIndexError(ctx context.Context, id, message string) error
	SetDeleting(ctx context.Context, id string) error
	DeleteDocument(ctx context.Context, id string) error
}

// BlobStore reads raw uploads for the plain-text passthrough.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	KeyFromURL(url string) (string, bool)
}

// VectorStore is the slice of the vector index client used here.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, rows []vectorstore.Row) error
	DeleteByFilter(ctx context.Context, namespace string, filter vectorstore.Filter) (int, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IngestResult reports what one indexing run produced.
type IngestResult struct {
	Namespace  string
	ChunkCount int
}

// Orchestrator runs the indexing pipeline for one document at a time per
// document id.
type Orchestrator struct {
	docs     DocumentStore
	vectors  VectorStore
	embedder Embedder
	blob     BlobStore
	chunker  *chunk.Chunker
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an indexing orchestrator. A nil chunker gets the default
// window configuration.
func New(docs DocumentStore, vectors VectorStore, embedder Embedder, blob BlobStore, chunker *chunk.Chunker, logger *zap.Logger) *Orchestrator {
	if chunker == nil {
		chunker = chunk.NewChunker(chunk.DefaultMaxLen, chunk.DefaultOverlap)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		docs:     docs,
		vectors:  vectors,
		embedder: embedder,
		blob:     blob,
		chunker:  chunker,
		logger:   logger.Named("ingest"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockDocument serializes pipeline runs per document id. Entries are kept
// for the process lifetime; the document population is bounded in practice.
func (o *Orchestrator) lockDocument(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Ingest indexes one document: mark pending, chunk the extracted text,
// embed each chunk, replace the document's rows in its namespace, and mark
// indexed. Row ids derive from the content hash, so re-running on unchanged
// content rewrites the same rows.
//
// A deletion marker set before or during the run aborts it: the run cleans
// up any rows it wrote and returns ErrDocumentDeleting without marking the
// document indexed.
func (o *Orchestrator) Ingest(ctx context.Context, docID string) (*IngestResult, error) {
	unlock := o.lockDocument(docID)
	defer unlock()

	start := time.Now()

	doc, err := o.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.IndexStatus == store.IndexDeleting {
		return nil, ErrDocumentDeleting
	}

	if err := o.docs.SetIndexPending(ctx, docID); err != nil {
		return nil, err
	}

	result, err := o.index(ctx, doc)
	if err != nil {
		recordIngest(ctx, time.Since(start), 0, err)
		if errors.Is(err, ErrDocumentDeleting) {
			return nil, err
		}
		if serr := o.docs.SetIndexError(ctx, docID, err.Error()); serr != nil {
			o.logger.Warn("failed to record index error",
				zap.String("doc_id", docID), zap.Error(serr))
		}
		return nil, err
	}

	o.logger.Info("document indexed",
		zap.String("doc_id", docID),
		zap.String("namespace", result.Namespace),
		zap.Int("chunks", result.ChunkCount),
		zap.Duration("duration", time.Since(start)))
	recordIngest(ctx, time.Since(start), result.ChunkCount, nil)
	return result, nil
}

func (o *Orchestrator) index(ctx context.Context, doc *store.Document) (*IngestResult, error) {
	text, err := o.extractText(ctx, doc)
	if err != nil {
		return nil, err
	}

	namespace, err := namespaceFor(doc)
	if err != nil {
		return nil, err
	}

	contentHash := hashText(text)
	chunks := o.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	rows := make([]vectorstore.Row, 0, len(chunks))
	for _, c := range chunks {
		vector, err := o.embedder.Embed(ctx, embeddingInput(doc, c.Text))
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", c.Index, err)
		}
		rows = append(rows, rowFor(doc, c, vector, contentHash, indexedAt))
	}

	// Stale rows from a previous content version have different ids, so a
	// plain upsert would leave them behind. Clear the document's rows first.
	if _, err := o.vectors.DeleteByFilter(ctx, namespace, documentFilter(doc, namespace)); err != nil {
		return nil, fmt.Errorf("clear previous rows: %w", err)
	}
	if err := o.vectors.Upsert(ctx, namespace, rows); err != nil {
		return nil, fmt.Errorf("upsert rows: %w", err)
	}

	// A concurrent delete may have marked the document while we were
	// embedding. Honor it: remove what we just wrote and abort.
	fresh, err := o.docs.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if fresh.IndexStatus == store.IndexDeleting {
		if _, derr := o.vectors.DeleteByFilter(ctx, namespace, documentFilter(doc, namespace)); derr != nil {
			o.logger.Warn("cleanup after aborted indexing failed",
				zap.String("doc_id", doc.ID), zap.Error(derr))
		}
		return nil, ErrDocumentDeleting
	}

	if err := o.docs.SetIndexed(ctx, doc.ID, namespace, contentHash); err != nil {
		return nil, err
	}
	return &IngestResult{Namespace: namespace, ChunkCount: len(rows)}, nil
}

// Delete removes a document's vectors and its metadata record. The deletion
// marker is set first so an in-flight indexing run aborts instead of
// resurrecting rows.
func (o *Orchestrator) Delete(ctx context.Context, docID string) error {
	doc, err := o.docs.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := o.docs.SetDeleting(ctx, docID); err != nil {
		return err
	}

	unlock := o.lockDocument(docID)
	defer unlock()

	namespace, err := namespaceFor(doc)
	if err != nil {
		return err
	}
	if _, err := o.vectors.DeleteByFilter(ctx, namespace, documentFilter(doc, namespace)); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}
	return o.docs.DeleteDocument(ctx, docID)
}

// extractText resolves the document's indexable text. Text-like uploads
// (plain text, markdown, CSV) whose extracted-text field was never
// populated pass through from blob storage verbatim; everything else must
// already carry extracted text.
func (o *Orchestrator) extractText(ctx context.Context, doc *store.Document) (string, error) {
	if doc.ExtractedText != "" {
		return doc.ExtractedText, nil
	}
	if o.blob == nil || doc.BlobURL == "" || !textLike(doc.Filename, doc.MimeType) {
		return "", ErrNoContent
	}

	key, ok := o.blob.KeyFromURL(doc.BlobURL)
	if !ok {
		return "", fmt.Errorf("document %s has no resolvable blob key", doc.ID)
	}
	data, err := o.blob.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download document: %w", err)
	}
	if len(data) == 0 || !utf8.Valid(data) {
		return "", ErrNoContent
	}
	return string(data), nil
}

// textLike reports whether the raw upload can be indexed as-is.
func textLike(filename, mimeType string) bool {
	mime := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch mime {
	case "text/plain", "text/markdown", "text/csv", "application/csv":
		return true
	}
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".csv":
		return true
	}
	return false
}

// namespaceFor routes a document: conversational sources live in shared
// namespaces, documents in per-project ones.
func namespaceFor(doc *store.Document) (string, error) {
	source := tenant.SourceType(doc.SourceType)
	if source == tenant.SourceSlack {
		return tenant.NamespaceFor(source, tenant.SharedScope())
	}
	return tenant.NamespaceFor(source, tenant.ProjectScope(doc.ProjectID))
}

// documentFilter matches all of a document's rows. Shared namespaces mix
// tenants, so the filter also pins the project there.
func documentFilter(doc *store.Document, namespace string) vectorstore.Filter {
	f := vectorstore.Eq("doc_id", doc.ID)
	if tenant.IsShared(namespace) {
		f = vectorstore.And(f, vectorstore.Eq("project_id", doc.ProjectID))
	}
	return f
}

// embeddingInput prefixes the chunk with lightweight provenance so the
// vector carries what the document is, not just what the chunk says.
func embeddingInput(doc *store.Document, text string) string {
	switch {
	case doc.Filename != "" && doc.Category != "":
		return doc.Filename + " (" + doc.Category + ")\n" + text
	case doc.Filename != "":
		return doc.Filename + "\n" + text
	default:
		return text
	}
}

func rowFor(doc *store.Document, c chunk.Chunk, vector []float32, contentHash, indexedAt string) vectorstore.Row {
	content := c.Text
	if runes := []rune(content); len(runes) > rowContentCap {
		content = string(runes[:rowContentCap]) + "..."
	}
	row := vectorstore.Row{
		ID:         rowID(doc.ID, contentHash, c.Index),
		Vector:     vector,
		Content:    content,
		SourceType: doc.SourceType,
		DocID:      doc.ID,
		ProjectID:  doc.ProjectID,
		Creator:    doc.Creator,
		OrgID:      doc.OrgID,
		Filename:   doc.Filename,
		Category:   doc.Category,
		MimeType:   doc.MimeType,
		BlobURL:    doc.BlobURL,
		DocType:    doc.DocType,
		ChunkIndex: c.Index,
		IndexedAt:  indexedAt,
	}
	if !doc.SourceCreatedAt.IsZero() {
		row.SourceCreatedAt = doc.SourceCreatedAt.UTC().Format(time.RFC3339)
	}
	return row
}

// rowID is stable for a given document content version and chunk position.
func rowID(docID, contentHash string, index int) string {
	return hashText(docID + contentHash + strconv.Itoa(index))
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

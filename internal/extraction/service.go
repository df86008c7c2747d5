package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/ingest"
	"github.com/harborlight/corpusd/internal/store"
)

// ErrUnsupportedDocType indicates the document type is not parsed by this
// pipeline.
var ErrUnsupportedDocType = errors.New("document type not parsed by this pipeline")

// DocumentStore is the persistence surface the pipeline needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	SetParseStatus(ctx context.Context, id string, status store.ParseStatus, message string) error
	SetExtractedText(ctx context.Context, id, text string) error
	ReplaceTransactions(ctx context.Context, docID string, rows []store.Transaction) (int, error)
	ReplaceInvoiceItems(ctx context.Context, docID string, rows []store.InvoiceItem) (int, error)
}

// BlobStore reads document bytes and stores audit payloads.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	KeyFromURL(url string) (string, bool)
}

// Extractor is the schema-extraction client surface.
type Extractor interface {
	ExtractDocument(ctx context.Context, filename, mimeType, docType string, data []byte) (*Payload, error)
}

// Indexer re-indexes a document after its retrievable text changed.
type Indexer interface {
	Ingest(ctx context.Context, docID string) (*ingest.IngestResult, error)
}

// Result reports one extraction run.
type Result struct {
	// Rows is the number of normalized rows persisted.
	Rows int
	// Skipped is the number of raw rows dropped by normalization.
	Skipped int
}

// Service runs the structured extraction pipeline for financial documents.
type Service struct {
	docs    DocumentStore
	blob    BlobStore
	client  Extractor
	indexer Indexer
	logger  *zap.Logger
}

// NewService creates the extraction pipeline service.
func NewService(docs DocumentStore, blob BlobStore, client Extractor, indexer Indexer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:    docs,
		blob:    blob,
		client:  client,
		indexer: indexer,
		logger:  logger.Named("extraction"),
	}
}

// Extract runs the pipeline for one document: download, extract rows,
// normalize, persist, summarize and re-index. The document ends in parse
// state parsed or failed, never pending.
func (s *Service) Extract(ctx context.Context, docID string) (*Result, error) {
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !supportedDocType(doc.DocType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocType, doc.DocType)
	}

	if err := s.docs.SetParseStatus(ctx, docID, store.ParsePending, ""); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.extract(ctx, doc)
	if err != nil {
		if serr := s.docs.SetParseStatus(ctx, docID, store.ParseFailed, err.Error()); serr != nil {
			s.logger.Warn("failed to record parse failure",
				zap.String("doc_id", docID), zap.Error(serr))
		}
		return nil, err
	}

	if err := s.docs.SetParseStatus(ctx, docID, store.ParseParsed, ""); err != nil {
		return nil, err
	}
	s.logger.Info("document extracted",
		zap.String("doc_id", docID),
		zap.String("doc_type", doc.DocType),
		zap.Int("rows", result.Rows),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (s *Service) extract(ctx context.Context, doc *store.Document) (*Result, error) {
	key, ok := s.blob.KeyFromURL(doc.BlobURL)
	if !ok {
		return nil, fmt.Errorf("document %s has no resolvable blob key", doc.ID)
	}
	data, err := s.blob.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download document: %w", err)
	}

	payload, err := s.extractRows(ctx, doc, data)
	if err != nil {
		return nil, err
	}

	var result *Result
	var summary string
	if doc.DocType == store.DocTypeInvoice {
		items, skipped := s.normalizeInvoiceItems(doc, payload.Rows)
		inserted, err := s.docs.ReplaceInvoiceItems(ctx, doc.ID, items)
		if err != nil {
			return nil, fmt.Errorf("persist invoice items: %w", err)
		}
		result = &Result{Rows: inserted, Skipped: skipped}
		summary = invoiceSummary(doc, items, payload.Vendor, payload.Total)
	} else {
		rows, skipped := s.normalizeTransactions(doc, payload.Rows)
		inserted, err := s.docs.ReplaceTransactions(ctx, doc.ID, rows)
		if err != nil {
			return nil, fmt.Errorf("persist transactions: %w", err)
		}
		result = &Result{Rows: inserted, Skipped: skipped}
		summary = statementSummary(doc, rows)
	}

	if err := s.docs.SetExtractedText(ctx, doc.ID, summary); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}
	if _, err := s.indexer.Ingest(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("index summary: %w", err)
	}

	s.storeAuditPayload(ctx, doc.ID, payload)
	return result, nil
}

// extractRows calls the schema service and falls back to the heuristic CSV
// parser when a statement-type CSV export yields nothing structured.
func (s *Service) extractRows(ctx context.Context, doc *store.Document, data []byte) (*Payload, error) {
	payload, err := s.client.ExtractDocument(ctx, doc.Filename, doc.MimeType, doc.DocType, data)

	csvEligible := statementDocType(doc.DocType) && isCSVLike(doc.Filename, doc.MimeType)
	if err != nil {
		if !csvEligible {
			return nil, err
		}
		s.logger.Warn("extraction service failed, trying csv fallback",
			zap.String("doc_id", doc.ID), zap.Error(err))
		payload = &Payload{}
	}

	if len(payload.Rows) == 0 && csvEligible {
		rows, cerr := parseCSVStatement(data)
		if cerr != nil {
			if err != nil {
				return nil, err
			}
			s.logger.Warn("csv fallback found no rows",
				zap.String("doc_id", doc.ID), zap.Error(cerr))
			return payload, nil
		}
		payload.Rows = rows
	}
	return payload, nil
}

func (s *Service) normalizeTransactions(doc *store.Document, raw []RawRow) ([]store.Transaction, int) {
	rows := make([]store.Transaction, 0, len(raw))
	skipped := 0
	for i, r := range raw {
		date, description, amount, err := normalizeRow(r)
		if err != nil {
			skipped++
			s.logger.Warn("dropping unnormalizable row",
				zap.String("doc_id", doc.ID), zap.Int("row", i), zap.Error(err))
			continue
		}
		rows = append(rows, store.Transaction{
			DocID:       doc.ID,
			Date:        date,
			Description: description,
			Amount:      amount,
			Currency:    r.Currency,
			RowHash:     rowHash(doc.ID, date, amount, description, i),
			Position:    i,
		})
	}
	return rows, skipped
}

func (s *Service) normalizeInvoiceItems(doc *store.Document, raw []RawRow) ([]store.InvoiceItem, int) {
	items := make([]store.InvoiceItem, 0, len(raw))
	skipped := 0
	for i, r := range raw {
		// Line items often have no per-item date; only a malformed one is
		// an error.
		date := ""
		var err error
		if r.Date != "" {
			date, err = normalizeDate(r.Date)
		}
		var amount string
		if err == nil {
			amount, err = normalizeAmount(r.Amount)
		}
		if err != nil {
			skipped++
			s.logger.Warn("dropping unnormalizable row",
				zap.String("doc_id", doc.ID), zap.Int("row", i), zap.Error(err))
			continue
		}
		description := normalizeDescription(r.Description)
		items = append(items, store.InvoiceItem{
			DocID:       doc.ID,
			Date:        date,
			Description: description,
			Amount:      amount,
			Currency:    r.Currency,
			RowHash:     rowHash(doc.ID, date, amount, description, i),
			Position:    i,
		})
	}
	return items, skipped
}

// storeAuditPayload keeps the service's raw response for later inspection.
// Best effort: rows are already persisted, a failed audit write is a warn.
func (s *Service) storeAuditPayload(ctx context.Context, docID string, payload *Payload) {
	if len(payload.Raw) == 0 {
		return
	}
	key := "extractions/" + docID + ".json"
	if _, err := s.blob.Put(ctx, key, payload.Raw, "application/json"); err != nil {
		s.logger.Warn("failed to store extraction audit payload",
			zap.String("doc_id", docID), zap.Error(err))
	}
}

func supportedDocType(docType string) bool {
	switch docType {
	case store.DocTypeBankStatement, store.DocTypeCreditCardStatement, store.DocTypeInvoice:
		return true
	}
	return false
}

func statementDocType(docType string) bool {
	return docType == store.DocTypeBankStatement || docType == store.DocTypeCreditCardStatement
}

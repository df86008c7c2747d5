package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the Postgres connection.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&Document{}, &Transaction{}, &InvoiceItem{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing gorm connection. Used by tests.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDocument inserts a document record, assigning an id when the
// caller did not bring one.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(doc).Error
}

// SetIndexPending marks a document as being indexed.
func (s *Store) SetIndexPending(ctx context.Context, id string) error {
	return s.updateDocument(ctx, id, map[string]interface{}{
		"index_status": IndexPending,
		"index_err":    "",
	})
}

// SetIndexed marks a document as indexed in the given namespace at now.
func (s *Store) SetIndexed(ctx context.Context, id, namespace string, contentHash string) error {
	now := time.Now().UTC()
	return s.updateDocument(ctx, id, map[string]interface{}{
		"index_status": IndexIndexed,
		"index_err":    "",
		"namespace":    namespace,
		"content_hash": contentHash,
		"indexed_at":   &now,
	})
}

// SetIndexError records an indexing failure. The document never stays
// pending forever.
func (s *Store) SetIndexError(ctx context.Context, id, message string) error {
	return s.updateDocument(ctx, id, map[string]interface{}{
		"index_status": IndexError,
		"index_err":    truncate(message, 1024),
	})
}

// SetDeleting marks a document for deletion, pre-empting in-flight indexing.
func (s *Store) SetDeleting(ctx context.Context, id string) error {
	return s.updateDocument(ctx, id, map[string]interface{}{
		"index_status": IndexDeleting,
	})
}

// SetExtractedText replaces the document's retrievable text. The
// extraction pipeline uses this to index a row summary instead of raw
// statement bytes.
func (s *Store) SetExtractedText(ctx context.Context, id, text string) error {
	return s.updateDocument(ctx, id, map[string]interface{}{
		"extracted_text": text,
	})
}

// SetParseStatus records the extraction pipeline state.
func (s *Store) SetParseStatus(ctx context.Context, id string, status ParseStatus, message string) error {
	return s.updateDocument(ctx, id, map[string]interface{}{
		"parse_status": status,
		"parse_err":    truncate(message, 1024),
	})
}

// DeleteDocument removes a document and its extracted rows.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", id).Delete(&Transaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("doc_id = ?", id).Delete(&InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Document{}, "id = ?", id).Error
	})
}

func (s *Store) updateDocument(ctx context.Context, id string, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

// ReplaceTransactions supersedes a document's statement rows. Existing rows
// for the document are removed and the new set inserted with
// insert-or-ignore semantics on the row hash, so repeat extraction of the
// same document is idempotent.
func (s *Store) ReplaceTransactions(ctx context.Context, docID string, rows []Transaction) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", docID).Delete(&Transaction{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "row_hash"}},
			DoNothing: true,
		}).Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		inserted = int(res.RowsAffected)
		return nil
	})
	return inserted, err
}

// ReplaceInvoiceItems supersedes a document's invoice line items.
func (s *Store) ReplaceInvoiceItems(ctx context.Context, docID string, rows []InvoiceItem) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", docID).Delete(&InvoiceItem{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "row_hash"}},
			DoNothing: true,
		}).Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		inserted = int(res.RowsAffected)
		return nil
	})
	return inserted, err
}

// ListTransactions returns a document's statement rows in position order.
func (s *Store) ListTransactions(ctx context.Context, docID string) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.WithContext(ctx).
		Where("doc_id = ?", docID).
		Order("position asc").
		Find(&rows).Error
	return rows, err
}

// ListInvoiceItems returns a document's invoice line items in position order.
func (s *Store) ListInvoiceItems(ctx context.Context, docID string) ([]InvoiceItem, error) {
	var rows []InvoiceItem
	err := s.db.WithContext(ctx).
		Where("doc_id = ?", docID).
		Order("position asc").
		Find(&rows).Error
	return rows, err
}

// truncate cuts on rune boundaries so persisted messages stay valid UTF-8.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Package store persists document metadata and extracted financial rows in
// Postgres.
package store

import "time"

// IndexStatus is the vector-indexing lifecycle state of a document.
type IndexStatus string

const (
	IndexUnindexed IndexStatus = "unindexed"
	IndexPending   IndexStatus = "pending"
	IndexIndexed   IndexStatus = "indexed"
	IndexError     IndexStatus = "error"
	// IndexDeleting pre-empts in-flight indexing: ingestion re-checks this
	// sentinel before committing and aborts with cleanup when set.
	IndexDeleting IndexStatus = "deleting"
)

// ParseStatus is the structured-extraction state of a document.
type ParseStatus string

const (
	ParseNone    ParseStatus = "none"
	ParsePending ParseStatus = "pending"
	ParseParsed  ParseStatus = "parsed"
	ParseFailed  ParseStatus = "failed"
)

// Document types recognized by the extraction pipeline.
const (
	DocTypeNote                = "note"
	DocTypeFile                = "file"
	DocTypeBankStatement       = "bank_statement"
	DocTypeCreditCardStatement = "credit_card_statement"
	DocTypeInvoice             = "invoice"
)

// Document is a project document record. corpusd owns its indexing and
// parsing state fields; CRUD of the rest belongs to the surrounding
// application.
type Document struct {
	ID        string `gorm:"primaryKey;size:64"`
	OrgID     string `gorm:"size:64;index"`
	ProjectID string `gorm:"size:64;index"`
	Creator   string `gorm:"size:128"`

	Filename   string `gorm:"size:512"`
	Category   string `gorm:"size:256"`
	MimeType   string `gorm:"size:128"`
	BlobURL    string `gorm:"size:1024"`
	DocType    string `gorm:"size:32"`
	SourceType string `gorm:"size:16"`

	// ContentHash is a hash of the extracted text, part of the derived row
	// id that keeps re-indexing idempotent.
	ContentHash   string `gorm:"size:64"`
	ExtractedText string `gorm:"type:text"`

	SourceCreatedAt time.Time

	IndexStatus IndexStatus `gorm:"size:16;default:unindexed"`
	IndexErr    string      `gorm:"size:1024"`
	Namespace   string      `gorm:"size:256"`
	IndexedAt   *time.Time

	ParseStatus ParseStatus `gorm:"size:16;default:none"`
	ParseErr    string      `gorm:"size:1024"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is one normalized statement row extracted from a bank or
// credit-card statement.
type Transaction struct {
	ID          uint   `gorm:"primaryKey"`
	DocID       string `gorm:"size:64;index"`
	Date        string `gorm:"size:10"` // YYYY-MM-DD
	Description string `gorm:"size:512"`
	Amount      string `gorm:"size:32"` // fixed 2-decimal string
	Currency    string `gorm:"size:8"`
	// RowHash is derived from doc id + normalized fields + row position and
	// enforces idempotent re-extraction.
	RowHash   string `gorm:"size:64;uniqueIndex"`
	Position  int
	CreatedAt time.Time
}

// InvoiceItem is one normalized invoice line item.
type InvoiceItem struct {
	ID          uint   `gorm:"primaryKey"`
	DocID       string `gorm:"size:64;index"`
	Date        string `gorm:"size:10"`
	Description string `gorm:"size:512"`
	Amount      string `gorm:"size:32"`
	Currency    string `gorm:"size:8"`
	RowHash     string `gorm:"size:64;uniqueIndex"`
	Position    int
	CreatedAt   time.Time
}

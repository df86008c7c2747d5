// Package vectorstore provides the client for the external vector index
// service.
package vectorstore

// Row is one embedded chunk plus its provenance metadata, stored in a
// namespace of the vector index.
type Row struct {
	// ID is content-derived and stable across re-indexing of unchanged
	// content (doc id + content hash + chunk index).
	ID string `json:"id"`

	// Vector is the embedding of Content prefixed with lightweight metadata.
	// Omitted on query responses unless requested.
	Vector []float32 `json:"vector,omitempty"`

	// Content is the chunk text, length-capped by the writer.
	Content string `json:"content,omitempty"`

	// Provenance attributes.
	SourceType      string `json:"source_type,omitempty"`
	DocID           string `json:"doc_id,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
	Creator         string `json:"creator,omitempty"`
	OrgID           string `json:"org_id,omitempty"`
	Filename        string `json:"filename,omitempty"`
	Category        string `json:"category,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	BlobURL         string `json:"blob_url,omitempty"`
	DocType         string `json:"doc_type,omitempty"`
	ChunkIndex      int    `json:"chunk_index"`
	SourceCreatedAt string `json:"source_created_at,omitempty"`
	IndexedAt       string `json:"indexed_at,omitempty"`

	// Slack-source attributes.
	Channel string `json:"channel,omitempty"`
	User    string `json:"user,omitempty"`

	// Dist is the ascending distance reported on query results. Nil when
	// the service returned no distance for the row.
	Dist *float64 `json:"$dist,omitempty"`
}

package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/retrieval"
	"github.com/harborlight/corpusd/internal/store"
	"github.com/harborlight/corpusd/internal/tenant"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// TaskAcceptedResponse is the response body for the async document
// endpoints.
type TaskAcceptedResponse struct {
	DocID  string `json:"doc_id"`
	Status string `json:"status"`
}

// DeleteVectorsResponse is the response body for DELETE
// /api/v1/documents/:id/vectors.
type DeleteVectorsResponse struct {
	DocID   string `json:"doc_id"`
	Deleted bool   `json:"deleted"`
}

// RetrieveRequest is the request body for POST /api/v1/retrieve.
type RetrieveRequest struct {
	Query     string   `json:"query"`
	Sources   []string `json:"sources,omitempty"`
	ProjectID string   `json:"project_id"`
	// Shared queries the cross-project namespaces, still filtered down to
	// the requesting project.
	Shared         bool     `json:"shared,omitempty"`
	ExcludeDocIDs  []string `json:"exclude_doc_ids,omitempty"`
	Channel        string   `json:"channel,omitempty"`
	User           string   `json:"user,omitempty"`
	CreatedAfter   string   `json:"created_after,omitempty"`
	CreatedBefore  string   `json:"created_before,omitempty"`
	IncludeContext bool     `json:"include_context,omitempty"`
}

// RetrieveResponse is the response body for POST /api/v1/retrieve.
type RetrieveResponse struct {
	Rows    []vectorstore.Row `json:"rows"`
	Context string            `json:"context,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIngest kicks off indexing for a document and answers immediately.
func (s *Server) handleIngest(c echo.Context) error {
	docID := c.Param("id")

	doc, err := s.docs.GetDocument(c.Request().Context(), docID)
	if err != nil {
		return httpError(err)
	}
	if doc.IndexStatus == store.IndexDeleting {
		return echo.NewHTTPError(http.StatusConflict, "document is being deleted")
	}

	s.background("ingest", docID, func(ctx context.Context) error {
		_, err := s.ingestor.Ingest(ctx, docID)
		return err
	})

	return c.JSON(http.StatusAccepted, TaskAcceptedResponse{DocID: docID, Status: "pending"})
}

// handleExtract kicks off structured extraction for a document. The doc
// type gate runs synchronously so unsupported documents fail the request
// instead of a background log line.
func (s *Server) handleExtract(c echo.Context) error {
	docID := c.Param("id")

	doc, err := s.docs.GetDocument(c.Request().Context(), docID)
	if err != nil {
		return httpError(err)
	}
	switch doc.DocType {
	case store.DocTypeBankStatement, store.DocTypeCreditCardStatement, store.DocTypeInvoice:
	default:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "document type not parsed by this pipeline")
	}

	s.background("extract", docID, func(ctx context.Context) error {
		_, err := s.extractor.Extract(ctx, docID)
		return err
	})

	return c.JSON(http.StatusAccepted, TaskAcceptedResponse{DocID: docID, Status: "pending"})
}

// handleDeleteVectors removes a document's vectors and record.
func (s *Server) handleDeleteVectors(c echo.Context) error {
	docID := c.Param("id")

	if err := s.ingestor.Delete(c.Request().Context(), docID); err != nil {
		s.logger.Warn("document delete failed", zap.String("doc_id", docID), zap.Error(err))
		return httpError(err)
	}
	return c.JSON(http.StatusOK, DeleteVectorsResponse{DocID: docID, Deleted: true})
}

// handleRetrieve answers a retrieval query with fused rows and, on
// request, the formatted context string.
func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid retrieve request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id field is required")
	}

	q, err := retrievalQuery(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rows, err := s.retriever.Retrieve(c.Request().Context(), q)
	if err != nil {
		s.logger.Warn("retrieve failed", zap.Error(err))
		return httpError(err)
	}

	resp := RetrieveResponse{Rows: rows}
	if resp.Rows == nil {
		resp.Rows = []vectorstore.Row{}
	}
	if req.IncludeContext {
		resp.Context = s.retriever.FormatContext(rows)
	}
	return c.JSON(http.StatusOK, resp)
}

func retrievalQuery(req RetrieveRequest) (retrieval.Query, error) {
	sources := make([]tenant.SourceType, 0, len(req.Sources))
	for _, s := range req.Sources {
		st := tenant.SourceType(s)
		if !tenant.ValidSourceType(st) {
			return retrieval.Query{}, fmt.Errorf("unknown source type %q", s)
		}
		sources = append(sources, st)
	}
	if len(sources) == 0 {
		sources = []tenant.SourceType{tenant.SourceSlack, tenant.SourceDocs}
	}

	scope := tenant.ProjectScope(req.ProjectID)
	if req.Shared {
		scope = tenant.SharedScope()
	}

	q := retrieval.Query{
		Text:          req.Query,
		Sources:       sources,
		Scope:         scope,
		ProjectID:     req.ProjectID,
		ExcludeDocIDs: req.ExcludeDocIDs,
		Channel:       req.Channel,
		User:          req.User,
	}

	if req.CreatedAfter != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedAfter)
		if err != nil {
			return retrieval.Query{}, fmt.Errorf("invalid created_after: %v", err)
		}
		q.CreatedAfter = t
	}
	if req.CreatedBefore != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedBefore)
		if err != nil {
			return retrieval.Query{}, fmt.Errorf("invalid created_before: %v", err)
		}
		q.CreatedBefore = t
	}
	return q, nil
}

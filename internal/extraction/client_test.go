package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractionServer(t *testing.T, extractHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(uploadResponse{FileID: "file-123"})
	})
	mux.HandleFunc("/v1/extract", extractHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: baseURL, APIKey: "test-key"})
	require.NoError(t, err)
	return client
}

func TestClient_ExtractDocument(t *testing.T) {
	var gotExtract extractRequest
	srv := extractionServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotExtract))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(extractResponse{
			Status: "done",
			Rows:   []RawRow{{Date: "2024-03-01", Description: "Coffee", Amount: "-4.50"}},
		})
	})

	client := newTestClient(t, srv.URL)
	payload, err := client.ExtractDocument(context.Background(), "march.pdf", "application/pdf", "bank_statement", []byte("bytes"))
	require.NoError(t, err)

	assert.Equal(t, "file-123", gotExtract.FileID)
	assert.Equal(t, "bank_statement", gotExtract.DocType)
	require.Len(t, payload.Rows, 1)
	assert.Equal(t, "Coffee", payload.Rows[0].Description)
	assert.NotEmpty(t, payload.Raw)
}

func TestClient_AsyncJobHandleRejected(t *testing.T) {
	srv := extractionServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractResponse{Status: "pending", JobID: "job-9"})
	})

	client := newTestClient(t, srv.URL)
	_, err := client.ExtractDocument(context.Background(), "a.pdf", "", "invoice", nil)
	require.ErrorIs(t, err, ErrAsyncResult)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := extractionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(extractResponse{Status: "done"})
	})

	client := newTestClient(t, srv.URL)
	_, err := client.ExtractDocument(context.Background(), "a.pdf", "", "invoice", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := extractionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad doc type", http.StatusBadRequest)
	})

	client := newTestClient(t, srv.URL)
	_, err := client.ExtractDocument(context.Background(), "a.pdf", "", "invoice", nil)
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := extractionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	})

	client := newTestClient(t, srv.URL)
	_, err := client.ExtractDocument(context.Background(), "a.pdf", "", "invoice", nil)
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, int32(1+defaultMaxRetries), calls.Load())
}

func TestClient_UploadCarriesFilenameAndMime(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		assert.Equal(t, "march.csv", r.Header.Get("X-Filename"))
		json.NewEncoder(w).Encode(uploadResponse{FileID: "file-1"})
	})
	mux.HandleFunc("/v1/extract", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractResponse{Status: "done"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL)
	_, err := client.ExtractDocument(context.Background(), "march.csv", "text/csv", "bank_statement", []byte("a,b"))
	require.NoError(t, err)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
}

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marginalia/api/internal/annotation"
)

func newTestHTTP(t *testing.T) (*HTTPServer, *fakeStore, *memPersister) {
	t.Helper()
	service, fs, persister, _ := newTestService(t)
	return NewHTTPServer(service, "*"), fs, persister
}

func doRequest(t *testing.T, server *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestHTTP(t)
	recorder := doRequest(t, server, http.MethodGet, "/api/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeJSON(t, recorder); payload["ok"] != true {
		t.Fatalf("payload = %v", payload)
	}
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Fatal("no request id header")
	}
}

func TestLabelsEndpoint(t *testing.T) {
	server, _, _ := newTestHTTP(t)
	recorder := doRequest(t, server, http.MethodGet, "/api/labels", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeJSON(t, recorder)
	labels, _ := payload["labels"].([]any)
	if len(labels) != 5 || labels[0] != "ORG" {
		t.Fatalf("labels = %v", labels)
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	server, _, _ := newTestHTTP(t)

	recorder := doRequest(t, server, http.MethodPost, "/api/documents",
		`{"title":"T","filename":"t.txt","content":"Apple works with Google."}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	created := decodeJSON(t, recorder)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("no id in %v", created)
	}

	recorder = doRequest(t, server, http.MethodGet, "/api/documents/"+id, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("get status = %d", recorder.Code)
	}
	payload := decodeJSON(t, recorder)
	if payload["content"] != "Apple works with Google." {
		t.Fatalf("content = %v", payload["content"])
	}
}

func TestCreateDocumentWithoutContent(t *testing.T) {
	server, _, _ := newTestHTTP(t)
	recorder := doRequest(t, server, http.MethodPost, "/api/documents", `{"title":"T"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeJSON(t, recorder); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestGetMissingDocument(t *testing.T) {
	server, _, _ := newTestHTTP(t)
	recorder := doRequest(t, server, http.MethodGet, "/api/documents/doc-missing", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeJSON(t, recorder); payload["code"] != "NOT_FOUND" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestCreateSpanEndpoint(t *testing.T) {
	server, fs, _ := newTestHTTP(t)
	fs.seed("doc-1", "pending", "Apple works with Google.")

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/spans",
		`{"label":"org","spanStart":17,"spanEnd":23}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	payload := decodeJSON(t, recorder)
	span, _ := payload["span"].(map[string]any)
	if span["text"] != "Google" || span["label"] != "ORG" {
		t.Fatalf("span = %v", span)
	}
	if span["source"] != "manual" {
		t.Fatalf("source = %v", span["source"])
	}
}

func TestCreateSpanValidationError(t *testing.T) {
	server, fs, _ := newTestHTTP(t)
	fs.seed("doc-1", "pending", "Apple works with Google.")

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/spans",
		`{"label":"ORG","spanStart":10,"spanEnd":5}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeJSON(t, recorder); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestDeleteMissingSpan(t *testing.T) {
	server, fs, _ := newTestHTTP(t)
	fs.seed("doc-1", "pending", "Apple works with Google.")

	recorder := doRequest(t, server, http.MethodDelete, "/api/documents/doc-1/spans/spn_absent", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestAcceptAndRejectEndpoints(t *testing.T) {
	server, fs, persister := newTestHTTP(t)
	fs.seed("doc-1", "in_progress", "Apple works with Google.")
	ctx := context.Background()

	first, _ := persister.CreateSpan(ctx, "doc-1", annotation.Draft{
		Label: "ORG", Start: 0, End: 5, Text: "Apple", Confidence: 0.9, Source: annotation.SourcePendingBatch,
	})
	second, _ := persister.CreateSpan(ctx, "doc-1", annotation.Draft{
		Label: "ORG", Start: 17, End: 23, Text: "Google", Confidence: 0.8, Source: annotation.SourcePendingBatch,
	})

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/spans/"+first.ID+"/accept", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("accept status = %d", recorder.Code)
	}
	payload := decodeJSON(t, recorder)
	spans, _ := payload["spans"].([]any)
	if len(spans) != 2 {
		t.Fatalf("spans = %v", spans)
	}
	accepted, _ := spans[0].(map[string]any)
	if accepted["source"] != "ai" {
		t.Fatalf("accepted span = %v", accepted)
	}

	recorder = doRequest(t, server, http.MethodPost, "/api/documents/doc-1/spans/"+second.ID+"/reject", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("reject status = %d", recorder.Code)
	}
	payload = decodeJSON(t, recorder)
	if spans, _ := payload["spans"].([]any); len(spans) != 1 {
		t.Fatalf("spans after reject = %v", spans)
	}
}

func TestBulkEndpoints(t *testing.T) {
	server, fs, persister := newTestHTTP(t)
	fs.seed("doc-1", "in_progress", "Apple works with Google.")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = persister.CreateSpan(ctx, "doc-1", annotation.Draft{
			Label: "ORG", Start: i, End: i + 5, Confidence: 0.5, Source: annotation.SourcePendingBatch,
		})
	}

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/spans/accept-all", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("accept-all status = %d", recorder.Code)
	}
	payload := decodeJSON(t, recorder)
	if payload["processed"] != float64(2) || payload["failed"] != float64(0) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSuggestEndpointWhenDown(t *testing.T) {
	service, fs, _, sugg := newTestService(t)
	fs.seed("doc-1", "pending", "Apple works with Google.")
	sugg.healthy = false
	server := NewHTTPServer(service, "*")

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/suggest", `{}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeJSON(t, recorder); payload["mlAvailable"] != false {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSegmentsEndpoint(t *testing.T) {
	server, fs, persister := newTestHTTP(t)
	fs.seed("doc-1", "in_progress", "Apple works with Google.")
	_, _ = persister.CreateSpan(context.Background(), "doc-1", annotation.Draft{
		Label: "ORG", Start: 0, End: 5, Text: "Apple", Confidence: 1, Source: annotation.SourceManual,
	})

	recorder := doRequest(t, server, http.MethodGet, "/api/documents/doc-1/segments", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	payload := decodeJSON(t, recorder)
	segments, _ := payload["segments"].([]any)
	if len(segments) != 2 {
		t.Fatalf("segments = %v", segments)
	}
	first, _ := segments[0].(map[string]any)
	if first["kind"] != "annotation" || first["value"] != "Apple" {
		t.Fatalf("first segment = %v", first)
	}
}

func TestSelectionEndpoint(t *testing.T) {
	server, fs, _ := newTestHTTP(t)
	fs.seed("doc-1", "in_progress", "Apple works with Google.")

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/selection",
		`{"startSegment":0,"startOffset":17,"endSegment":0,"endOffset":23}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	payload := decodeJSON(t, recorder)
	if payload["ok"] != true {
		t.Fatalf("payload = %v", payload)
	}
	rangePayload, _ := payload["range"].(map[string]any)
	if rangePayload["text"] != "Google" {
		t.Fatalf("range = %v", rangePayload)
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	server, _, _ := newTestHTTP(t)

	recorder := doRequest(t, server, http.MethodGet, "/api/search?q=x&limit=500", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("limit status = %d", recorder.Code)
	}
	recorder = doRequest(t, server, http.MethodGet, "/api/search?q=x&type=thread", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("type status = %d", recorder.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _, _ := newTestHTTP(t)
	recorder := doRequest(t, server, http.MethodGet, "/api/nope", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, fs, _ := newTestHTTP(t)
	fs.seed("doc-1", "pending", "text here")

	recorder := doRequest(t, server, http.MethodPut, "/api/documents/doc-1/status", `{"status":"completed"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload := decodeJSON(t, recorder); payload["status"] != "completed" {
		t.Fatalf("payload = %v", payload)
	}

	recorder = doRequest(t, server, http.MethodPut, "/api/documents/doc-1/status", `{"status":"bogus"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid status code = %d", recorder.Code)
	}
}

func TestDeleteDocumentEndpoint(t *testing.T) {
	server, fs, _ := newTestHTTP(t)
	fs.seed("doc-1", "pending", "text here")

	recorder := doRequest(t, server, http.MethodDelete, "/api/documents/doc-1", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	recorder = doRequest(t, server, http.MethodGet, "/api/documents/doc-1", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("document survived delete: %d", recorder.Code)
	}
}

func TestCreateSpanUnknownLabel(t *testing.T) {
	server, fs, persister := newTestHTTP(t)
	fs.seed("doc-1", "pending", "Apple works with Google.")

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/spans",
		`{"label":"BOGUS","spanStart":0,"spanEnd":5}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	if payload := decodeJSON(t, recorder); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("payload = %v", payload)
	}
	if persister.next != 0 {
		t.Fatalf("unknown label was persisted: %d spans", persister.next)
	}
}

func TestSuggestEndpointWithoutBody(t *testing.T) {
	service, fs, _, sugg := newTestService(t)
	fs.seed("doc-1", "pending", "Apple works with Google.")
	sugg.healthy = false
	server := NewHTTPServer(service, "*")

	recorder := doRequest(t, server, http.MethodPost, "/api/documents/doc-1/suggest", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	if payload := decodeJSON(t, recorder); payload["mlAvailable"] != false {
		t.Fatalf("payload = %v", payload)
	}
}

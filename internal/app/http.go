package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database":  map[string]any{"status": "ok"},
			"suggester": map[string]any{"available": s.service.SuggesterAvailable(ctx)},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/labels" {
		writeJSON(w, http.StatusOK, map[string]any{"labels": s.service.Labels()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocuments(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	filterType := strings.TrimSpace(r.URL.Query().Get("type"))
	filterLabel := strings.TrimSpace(r.URL.Query().Get("label"))
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100", nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_OFFSET", "offset must be >= 0", nil)
			return
		}
		offset = parsed
	}
	switch filterType {
	case "", string(search.ResultDocument), string(search.ResultSpan):
	default:
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be document or span", nil)
		return
	}

	response := s.service.Search(search.Query{
		Text:        q,
		FilterType:  search.ResultType(filterType),
		FilterLabel: strings.ToUpper(filterLabel),
		Limit:       limit,
		Offset:      offset,
	})
	writeJSON(w, http.StatusOK, response)
}

// handleDocuments dispatches everything under /api/documents. parts
// holds the path segments after "documents".
func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		payload, err := s.service.ListDocuments(r.Context())
		s.respond(w, payload, err)

	case len(parts) == 0 && r.Method == http.MethodPost:
		var body struct {
			Title    string `json:"title"`
			Filename string `json:"filename"`
			Content  string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateDocument(r.Context(), body.Title, body.Filename, body.Content)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)

	case len(parts) == 1 && r.Method == http.MethodGet:
		payload, err := s.service.GetDocument(r.Context(), parts[0])
		s.respond(w, payload, err)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteDocument(r.Context(), parts[0]); err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPut:
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateDocumentStatus(r.Context(), parts[0], body.Status)
		s.respond(w, payload, err)

	case len(parts) == 2 && parts[1] == "original" && r.Method == http.MethodGet:
		content, filename, err := s.service.OriginalContent(r.Context(), parts[0])
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)

	case len(parts) == 2 && parts[1] == "segments" && r.Method == http.MethodGet:
		segments, err := s.service.Segments(r.Context(), parts[0])
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"segments": segments})

	case len(parts) == 2 && parts[1] == "selection" && r.Method == http.MethodPost:
		var body SelectionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ResolveSelection(r.Context(), parts[0], body)
		s.respond(w, payload, err)

	case len(parts) == 2 && parts[1] == "suggest" && r.Method == http.MethodPost:
		var body SuggestInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.Suggest(r.Context(), parts[0], body)
		s.respond(w, payload, err)

	case len(parts) >= 2 && parts[1] == "spans":
		s.handleSpans(w, r, parts[0], parts[2:])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSpans(w http.ResponseWriter, r *http.Request, documentID string, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		spans, err := s.service.ListSpans(r.Context(), documentID)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"spans": spans})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var body SpanInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateSpan(r.Context(), documentID, body)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)

	case len(parts) == 1 && parts[0] == "accept-all" && r.Method == http.MethodPost:
		payload, err := s.service.AcceptAllSpans(r.Context(), documentID)
		s.respond(w, payload, err)

	case len(parts) == 1 && parts[0] == "reject-all" && r.Method == http.MethodPost:
		payload, err := s.service.RejectAllSpans(r.Context(), documentID)
		s.respond(w, payload, err)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		spans, err := s.service.RemoveSpan(r.Context(), documentID, parts[0])
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"spans": spans})

	case len(parts) == 2 && parts[1] == "accept" && r.Method == http.MethodPost:
		spans, err := s.service.AcceptSpan(r.Context(), documentID, parts[0])
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"spans": spans})

	case len(parts) == 2 && parts[1] == "reject" && r.Method == http.MethodPost:
		spans, err := s.service.RejectSpan(r.Context(), documentID, parts[0])
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"spans": spans})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// respond writes payload on success or the mapped error otherwise.
func (s *HTTPServer) respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body means "all defaults" on routes whose fields
		// are all optional.
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validation *annotation.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Error(), nil
	}
	var unresolvable *annotation.UnresolvableSuggestionError
	if errors.As(err, &unresolvable) {
		return http.StatusUnprocessableEntity, "UNRESOLVABLE_SUGGESTION", unresolvable.Error(), nil
	}
	var notFound *annotation.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil
	}
	var persistence *annotation.PersistenceError
	if errors.As(err, &persistence) {
		return http.StatusBadGateway, "PERSISTENCE_ERROR", "Persistence failure", nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/blob"
	"marginalia/api/internal/config"
	"marginalia/api/internal/doccache"
	"marginalia/api/internal/offsets"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
	"marginalia/api/internal/suggest"
	"marginalia/api/internal/util"
)

// SpanInput is the request body for manual span creation.
type SpanInput struct {
	Label      string  `json:"label"`
	Start      int     `json:"spanStart"`
	End        int     `json:"spanEnd"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// SuggestInput tunes a suggestion run. Mode "review" parks suggestions
// as pending_batch; "direct" confirms them as ai immediately.
type SuggestInput struct {
	Labels []string `json:"labels"`
	TopK   int      `json:"topK"`
	Mode   string   `json:"mode"`
}

// SelectionInput addresses a selection by segment index + rune offset
// within that segment, for both endpoints.
type SelectionInput struct {
	StartSegment int `json:"startSegment"`
	StartOffset  int `json:"startOffset"`
	EndSegment   int `json:"endSegment"`
	EndOffset    int `json:"endOffset"`
}

type dataStore interface {
	Ping(ctx context.Context) error
	InsertDocument(ctx context.Context, doc store.Document, content string) error
	ListDocuments(ctx context.Context) ([]store.Document, error)
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	GetDocumentContent(ctx context.Context, documentID string) (string, error)
	UpdateDocumentStatus(ctx context.Context, documentID, status string) error
	DeleteDocument(ctx context.Context, documentID string) error
	SpanCount(ctx context.Context, documentID string) (pending int, confirmed int, err error)
}

type suggester interface {
	Health(ctx context.Context) bool
	Suggest(ctx context.Context, request suggest.Request) ([]annotation.Suggestion, int, error)
	AddExemplar(ctx context.Context, exemplar suggest.Exemplar) error
	DeleteExemplar(ctx context.Context, text, label string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	spans     *annotation.Store
	lifecycle *annotation.Lifecycle
	cache     doccache.Cache
	archive   *blob.Archive // nil when MinIO is not configured
	search    *search.Service
	suggester suggester // nil when no suggester is configured
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	spans *annotation.Store,
	lifecycle *annotation.Lifecycle,
	cache doccache.Cache,
	archive *blob.Archive,
	searchService *search.Service,
	suggestClient *suggest.Client,
) *Service {
	service := &Service{
		cfg:       cfg,
		store:     dataStore,
		spans:     spans,
		lifecycle: lifecycle,
		cache:     cache,
		archive:   archive,
		search:    searchService,
	}
	if suggestClient != nil {
		service.suggester = suggestClient
	}
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a sample document on an empty database so the UI has
// something to annotate out of the box.
func (s *Service) Bootstrap(ctx context.Context) error {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(documents) > 0 {
		return nil
	}

	content := "Apple announced a partnership with OpenAI in Cupertino on June 10, 2024. " +
		"Tim Cook said the collaboration would bring new intelligence features to millions of devices."
	_, err = s.CreateDocument(ctx, "Sample: Apple x OpenAI", "sample.txt", content)
	return err
}

// ---- documents ----

func (s *Service) CreateDocument(ctx context.Context, title, filename, content string) (map[string]any, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSpace(filename)
	}
	if title == "" {
		title = "Untitled document"
	}

	sum := sha256.Sum256([]byte(content))
	doc := store.Document{
		ID:         util.ShortID("doc", 12),
		Title:      title,
		Filename:   filename,
		Status:     "pending",
		ContentSHA: hex.EncodeToString(sum[:]),
	}
	if err := s.store.InsertDocument(ctx, doc, content); err != nil {
		return nil, err
	}
	s.cache.Set(ctx, doc.ID, content)

	if s.archive != nil {
		go func() {
			if err := s.archive.Put(context.Background(), doc.ID, filename, []byte(content)); err != nil {
				log.Printf("app: archive document %s: %v", doc.ID, err)
			}
		}()
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:       doc.ID,
		Title:    doc.Title,
		Filename: doc.Filename,
		Status:   doc.Status,
		Excerpt:  excerpt(content, 500),
	})

	// Created moments ago; count query would always be zero.
	return documentPayload(doc, 0, 0), nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]map[string]any, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		pending, confirmed, err := s.store.SpanCount(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		payload = append(payload, documentPayload(doc, pending, confirmed))
	}
	return payload, nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	content, err := s.DocumentText(ctx, documentID)
	if err != nil {
		return nil, err
	}
	spans, err := s.spans.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	pending, confirmed := annotation.Partition(spans)

	payload := documentPayload(doc, len(pending), len(confirmed))
	payload["content"] = content
	payload["spans"] = spans
	return payload, nil
}

// DocumentText returns the raw document string, cache first. Content is
// immutable, so a hit never needs revalidation.
func (s *Service) DocumentText(ctx context.Context, documentID string) (string, error) {
	if content, ok := s.cache.Get(ctx, documentID); ok {
		return content, nil
	}
	content, err := s.store.GetDocumentContent(ctx, documentID)
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, documentID, content)
	return content, nil
}

func (s *Service) UpdateDocumentStatus(ctx context.Context, documentID, status string) (map[string]any, error) {
	if !store.ValidDocumentStatus(status) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"status must be one of "+strings.Join(store.DocumentStatuses, ", "), nil)
	}
	if err := s.store.UpdateDocumentStatus(ctx, documentID, status); err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	pending, confirmed, err := s.store.SpanCount(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:       doc.ID,
		Title:    doc.Title,
		Filename: doc.Filename,
		Status:   doc.Status,
	})
	return documentPayload(doc, pending, confirmed), nil
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	spans, err := s.spans.List(ctx, documentID)
	if err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, documentID)
	s.search.DeleteDocument(documentID)
	for _, span := range spans {
		s.search.DeleteSpan(span.ID)
	}
	if s.archive != nil {
		go func() {
			if err := s.archive.Remove(context.Background(), documentID, doc.Filename); err != nil {
				log.Printf("app: remove archived document %s: %v", documentID, err)
			}
		}()
	}
	return nil
}

// OriginalContent fetches the archived upload for a document.
func (s *Service) OriginalContent(ctx context.Context, documentID string) ([]byte, string, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, "", err
	}
	if s.archive == nil {
		return nil, "", domainError(http.StatusNotFound, "ARCHIVE_DISABLED", "document archive is not configured", nil)
	}
	content, err := s.archive.Fetch(ctx, documentID, doc.Filename)
	if err != nil {
		return nil, "", domainError(http.StatusNotFound, "NOT_FOUND", "archived upload not found", nil)
	}
	return content, doc.Filename, nil
}

// ---- spans ----

func (s *Service) ListSpans(ctx context.Context, documentID string) ([]annotation.Span, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.spans.List(ctx, documentID)
}

func (s *Service) CreateSpan(ctx context.Context, documentID string, input SpanInput) (map[string]any, error) {
	text, err := s.DocumentText(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !s.knownLabel(input.Label) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"label must be one of "+strings.Join(s.cfg.Labels, ", "), nil)
	}
	draft := annotation.Draft{
		Label:      input.Label,
		Start:      input.Start,
		End:        input.End,
		Text:       input.Text,
		Confidence: input.Confidence,
		Source:     annotation.Source(input.Source),
	}
	if input.Source == "" {
		draft.Source = annotation.SourceManual
	}
	if input.Confidence == 0 {
		draft.Confidence = 1.0
	}
	created, spans, err := s.spans.Create(ctx, documentID, text, draft)
	if err != nil {
		return nil, err
	}

	s.advanceFromPending(ctx, documentID)
	if !created.Source.Pending() {
		s.search.IndexSpan(spanRecord(created))
		s.feedExemplar(created, text)
	}

	return map[string]any{"span": created, "spans": spans}, nil
}

func (s *Service) RemoveSpan(ctx context.Context, documentID, spanID string) ([]annotation.Span, error) {
	spans, err := s.spans.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	removed, found := spanByID(spans, spanID)

	remaining, err := s.spans.Remove(ctx, documentID, spanID)
	if err != nil {
		return nil, err
	}
	s.search.DeleteSpan(spanID)
	if found && !removed.Source.Pending() && s.suggester != nil {
		go func() {
			if err := s.suggester.DeleteExemplar(context.Background(), removed.Text, removed.Label); err != nil {
				log.Printf("app: delete exemplar for span %s: %v", spanID, err)
			}
		}()
	}
	return remaining, nil
}

// AcceptSpan confirms a pending suggestion, feeding it back to the
// suggester as an exemplar.
func (s *Service) AcceptSpan(ctx context.Context, documentID, spanID string) ([]annotation.Span, error) {
	spans, err := s.lifecycle.Accept(ctx, documentID, spanID)
	if err != nil {
		return nil, err
	}
	if accepted, found := spanByID(spans, spanID); found && !accepted.Source.Pending() {
		s.search.IndexSpan(spanRecord(accepted))
		if text, err := s.DocumentText(ctx, documentID); err == nil {
			s.feedExemplar(accepted, text)
		}
	}
	return spans, nil
}

// RejectSpan discards a pending suggestion entirely.
func (s *Service) RejectSpan(ctx context.Context, documentID, spanID string) ([]annotation.Span, error) {
	spans, err := s.lifecycle.Reject(ctx, documentID, spanID)
	if err != nil {
		return nil, err
	}
	s.search.DeleteSpan(spanID)
	return spans, nil
}

func (s *Service) AcceptAllSpans(ctx context.Context, documentID string) (map[string]any, error) {
	before, err := s.spans.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	wasPending, _ := annotation.Partition(before)

	result, err := s.lifecycle.AcceptAll(ctx, documentID)
	if err != nil {
		return nil, err
	}
	records := make([]search.SpanRecord, 0, len(result.Spans))
	for _, span := range result.Spans {
		if !span.Source.Pending() {
			records = append(records, spanRecord(span))
		}
	}
	s.search.SyncSpans(records, nil)
	if text, err := s.DocumentText(ctx, documentID); err == nil {
		for _, was := range wasPending {
			if now, found := spanByID(result.Spans, was.ID); found && now.Source == annotation.SourceAI {
				s.feedExemplar(now, text)
			}
		}
	}
	return bulkPayload(result), nil
}

func (s *Service) RejectAllSpans(ctx context.Context, documentID string) (map[string]any, error) {
	before, err := s.spans.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	result, err := s.lifecycle.RejectAll(ctx, documentID)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0)
	for _, span := range before {
		if _, still := spanByID(result.Spans, span.ID); !still {
			removed = append(removed, span.ID)
		}
	}
	s.search.SyncSpans(nil, removed)
	return bulkPayload(result), nil
}

// ---- suggestions ----

func (s *Service) Suggest(ctx context.Context, documentID string, input SuggestInput) (map[string]any, error) {
	text, err := s.DocumentText(ctx, documentID)
	if err != nil {
		return nil, err
	}

	mode := input.Mode
	if mode == "" {
		mode = "review"
	}
	source := annotation.SourcePendingBatch
	switch mode {
	case "review":
	case "direct":
		source = annotation.SourceAI
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "mode must be review or direct", nil)
	}

	labels := input.Labels
	if len(labels) == 0 {
		labels = s.cfg.Labels
	}
	topK := input.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	if s.suggester == nil || !s.suggester.Health(ctx) {
		spans, err := s.spans.List(ctx, documentID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"mlAvailable": false,
			"mode":        mode,
			"created":     []map[string]any{},
			"dropped":     []map[string]any{},
			"spans":       spans,
		}, nil
	}

	suggestions, exemplarsUsed, err := s.suggester.Suggest(ctx, suggest.Request{
		Text:   text,
		Task:   "ner",
		Labels: labels,
		TopK:   topK,
	})
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "SUGGESTER_ERROR", "suggestion request failed", err.Error())
	}

	created := make([]map[string]any, 0, len(suggestions))
	dropped := make([]map[string]any, 0)
	var spans []annotation.Span
	for _, sug := range suggestions {
		if !s.knownLabel(sug.Label) {
			dropped = append(dropped, map[string]any{
				"label":  sug.Label,
				"text":   sug.Text,
				"reason": "label is not in the configured label set",
			})
			continue
		}
		resolution, err := annotation.Reconcile(text, sug, source)
		if err != nil {
			dropped = append(dropped, map[string]any{
				"label":  sug.Label,
				"text":   sug.Text,
				"reason": err.Error(),
			})
			continue
		}
		span, reloaded, err := s.spans.Create(ctx, documentID, text, resolution.Draft)
		if err != nil {
			dropped = append(dropped, map[string]any{
				"label":  sug.Label,
				"text":   sug.Text,
				"reason": err.Error(),
			})
			continue
		}
		spans = reloaded
		created = append(created, map[string]any{
			"span":        span,
			"occurrences": resolution.Occurrences,
		})
		if source == annotation.SourceAI {
			s.search.IndexSpan(spanRecord(span))
		}
	}
	if spans == nil {
		spans, err = s.spans.List(ctx, documentID)
		if err != nil {
			return nil, err
		}
	}
	if len(created) > 0 {
		s.advanceFromPending(ctx, documentID)
	}

	return map[string]any{
		"mlAvailable":   true,
		"mode":          mode,
		"created":       created,
		"dropped":       dropped,
		"spans":         spans,
		"exemplarsUsed": exemplarsUsed,
	}, nil
}

// ---- rendering and selection ----

func (s *Service) Segments(ctx context.Context, documentID string) ([]annotation.Segment, error) {
	text, err := s.DocumentText(ctx, documentID)
	if err != nil {
		return nil, err
	}
	spans, err := s.spans.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return annotation.Compose(text, spans), nil
}

// ResolveSelection maps a selection over the rendered segment list back
// to rune offsets in the raw document.
func (s *Service) ResolveSelection(ctx context.Context, documentID string, input SelectionInput) (map[string]any, error) {
	segments, err := s.Segments(ctx, documentID)
	if err != nil {
		return nil, err
	}
	root := offsets.FromSegments(segments)
	startNode := offsets.TextNodeAt(root, input.StartSegment)
	endNode := offsets.TextNodeAt(root, input.EndSegment)
	if startNode == nil || endNode == nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "segment index out of range", nil)
	}
	r, ok := offsets.Resolve(root, offsets.Selection{
		Start: offsets.Position{Node: startNode, Offset: input.StartOffset},
		End:   offsets.Position{Node: endNode, Offset: input.EndOffset},
	})
	if !ok {
		return map[string]any{"ok": false}, nil
	}
	return map[string]any{"ok": true, "range": r}, nil
}

// ---- search ----

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) Labels() []string {
	return s.cfg.Labels
}

// SuggesterAvailable reports whether the external suggester answers its
// health check right now.
func (s *Service) SuggesterAvailable(ctx context.Context) bool {
	return s.suggester != nil && s.suggester.Health(ctx)
}

// ---- helpers ----

// advanceFromPending moves a document from pending to in_progress once
// annotation starts. Best-effort; a failure leaves the status alone.
func (s *Service) advanceFromPending(ctx context.Context, documentID string) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil || doc.Status != "pending" {
		return
	}
	if err := s.store.UpdateDocumentStatus(ctx, documentID, "in_progress"); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("app: advance document %s to in_progress: %v", documentID, err)
	}
}

// feedExemplar pushes a confirmed span to the suggester so future
// retrieval can use it. Fire-and-forget.
func (s *Service) feedExemplar(span annotation.Span, docText string) {
	if s.suggester == nil {
		return
	}
	exemplar := suggest.Exemplar{
		DocumentID: span.DocumentID,
		Text:       span.Text,
		Label:      span.Label,
		SpanStart:  span.Start,
		SpanEnd:    span.End,
		Context:    surrounding(docText, span.Start, span.End, 80),
	}
	go func() {
		if err := s.suggester.AddExemplar(context.Background(), exemplar); err != nil {
			log.Printf("app: add exemplar for span %s: %v", span.ID, err)
		}
	}()
}

// knownLabel reports whether label belongs to the configured label set.
// The engine only requires non-empty labels; membership is a service
// concern because the set comes from configuration.
func (s *Service) knownLabel(label string) bool {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, candidate := range s.cfg.Labels {
		if candidate == label {
			return true
		}
	}
	return false
}

// surrounding extracts a context window of pad runes on each side.
func surrounding(docText string, start, end, pad int) string {
	runes := []rune(docText)
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(runes) {
		hi = len(runes)
	}
	if lo >= hi {
		return ""
	}
	return string(runes[lo:hi])
}

func excerpt(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}

func documentPayload(doc store.Document, pending, confirmed int) map[string]any {
	return map[string]any{
		"id":             doc.ID,
		"title":          doc.Title,
		"filename":       doc.Filename,
		"status":         doc.Status,
		"contentSha":     doc.ContentSHA,
		"createdAt":      doc.CreatedAt,
		"updatedAt":      doc.UpdatedAt,
		"pendingSpans":   pending,
		"confirmedSpans": confirmed,
	}
}

func bulkPayload(result annotation.BulkResult) map[string]any {
	return map[string]any{
		"processed": result.Processed,
		"failed":    result.Failed,
		"spans":     result.Spans,
	}
}

func spanRecord(span annotation.Span) search.SpanRecord {
	return search.SpanRecord{
		ID:         span.ID,
		DocumentID: span.DocumentID,
		Label:      span.Label,
		Text:       span.Text,
		Source:     string(span.Source),
	}
}

func spanByID(spans []annotation.Span, spanID string) (annotation.Span, bool) {
	for _, span := range spans {
		if span.ID == spanID {
			return span, true
		}
	}
	return annotation.Span{}, false
}

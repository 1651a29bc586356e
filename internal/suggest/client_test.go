package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, 10*time.Second)
	if !client.Health(context.Background()) {
		t.Fatal("Health = false against a live server")
	}
}

func TestHealthUnreachable(t *testing.T) {
	client := New("http://127.0.0.1:1", time.Second)
	if client.Health(context.Background()) {
		t.Fatal("Health = true against a dead endpoint")
	}
}

func TestSuggestMapsWireFormat(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/suggest" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"suggestions": [
				{"label": "ORG", "text": "Google", "span_start": 17, "span_end": 23, "confidence": 0.92, "rationale": "well-known company"},
				{"label": "PERSON", "text": "Tim Cook", "confidence": 0.7}
			],
			"exemplars_used": 5
		}`))
	}))
	defer server.Close()

	client := New(server.URL, 10*time.Second)
	suggestions, exemplarsUsed, err := client.Suggest(context.Background(), Request{
		Text:   "Apple works with Google.",
		Labels: []string{"ORG", "PERSON"},
		TopK:   3,
	})
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}

	if received.Task != "ner" {
		t.Fatalf("task defaulted to %q, want ner", received.Task)
	}
	if received.TopK != 3 {
		t.Fatalf("top_k = %d", received.TopK)
	}

	if exemplarsUsed != 5 {
		t.Fatalf("exemplarsUsed = %d, want 5", exemplarsUsed)
	}
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions", len(suggestions))
	}
	first := suggestions[0]
	if first.SpanStart == nil || *first.SpanStart != 17 || first.SpanEnd == nil || *first.SpanEnd != 23 {
		t.Fatalf("offsets not carried over: %+v", first)
	}
	if first.Rationale != "well-known company" {
		t.Fatalf("rationale = %q", first.Rationale)
	}
	second := suggestions[1]
	if second.SpanStart != nil || second.SpanEnd != nil {
		t.Fatalf("absent offsets should stay nil: %+v", second)
	}
}

func TestSuggestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, 10*time.Second)
	if _, _, err := client.Suggest(context.Background(), Request{Text: "text"}); err == nil {
		t.Fatal("expected an error on 500")
	}
}

func TestAddExemplar(t *testing.T) {
	var received Exemplar
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exemplars" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, 10*time.Second)
	err := client.AddExemplar(context.Background(), Exemplar{
		DocumentID: "doc-1",
		Text:       "Google",
		Label:      "ORG",
		SpanStart:  17,
		SpanEnd:    23,
		Context:    "Apple works with Google.",
	})
	if err != nil {
		t.Fatalf("AddExemplar failed: %v", err)
	}
	if received.Text != "Google" || received.Label != "ORG" || received.SpanStart != 17 {
		t.Fatalf("exemplar payload = %+v", received)
	}
}

func TestDeleteExemplar(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exemplars/delete" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, 10*time.Second)
	if err := client.DeleteExemplar(context.Background(), "Google", "ORG"); err != nil {
		t.Fatalf("DeleteExemplar failed: %v", err)
	}
	if received["text"] != "Google" || received["label"] != "ORG" {
		t.Fatalf("payload = %v", received)
	}
}

package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type completionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestCompleteTalksToConfiguredEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "llama3.1" {
			t.Errorf("expected default model llama3.1, got %q", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected system+user messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" || req.Messages[0].Content != "ground rules" {
			t.Errorf("unexpected system message %+v", req.Messages[0])
		}
		if req.Messages[1].Role != "user" || req.Messages[1].Content != "What is discussed?" {
			t.Errorf("unexpected user message %+v", req.Messages[1])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"The answer."}}]}`))
	}))
	defer srv.Close()

	engine := NewOpenAIEngine(Config{BaseURL: srv.URL})
	got, err := engine.Complete(context.Background(), "ground rules", "What is discussed?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "The answer." {
		t.Errorf("expected %q, got %q", "The answer.", got)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	engine := NewOpenAIEngine(Config{BaseURL: srv.URL})
	if _, err := engine.Complete(context.Background(), "ground rules", "q"); err == nil {
		t.Error("expected error for response without choices")
	}
}

func TestCompleteReportsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	engine := NewOpenAIEngine(Config{BaseURL: srv.URL, Model: "llama3.1"})
	if _, err := engine.Complete(context.Background(), "ground rules", "q"); err == nil {
		t.Error("expected error for non-200 response")
	}
}

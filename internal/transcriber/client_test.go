package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribeReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse upload: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		if got := r.FormValue("model"); got != "tiny" {
			t.Errorf("expected model tiny, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"text":" hello world"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL, APIKey: "secret", Model: "tiny"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	text, err := client.Transcribe(context.Background(), []byte("RIFFwav"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != " hello world" {
		t.Errorf("expected raw service text, got %q", text)
	}
}

func TestTranscribeReportsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), []byte("RIFFwav")); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

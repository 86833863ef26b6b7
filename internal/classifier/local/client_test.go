package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestComplete(t *testing.T) {
	var req struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"{\"format\":\"text\",\"intent\":\"complaint\",\"confidence\":0.7}"}}`))
	}))
	defer server.Close()

	c := New("llama3.2", WithBaseURL(server.URL))
	got, err := c.Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(got, `"intent":"complaint"`) {
		t.Errorf("content = %q, want the model reply", got)
	}
	if req.Model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", req.Model)
	}
	if req.Stream {
		t.Error("stream = true, want false")
	}
}

func TestCompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"missing\" not found"}`))
	}))
	defer server.Close()

	c := New("missing", WithBaseURL(server.URL))
	_, err := c.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("Complete() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want the upstream message", err)
	}
}

func TestCompleteUnreachable(t *testing.T) {
	c := New("llama3.2", WithBaseURL("http://127.0.0.1:1"))
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Fatal("Complete() error = nil, want connection error")
	}
}

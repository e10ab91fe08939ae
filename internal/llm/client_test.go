package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %s", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "net 30"}},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-model", 5*time.Second)
	got, err := c.Complete(context.Background(), "what are the payment terms?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "net 30" {
		t.Errorf("got %q", got)
	}
}

func TestHTTPClient_CompleteErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		c := NewHTTPClient(srv.URL, "m", time.Second)
		if _, err := c.Complete(context.Background(), "q"); err == nil {
			t.Error("expected error on 503")
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()
		c := NewHTTPClient(srv.URL, "m", time.Second)
		if _, err := c.Complete(context.Background(), "q"); err == nil {
			t.Error("expected error on empty choices")
		}
	})
}

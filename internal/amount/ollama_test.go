package amount

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaClient_Generate(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"response": " 0.25\n", "done": true})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL+"/", "llama3.2", time.Second)
	reply, err := c.Generate(context.Background(), "how much?")
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if reply != "0.25" {
		t.Errorf("reply = %q, want 0.25", reply)
	}

	if got.Model != "llama3.2" || got.Prompt != "how much?" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Options.Temperature != 0.1 || got.Options.NumPredict != 20 {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestOllamaClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL, "missing", time.Second)
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Error("expected error for 404")
	}

	server.Close()
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Error("expected error for unreachable server")
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/ayusman/facegift/internal/amount"
	"github.com/ayusman/facegift/internal/eventlog"
	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/store"
	"github.com/ayusman/facegift/internal/tracker"
	"github.com/ayusman/facegift/internal/transcript"
)

func TestAPI_DashboardWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	faces := tracker.New(tracker.DefaultConfig(tmpDir), nil, nil)
	events := eventlog.NewRecorder(s.Events(), eventlog.DefaultInterval, nil)
	buf := transcript.NewBuffer(transcript.DefaultMaxSegments)

	var heard []string
	srv := New(Config{
		Faces:        faces,
		OnReset:      faces.Reset,
		Events:       events,
		Transactions: s.Transactions(),
		Transcript:   buf,
		OnTranscript: func(seg transcript.Segment) { heard = append(heard, seg.Text) },
		Amount:       amount.NewParser(nil, 0.1, nil),
	}, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	// 1. A recognition and a payment happen in the pipeline.
	if _, err := events.Recognition("Ada", 0.92, face.Location{Top: 10, Right: 60, Bottom: 60, Left: 10}); err != nil {
		t.Fatal(err)
	}
	tx := &store.Transaction{ID: uuid.NewString(), Currency: store.CurrencySUI, Amount: 0.5, Status: store.StatusSuccess}
	if err := s.Transactions().Create(tx); err != nil {
		t.Fatal(err)
	}

	// 2. The transcriber posts a segment.
	resp, err := client.Post(ts.URL+"/api/transcript", "application/json", bytes.NewBufferString(`{"text":"send 0.5 sui"}`))
	if err != nil {
		t.Fatalf("POST /api/transcript error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || len(heard) != 1 {
		t.Fatalf("POST status = %d, heard = %v", resp.StatusCode, heard)
	}

	// 3. The spoken amount parses.
	resp, err = client.Post(ts.URL+"/api/amount/parse", "application/json", bytes.NewBufferString(`{"text":"send 0.5 sui"}`))
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct {
		Amount float64 `json:"amount"`
		Mist   int64   `json:"mist"`
	}
	json.NewDecoder(resp.Body).Decode(&parsed)
	resp.Body.Close()
	if parsed.Amount != 0.5 || parsed.Mist != 500_000_000 {
		t.Errorf("parsed = %+v", parsed)
	}

	// 4. Stats reflect the log.
	resp, err = client.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	var stats struct {
		Events store.EventStats    `json:"events"`
		Faces  *tracker.Statistics `json:"faces"`
	}
	json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if stats.Events.TotalRecognitions != 1 || stats.Faces == nil {
		t.Errorf("stats = %+v", stats)
	}

	// 5. Totals include the payment.
	resp, err = client.Get(ts.URL + "/api/transactions/totals")
	if err != nil {
		t.Fatal(err)
	}
	var totals map[string]float64
	json.NewDecoder(resp.Body).Decode(&totals)
	resp.Body.Close()
	if totals[store.CurrencySUI] != 0.5 {
		t.Errorf("totals = %v", totals)
	}

	// 6. Reset clears the registry.
	resp, err = client.Post(ts.URL+"/api/faces/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reset status = %d", resp.StatusCode)
	}
}

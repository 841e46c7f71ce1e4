package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/skeinhq/skein/internal/cluster"
	"github.com/skeinhq/skein/internal/edges"
	"github.com/skeinhq/skein/internal/llm"
	"github.com/skeinhq/skein/internal/pipeline"
	"github.com/skeinhq/skein/internal/segment"
	"github.com/skeinhq/skein/internal/store"
	"github.com/skeinhq/skein/internal/synth"
	"github.com/skeinhq/skein/internal/vecindex"
)

type fakeGen struct {
	segments  string
	synthesis string
}

func (f *fakeGen) Generate(ctx context.Context, system, user string, opts llm.GenOpts) (string, error) {
	if strings.Contains(system, "TEMPORAL CONTEXT") {
		return f.synthesis, nil
	}
	return f.segments, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func setupServer(t *testing.T) (http.Handler, *store.DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "server-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	db, err := store.Open(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	gen := &fakeGen{
		segments:  `[{"text": "A single segment about planning a rooftop garden next spring.", "type": "idea"}]`,
		synthesis: `{"title": "Rooftop garden", "summary": "Planning a rooftop garden.", "state": "seed", "stateReason": "new", "realityScore": 6, "groundingNote": "", "momentum": "steady"}`,
	}
	index := vecindex.NewMemoryIndex()
	emb := fixedEmbedder{}
	pl := pipeline.New(db, index, emb,
		segment.New(gen),
		cluster.New(db, index),
		synth.New(gen),
		edges.New(db, index, emb),
	)

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
	return New(db, pl).Handler(), db, cleanup
}

func doJSON(t *testing.T, h http.Handler, method, path, user, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var payload map[string]json.RawMessage
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("Response is not a JSON object: %v\n%s", err, w.Body.String())
		}
	}
	return w, payload
}

func TestCreateAndProcessDump(t *testing.T) {
	h, db, cleanup := setupServer(t)
	defer cleanup()

	w, payload := doJSON(t, h, "POST", "/dumps", "alice", `{"content": "rooftop garden thoughts"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /dumps = %d: %s", w.Code, w.Body.String())
	}

	var dump store.Dump
	if err := json.Unmarshal(payload["dump"], &dump); err != nil {
		t.Fatalf("Bad dump in response: %v", err)
	}
	if dump.Status != store.DumpPending {
		t.Errorf("Expected pending dump, got %s", dump.Status)
	}

	w, _ = doJSON(t, h, "POST", "/dumps/"+dump.ID+"/process", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST process = %d: %s", w.Code, w.Body.String())
	}

	// Second processing attempt conflicts.
	w, _ = doJSON(t, h, "POST", "/dumps/"+dump.ID+"/process", "alice", "")
	if w.Code != http.StatusConflict {
		t.Errorf("Reprocess = %d, want 409", w.Code)
	}

	threads, err := db.ListThreads("alice", "")
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 1 || threads[0].Title != "Rooftop garden" {
		t.Fatalf("Expected one synthesized thread, got %v", threads)
	}
}

func TestCreateDumpInlineProcessing(t *testing.T) {
	h, _, cleanup := setupServer(t)
	defer cleanup()

	w, payload := doJSON(t, h, "POST", "/dumps", "alice", `{"content": "rooftop garden thoughts", "process": true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /dumps = %d: %s", w.Code, w.Body.String())
	}

	var result pipeline.Result
	if err := json.Unmarshal(payload["pipeline"], &result); err != nil {
		t.Fatalf("Expected inline pipeline result: %v", err)
	}
	if result.SegmentsProcessed != 1 {
		t.Errorf("SegmentsProcessed = %d, want 1", result.SegmentsProcessed)
	}

	var dump store.Dump
	json.Unmarshal(payload["dump"], &dump)
	if dump.Status != store.DumpComplete {
		t.Errorf("Inline-processed dump status = %s, want complete", dump.Status)
	}
}

func TestCreateDumpValidation(t *testing.T) {
	h, _, cleanup := setupServer(t)
	defer cleanup()

	w, _ := doJSON(t, h, "POST", "/dumps", "alice", `{"content": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Empty content = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, h, "POST", "/dumps", "alice", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Bad JSON = %d, want 400", w.Code)
	}
}

func TestProcessUnknownDump(t *testing.T) {
	h, _, cleanup := setupServer(t)
	defer cleanup()

	w, _ := doJSON(t, h, "POST", "/dumps/nope/process", "alice", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Unknown dump = %d, want 404", w.Code)
	}
}

func TestListThreadsBoardAndFilter(t *testing.T) {
	h, db, cleanup := setupServer(t)
	defer cleanup()

	a, _ := db.CreateThread("alice", "active one")
	db.CreateThread("alice", "seed one")
	db.UpdateThreadSynthesis(a.ID, store.Synthesis{
		Title: "active one", State: store.StateActive, RealityScore: 5, Momentum: store.MomentumSteady,
	})

	w, payload := doJSON(t, h, "GET", "/threads", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /threads = %d", w.Code)
	}
	var board map[string][]store.Thread
	if err := json.Unmarshal(payload["board"], &board); err != nil {
		t.Fatalf("Bad board: %v", err)
	}
	if len(board["active"]) != 1 || len(board["seed"]) != 1 {
		t.Errorf("Board grouping wrong: %v", board)
	}

	w, payload = doJSON(t, h, "GET", "/threads?state=active", "alice", "")
	var threads []store.Thread
	json.Unmarshal(payload["threads"], &threads)
	if len(threads) != 1 || threads[0].ID != a.ID {
		t.Errorf("State filter wrong: %v", threads)
	}

	w, _ = doJSON(t, h, "GET", "/threads?state=bogus", "alice", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Bogus state = %d, want 400", w.Code)
	}
}

func TestGetThreadDetail(t *testing.T) {
	h, db, cleanup := setupServer(t)
	defer cleanup()

	th, _ := db.CreateThread("alice", "detail thread")
	dump, _ := db.CreateDump("alice", "text", "text", nil)
	seg, _ := db.InsertSegment(dump.ID, "alice", "segment content for detail", store.TypeThought)
	db.AssignSegment(seg.ID, th.ID, 1.0)

	w, payload := doJSON(t, h, "GET", "/threads/"+th.ID, "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET thread = %d", w.Code)
	}
	var segments []store.Segment
	if err := json.Unmarshal(payload["segments"], &segments); err != nil {
		t.Fatalf("Bad segments: %v", err)
	}
	if len(segments) != 1 || segments[0].ID != seg.ID {
		t.Errorf("Detail segments wrong: %v", segments)
	}

	// Threads are user-scoped.
	w, _ = doJSON(t, h, "GET", "/threads/"+th.ID, "bob", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Cross-user thread = %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	h, _, cleanup := setupServer(t)
	defer cleanup()

	w, payload := doJSON(t, h, "GET", "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	var status string
	json.Unmarshal(payload["status"], &status)
	if status != "ok" {
		t.Errorf("status = %q, want ok", status)
	}
	if _, ok := payload["stats"]; !ok {
		t.Error("Expected stats in health payload")
	}
}

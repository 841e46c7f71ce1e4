package edges

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/skeinhq/skein/internal/store"
	"github.com/skeinhq/skein/internal/vecindex"
)

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.vector, f.err
}

func setupTest(t *testing.T) (*store.DB, *vecindex.MemoryIndex, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "edges-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	db, err := store.Open(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}
	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
	return db, vecindex.NewMemoryIndex(), cleanup
}

func TestDiscoverCreatesEdges(t *testing.T) {
	db, idx, cleanup := setupTest(t)
	defer cleanup()

	self, _ := db.CreateThread("alice", "Garage workshop")
	other, _ := db.CreateThread("alice", "Woodworking tools")

	// Two segments of the other thread are close to this thread's summary.
	idx.Upsert("o1", []float64{1, 0, 0}, vecindex.Meta{UserID: "alice", ThreadID: other.ID})
	idx.Upsert("o2", []float64{0.9, 0.1, 0}, vecindex.Meta{UserID: "alice", ThreadID: other.ID})
	// A segment of the thread itself must never produce a self-edge.
	idx.Upsert("s1", []float64{1, 0, 0}, vecindex.Meta{UserID: "alice", ThreadID: self.ID})

	d := New(db, idx, &fakeEmbedder{vector: []float64{1, 0, 0}})
	edges := d.Discover(context.Background(), self.ID, "alice", "Garage workshop", "Converting the garage.")

	if len(edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(edges))
	}
	if edges[0].ToThreadID != other.ID {
		t.Errorf("Edge points at %s, want %s", edges[0].ToThreadID, other.ID)
	}
	if edges[0].EdgeType != store.EdgeRelatesTo {
		t.Errorf("EdgeType = %s", edges[0].EdgeType)
	}
	if !strings.Contains(edges[0].Reason, `"Woodworking tools"`) {
		t.Errorf("Reason should name the connected thread: %q", edges[0].Reason)
	}
	if !strings.Contains(edges[0].Reason, "2 matching segments") {
		t.Errorf("Reason should count matching segments: %q", edges[0].Reason)
	}

	// Persisted, and only outgoing from self
	stored, err := db.OutgoingEdges(self.ID)
	if err != nil {
		t.Fatalf("OutgoingEdges failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected 1 stored edge, got %d", len(stored))
	}
	reverse, _ := db.OutgoingEdges(other.ID)
	if len(reverse) != 0 {
		t.Error("Discovery must not create reverse edges")
	}
}

func TestDiscoverReplacesOldEdges(t *testing.T) {
	db, idx, cleanup := setupTest(t)
	defer cleanup()

	self, _ := db.CreateThread("alice", "self")
	stale, _ := db.CreateThread("alice", "stale neighbor")
	fresh, _ := db.CreateThread("alice", "fresh neighbor")

	if err := db.ReplaceThreadEdges(self.ID, []store.ThreadEdge{
		{ToThreadID: stale.ID, EdgeType: store.EdgeRelatesTo, Strength: 0.8, Reason: "old"},
	}); err != nil {
		t.Fatalf("seed edges: %v", err)
	}

	idx.Upsert("f1", []float64{1, 0, 0}, vecindex.Meta{UserID: "alice", ThreadID: fresh.ID})

	d := New(db, idx, &fakeEmbedder{vector: []float64{1, 0, 0}})
	d.Discover(context.Background(), self.ID, "alice", "self thread title", "summary text")

	stored, _ := db.OutgoingEdges(self.ID)
	if len(stored) != 1 || stored[0].ToThreadID != fresh.ID {
		t.Fatalf("Expected old edges replaced by fresh one, got %v", stored)
	}
}

func TestDiscoverKeepsEdgesWhenNothingQualifies(t *testing.T) {
	db, idx, cleanup := setupTest(t)
	defer cleanup()

	self, _ := db.CreateThread("alice", "self")
	old, _ := db.CreateThread("alice", "old neighbor")

	if err := db.ReplaceThreadEdges(self.ID, []store.ThreadEdge{
		{ToThreadID: old.ID, EdgeType: store.EdgeRelatesTo, Strength: 0.8, Reason: "kept"},
	}); err != nil {
		t.Fatalf("seed edges: %v", err)
	}

	// Only a far-away neighbor below the threshold.
	idx.Upsert("n1", []float64{0, 1, 0}, vecindex.Meta{UserID: "alice", ThreadID: old.ID})

	d := New(db, idx, &fakeEmbedder{vector: []float64{1, 0, 0}})
	edges := d.Discover(context.Background(), self.ID, "alice", "self thread title", "summary text")
	if len(edges) != 0 {
		t.Fatalf("Expected no new edges, got %d", len(edges))
	}

	stored, _ := db.OutgoingEdges(self.ID)
	if len(stored) != 1 || stored[0].Reason != "kept" {
		t.Error("Empty discovery must leave existing edges untouched")
	}
}

func TestDiscoverSkipsShortQuery(t *testing.T) {
	db, idx, cleanup := setupTest(t)
	defer cleanup()

	self, _ := db.CreateThread("alice", "x")
	other, _ := db.CreateThread("alice", "other")
	idx.Upsert("n1", []float64{1, 0, 0}, vecindex.Meta{UserID: "alice", ThreadID: other.ID})

	d := New(db, idx, &fakeEmbedder{vector: []float64{1, 0, 0}})
	edges := d.Discover(context.Background(), self.ID, "alice", "x", "")
	if len(edges) != 0 {
		t.Errorf("Expected no edges for a too-short query, got %d", len(edges))
	}
}

func TestDiscoverSwallowsEmbedFailure(t *testing.T) {
	db, idx, cleanup := setupTest(t)
	defer cleanup()

	self, _ := db.CreateThread("alice", "self")
	old, _ := db.CreateThread("alice", "old neighbor")
	db.ReplaceThreadEdges(self.ID, []store.ThreadEdge{
		{ToThreadID: old.ID, EdgeType: store.EdgeRelatesTo, Strength: 0.7, Reason: "kept"},
	})

	d := New(db, idx, &fakeEmbedder{err: errors.New("embedder down")})
	edges := d.Discover(context.Background(), self.ID, "alice", "self thread title", "summary")
	if edges != nil {
		t.Errorf("Expected nil on failure, got %v", edges)
	}

	stored, _ := db.OutgoingEdges(self.ID)
	if len(stored) != 1 {
		t.Error("Failure must not disturb existing edges")
	}
}

func TestDiscoverCapsEdges(t *testing.T) {
	db, idx, cleanup := setupTest(t)
	defer cleanup()

	self, _ := db.CreateThread("alice", "self")
	for i := 0; i < 7; i++ {
		th, _ := db.CreateThread("alice", "neighbor")
		idx.Upsert(string(rune('a'+i)), []float64{1, 0, 0}, vecindex.Meta{UserID: "alice", ThreadID: th.ID})
	}

	d := New(db, idx, &fakeEmbedder{vector: []float64{1, 0, 0}})
	edges := d.Discover(context.Background(), self.ID, "alice", "self thread title", "summary text")
	if len(edges) != MaxEdgesPerThread {
		t.Errorf("Expected %d edges, got %d", MaxEdgesPerThread, len(edges))
	}
}

// Package edges maintains the relationship graph between idea threads. After
// a thread is resynthesized, its outgoing edges are rediscovered from vector
// similarity and replaced wholesale.
package edges

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/skeinhq/skein/internal/store"
	"github.com/skeinhq/skein/internal/vecindex"
)

const (
	// SimilarityThreshold is the minimum segment similarity for an edge
	// candidate. Higher than the clustering threshold: an edge claims two
	// threads are about related things, which needs stronger evidence than
	// "this segment belongs here".
	SimilarityThreshold = 0.6

	// MaxEdgesPerThread caps outgoing edges per thread.
	MaxEdgesPerThread = 5

	// queryTopK is how many candidate segments one discovery inspects.
	queryTopK = 20

	// minQueryLen skips discovery for threads whose title+summary is too
	// short to embed meaningfully.
	minQueryLen = 10
)

// Embedder abstracts the embedding model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Discoverer finds and rewrites a thread's outgoing edges.
type Discoverer struct {
	store    *store.DB
	index    vecindex.Index
	embedder Embedder
}

// New creates an edge discoverer.
func New(st *store.DB, index vecindex.Index, embedder Embedder) *Discoverer {
	return &Discoverer{store: st, index: index, embedder: embedder}
}

// Discover embeds the thread's fresh title+summary, finds other threads
// whose segments are semantically close, and atomically replaces this
// thread's outgoing edge set with the result. Failures of any kind are
// swallowed: the thread keeps the edges it had, and the pipeline run is
// never failed by edge discovery.
func (d *Discoverer) Discover(ctx context.Context, threadID, userID, title, summary string) []store.ThreadEdge {
	edges, err := d.discover(ctx, threadID, userID, title, summary)
	if err != nil {
		log.Printf("[edges] discovery failed for thread %s (keeping existing edges): %v", threadID, err)
		return nil
	}
	return edges
}

func (d *Discoverer) discover(ctx context.Context, threadID, userID, title, summary string) ([]store.ThreadEdge, error) {
	queryText := strings.TrimSpace(title + ". " + summary)
	if len(queryText) < minQueryLen {
		return nil, nil // too little signal; leave existing edges untouched
	}

	queryVector, err := d.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := d.index.Query(queryVector, userID, queryTopK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	type candidate struct {
		toThreadID string
		totalScore float64
		count      int
	}
	byThread := make(map[string]*candidate)
	order := []string{}

	for _, m := range matches {
		matchThreadID := m.Meta.ThreadID
		if matchThreadID == "" || matchThreadID == threadID {
			continue // skip self
		}
		if m.Score < SimilarityThreshold {
			continue
		}
		cand, ok := byThread[matchThreadID]
		if !ok {
			cand = &candidate{toThreadID: matchThreadID}
			byThread[matchThreadID] = cand
			order = append(order, matchThreadID)
		}
		cand.totalScore += m.Score
		cand.count++
	}

	candidates := make([]*candidate, 0, len(byThread))
	for _, id := range order {
		candidates = append(candidates, byThread[id])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].totalScore/float64(candidates[i].count) >
			candidates[j].totalScore/float64(candidates[j].count)
	})
	if len(candidates) > MaxEdgesPerThread {
		candidates = candidates[:MaxEdgesPerThread]
	}

	edges := make([]store.ThreadEdge, 0, len(candidates))
	for _, cand := range candidates {
		connected, err := d.store.GetThread(cand.toThreadID, userID)
		if err != nil {
			continue // thread vanished or belongs elsewhere; drop the candidate
		}
		edges = append(edges, store.ThreadEdge{
			ToThreadID: cand.toThreadID,
			EdgeType:   store.EdgeRelatesTo,
			Strength:   cand.totalScore / float64(cand.count),
			Reason:     fmt.Sprintf("Shares thematic overlap with %q (%d matching segments)", connected.Title, cand.count),
		})
	}

	if len(edges) == 0 {
		return nil, nil // nothing qualified; existing edges stay as they were
	}

	// Full replace: delete every outgoing edge, insert the new snapshot.
	if err := d.store.ReplaceThreadEdges(threadID, edges); err != nil {
		return nil, fmt.Errorf("replace edges: %w", err)
	}

	if len(edges) > 0 {
		log.Printf("[edges] thread %s: %d edges discovered", threadID, len(edges))
	}
	return edges, nil
}

// Package cluster assigns newly segmented excerpts to idea threads without
// ever re-clustering from scratch.
package cluster

import (
	"context"
	"fmt"
	"log"

	"github.com/skeinhq/skein/internal/store"
	"github.com/skeinhq/skein/internal/vecindex"
)

const (
	// SimilarityThreshold is the minimum cosine similarity for a neighbor
	// segment to count as clustering evidence.
	SimilarityThreshold = 0.55

	// minMatchesForAssignment is how many surviving neighbors are needed
	// before a thread can win by similarity.
	minMatchesForAssignment = 1

	// hintConfidence is the assignment confidence when the segmenter's
	// thread hint matches an existing title.
	hintConfidence = 0.9

	// neighborTopK is how many nearest segments the similarity strategy
	// inspects.
	neighborTopK = 10
)

// Result describes where a segment landed.
type Result struct {
	ThreadID    string  `json:"thread_id"`
	IsNewThread bool    `json:"is_new_thread"`
	Confidence  float64 `json:"confidence"`
}

// Clusterer decides thread membership for one segment at a time.
type Clusterer struct {
	store *store.DB
	index vecindex.Index
}

// New creates a clusterer over the given store and vector index.
func New(st *store.DB, index vecindex.Index) *Clusterer {
	return &Clusterer{store: st, index: index}
}

// Assign routes a segment to a thread using a three-strategy cascade:
//
//  1. Hint match: the segmenter saw the full thread list and may have named
//     a continuing thread; a title match wins cheaply over vector search.
//  2. Vector similarity: nearest same-user segments above the threshold,
//     grouped by thread; the thread with the highest AVERAGE similarity
//     wins, so large threads can't win on sheer segment count.
//  3. New thread: seed a fresh thread titled from the segment's own text.
//
// Each successful strategy updates the segment row and the winning thread's
// counters before returning.
func (c *Clusterer) Assign(ctx context.Context, seg *store.Segment, vector []float64, userID, threadHint string) (*Result, error) {
	if threadHint != "" {
		res, err := c.assignByHint(seg, userID, threadHint)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	res, err := c.assignBySimilarity(seg, vector, userID)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	return c.assignToNewThread(seg, userID)
}

func (c *Clusterer) assignByHint(seg *store.Segment, userID, hint string) (*Result, error) {
	th, err := c.store.FindThreadByTitleHint(userID, hint)
	if err != nil {
		return nil, fmt.Errorf("hint lookup: %w", err)
	}
	if th == nil {
		return nil, nil
	}

	if err := c.store.AssignSegment(seg.ID, th.ID, hintConfidence); err != nil {
		return nil, fmt.Errorf("hint assignment: %w", err)
	}

	log.Printf("[cluster] segment %s → thread %s (hint %q)", seg.ID, th.ID, hint)
	return &Result{ThreadID: th.ID, Confidence: hintConfidence}, nil
}

func (c *Clusterer) assignBySimilarity(seg *store.Segment, vector []float64, userID string) (*Result, error) {
	matches, err := c.index.Query(vector, userID, neighborTopK)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	type candidate struct {
		count      int
		totalScore float64
	}
	candidates := make(map[string]*candidate)
	order := []string{} // first-seen order breaks exact average ties

	var surviving int
	for _, m := range matches {
		if m.ID == seg.ID || m.Score < SimilarityThreshold {
			continue
		}
		surviving++
		threadID := m.Meta.ThreadID
		if threadID == "" {
			continue
		}
		cand, ok := candidates[threadID]
		if !ok {
			cand = &candidate{}
			candidates[threadID] = cand
			order = append(order, threadID)
		}
		cand.count++
		cand.totalScore += m.Score
	}

	if surviving < minMatchesForAssignment {
		return nil, nil
	}

	var bestThreadID string
	var bestAvg float64
	for _, threadID := range order {
		cand := candidates[threadID]
		avg := cand.totalScore / float64(cand.count)
		if avg > bestAvg {
			bestAvg = avg
			bestThreadID = threadID
		}
	}

	if bestThreadID == "" {
		return nil, nil
	}

	if err := c.store.AssignSegment(seg.ID, bestThreadID, bestAvg); err != nil {
		return nil, fmt.Errorf("similarity assignment: %w", err)
	}

	log.Printf("[cluster] segment %s → thread %s (avg similarity %.2f)", seg.ID, bestThreadID, bestAvg)
	return &Result{ThreadID: bestThreadID, Confidence: bestAvg}, nil
}

func (c *Clusterer) assignToNewThread(seg *store.Segment, userID string) (*Result, error) {
	th, err := c.store.CreateThread(userID, ProvisionalTitle(seg.Content))
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	if err := c.store.AssignSegment(seg.ID, th.ID, 1.0); err != nil {
		return nil, fmt.Errorf("new-thread assignment: %w", err)
	}

	log.Printf("[cluster] segment %s → new thread %s", seg.ID, th.ID)
	return &Result{ThreadID: th.ID, IsNewThread: true, Confidence: 1.0}, nil
}

// ProvisionalTitle derives a placeholder title from segment text; the first
// synthesis replaces it.
func ProvisionalTitle(text string) string {
	if len(text) > 80 {
		return text[:77] + "..."
	}
	return text
}

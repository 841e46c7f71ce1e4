// Package pipeline orchestrates the five-stage run for one dump: segment,
// embed, cluster, synthesize, discover edges. Work is incremental: a new
// dump only touches the threads its segments land on, and nothing is ever
// re-clustered from scratch.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/skeinhq/skein/internal/cluster"
	"github.com/skeinhq/skein/internal/edges"
	"github.com/skeinhq/skein/internal/segment"
	"github.com/skeinhq/skein/internal/store"
	"github.com/skeinhq/skein/internal/synth"
	"github.com/skeinhq/skein/internal/vecindex"
)

// threadContextLimit is how many recent threads the segmenter sees.
const threadContextLimit = 20

// Embedder abstracts the embedding model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Pipeline wires the five stages over shared storage and the vector index.
type Pipeline struct {
	store       *store.DB
	index       vecindex.Index
	embedder    Embedder
	segmenter   *segment.Segmenter
	clusterer   *cluster.Clusterer
	synthesizer *synth.Synthesizer
	discoverer  *edges.Discoverer

	// threadLocks serializes mutation of a given thread across concurrent
	// runs in this process. Two dumps landing segments on the same thread
	// would otherwise race on its counters and narrative fields.
	threadLocks sync.Map // thread id → *sync.Mutex
}

// New assembles a pipeline from its stages.
func New(st *store.DB, index vecindex.Index, embedder Embedder,
	seg *segment.Segmenter, clu *cluster.Clusterer, syn *synth.Synthesizer, disc *edges.Discoverer) *Pipeline {
	return &Pipeline{
		store:       st,
		index:       index,
		embedder:    embedder,
		segmenter:   seg,
		clusterer:   clu,
		synthesizer: syn,
		discoverer:  disc,
	}
}

// SegmentResult reports where one segment ended up.
type SegmentResult struct {
	SegmentID   string  `json:"segment_id"`
	Text        string  `json:"text"`
	ThreadID    string  `json:"thread_id"`
	IsNewThread bool    `json:"is_new_thread"`
	Confidence  float64 `json:"confidence"`
}

// Result summarizes one pipeline run.
type Result struct {
	SegmentsProcessed int             `json:"segments_processed"`
	ThreadsAffected   int             `json:"threads_affected"`
	Segments          []SegmentResult `json:"segments"`
}

// ProcessDump runs the full pipeline for one dump.
//
// Failure semantics: segmentation and synthesis degrade internally and never
// abort; an embedding failure is fatal because clustering cannot proceed
// without a vector; edge discovery failures are swallowed. There is no
// rollback: writes committed before a fatal error stay, the dump is marked
// failed, and re-running it requires the failed status (complete dumps are
// rejected so segments are never duplicated).
func (p *Pipeline) ProcessDump(ctx context.Context, dumpID, userID string) (*Result, error) {
	if err := p.store.ClaimDump(dumpID, userID); err != nil {
		return nil, err
	}

	res, err := p.process(ctx, dumpID, userID)
	if err != nil {
		if ferr := p.store.FinishDump(dumpID, store.DumpFailed); ferr != nil {
			log.Printf("[pipeline] failed to checkpoint dump %s: %v", dumpID, ferr)
		}
		return nil, err
	}

	if err := p.store.FinishDump(dumpID, store.DumpComplete); err != nil {
		return nil, fmt.Errorf("checkpoint dump: %w", err)
	}
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, dumpID, userID string) (*Result, error) {
	start := time.Now()

	dump, err := p.store.GetDump(dumpID, userID)
	if err != nil {
		return nil, err
	}

	threadContext, err := p.store.RecentThreads(userID, threadContextLimit)
	if err != nil {
		return nil, fmt.Errorf("load thread context: %w", err)
	}

	drafts := p.segmenter.Segment(ctx, dump.Content, threadContext)
	log.Printf("[pipeline] dump %s: %d segments", dumpID, len(drafts))

	result := &Result{}
	var affected []string // first-touched order
	seen := make(map[string]bool)

	// Segments are processed strictly sequentially: clustering of a later
	// segment may depend on thread counters updated by an earlier one.
	for _, draft := range drafts {
		seg, err := p.store.InsertSegment(dumpID, userID, draft.Text, draft.Type)
		if err != nil {
			return nil, fmt.Errorf("insert segment: %w", err)
		}

		// Embedding failure aborts the run: without a vector there is
		// nothing to cluster on.
		vector, err := p.embedder.Embed(ctx, draft.Text)
		if err != nil {
			return nil, fmt.Errorf("embed segment %s: %w", seg.ID, err)
		}

		clusterRes, err := p.clusterer.Assign(ctx, seg, vector, userID, draft.ThreadHint)
		if err != nil {
			return nil, fmt.Errorf("cluster segment %s: %w", seg.ID, err)
		}

		err = p.index.Upsert(seg.ID, vector, vecindex.Meta{
			UserID:      userID,
			ThreadID:    clusterRes.ThreadID,
			SegmentType: string(draft.Type),
			Text:        draft.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("store embedding %s: %w", seg.ID, err)
		}

		if err := p.store.MarkSegmentEmbedded(seg.ID); err != nil {
			return nil, fmt.Errorf("mark embedded %s: %w", seg.ID, err)
		}

		if !seen[clusterRes.ThreadID] {
			seen[clusterRes.ThreadID] = true
			affected = append(affected, clusterRes.ThreadID)
		}
		result.Segments = append(result.Segments, SegmentResult{
			SegmentID:   seg.ID,
			Text:        draft.Text,
			ThreadID:    clusterRes.ThreadID,
			IsNewThread: clusterRes.IsNewThread,
			Confidence:  clusterRes.Confidence,
		})
	}

	// Each affected thread is resynthesized exactly once per run, no matter
	// how many of this dump's segments landed on it.
	for _, threadID := range affected {
		if err := p.resynthesize(ctx, threadID, userID); err != nil {
			return nil, err
		}
	}

	result.SegmentsProcessed = len(result.Segments)
	result.ThreadsAffected = len(affected)
	log.Printf("[pipeline] dump %s: %d segments, %d threads affected (%s)",
		dumpID, result.SegmentsProcessed, result.ThreadsAffected, time.Since(start).Round(time.Millisecond))
	return result, nil
}

// resynthesize rebuilds one thread's narrative and edges under its lock.
func (p *Pipeline) resynthesize(ctx context.Context, threadID, userID string) error {
	mu := p.lockThread(threadID)
	defer mu.Unlock()

	segments, err := p.store.SegmentsForThread(threadID)
	if err != nil {
		return fmt.Errorf("load segments for %s: %w", threadID, err)
	}
	if len(segments) == 0 {
		return nil
	}

	dates, err := p.store.DumpDatesForThread(threadID)
	if err != nil {
		return fmt.Errorf("load dump dates for %s: %w", threadID, err)
	}
	temporal := synth.ComputeTemporalContext(dates, time.Now().UTC())

	syn := p.synthesizer.Synthesize(ctx, segments, temporal)
	if err := p.store.UpdateThreadSynthesis(threadID, syn); err != nil {
		return fmt.Errorf("update thread %s: %w", threadID, err)
	}
	log.Printf("[pipeline] thread %s: %q (%s, momentum %s)", threadID, syn.Title, syn.State, syn.Momentum)

	// Non-fatal: a discovery failure keeps the previous edges.
	p.discoverer.Discover(ctx, threadID, userID, syn.Title, syn.Summary)

	return nil
}

// lockThread acquires the per-thread mutex, creating it on first use.
func (p *Pipeline) lockThread(threadID string) *sync.Mutex {
	v, _ := p.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

package store

import "time"

// SegmentType classifies what kind of thought a segment captures.
type SegmentType string

const (
	TypeThought    SegmentType = "thought"
	TypeActionItem SegmentType = "action_item"
	TypeIdea       SegmentType = "idea"
	TypeEmotion    SegmentType = "emotion"
	TypeComparison SegmentType = "comparison"
	TypeQuestion   SegmentType = "question"
)

// Valid reports whether t is one of the six known segment types.
func (t SegmentType) Valid() bool {
	switch t {
	case TypeThought, TypeActionItem, TypeIdea, TypeEmotion, TypeComparison, TypeQuestion:
		return true
	}
	return false
}

// ThreadState is the lifecycle state of an idea thread.
type ThreadState string

const (
	StateSeed     ThreadState = "seed"     // too new/sparse to classify
	StateActive   ThreadState = "active"   // recent forward progress
	StateDeciding ThreadState = "deciding" // explicit option-weighing language
	StateStuck    ThreadState = "stuck"    // circling/frustration without progress
	StateParked   ThreadState = "parked"   // no mention in 7+ days
	StateDone     ThreadState = "done"     // explicit resolution language
)

// Valid reports whether s is one of the six known lifecycle states.
func (s ThreadState) Valid() bool {
	switch s {
	case StateSeed, StateActive, StateDeciding, StateStuck, StateParked, StateDone:
		return true
	}
	return false
}

// Momentum describes how a thread's mention frequency is trending.
type Momentum string

const (
	MomentumRising    Momentum = "rising"
	MomentumSteady    Momentum = "steady"
	MomentumDeclining Momentum = "declining"
	MomentumStale     Momentum = "stale"
)

// Valid reports whether m is one of the four known momentum labels.
func (m Momentum) Valid() bool {
	switch m {
	case MomentumRising, MomentumSteady, MomentumDeclining, MomentumStale:
		return true
	}
	return false
}

// DumpStatus is the pipeline checkpoint for a dump.
type DumpStatus string

const (
	DumpPending    DumpStatus = "pending"    // created, not yet processed
	DumpProcessing DumpStatus = "processing" // pipeline run in progress
	DumpComplete   DumpStatus = "complete"   // pipeline run finished
	DumpFailed     DumpStatus = "failed"     // pipeline aborted partway; needs inspection
)

// Dump is one raw user submission. Immutable after creation except for
// pipeline bookkeeping (status/processed_at).
type Dump struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Content     string     `json:"content"`
	ContentType string     `json:"content_type"`
	MediaURLs   []string   `json:"media_urls,omitempty"`
	Status      DumpStatus `json:"status"`
	ProcessedAt time.Time  `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Segment is one topic-coherent excerpt from a dump. Text is a verbatim
// excerpt/merge of the dump's words, never a paraphrase. A segment belongs to
// at most one thread; only the clusterer assigns it.
type Segment struct {
	ID              string      `json:"id"`
	DumpID          string      `json:"dump_id"`
	UserID          string      `json:"user_id"`
	Content         string      `json:"content"`
	Type            SegmentType `json:"segment_type"`
	ThreadID        string      `json:"thread_id,omitempty"` // empty until clustered
	Confidence      float64     `json:"confidence"`
	EmbeddingStored bool        `json:"embedding_stored"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Thread is the persistent unit of organization: a named, summarized,
// stateful grouping of segments. Narrative fields (title, summary, state,
// state reason, reality score, grounding note, momentum) are fully replaced
// on every synthesis. SegmentCount is maintained incrementally at assignment
// time, never recomputed from a COUNT.
type Thread struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Title          string      `json:"title"`
	Summary        string      `json:"summary"`
	State          ThreadState `json:"state"`
	StateReason    string      `json:"state_reason"`
	RealityScore   int         `json:"reality_score"` // feasibility, 1-10
	GroundingNote  string      `json:"grounding_note"`
	Momentum       Momentum    `json:"momentum"`
	SegmentCount   int         `json:"segment_count"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// ThreadContext is the condensed thread view handed to the segmenter so it
// can recognize continuity with ongoing threads.
type ThreadContext struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Summary      string      `json:"summary"`
	State        ThreadState `json:"state"`
	SegmentCount int         `json:"segment_count"`
}

// EdgeRelatesTo is the only edge type in this version.
const EdgeRelatesTo = "relates_to"

// ThreadEdge is a directed relationship between two threads. The full set of
// outgoing edges from a thread is replaced atomically at each synthesis; A→B
// does not imply B→A.
type ThreadEdge struct {
	ID           string    `json:"id"`
	FromThreadID string    `json:"from_thread_id"`
	ToThreadID   string    `json:"to_thread_id"`
	EdgeType     string    `json:"edge_type"`
	Strength     float64   `json:"strength"` // 0-1 similarity
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConnectedEdge is an edge viewed from one thread, with the far end resolved
// to a title for display.
type ConnectedEdge struct {
	ThreadEdge
	ConnectedThreadID string `json:"connected_thread_id"`
	ConnectedTitle    string `json:"connected_title"`
}

// Package synth recomputes a thread's narrative (title, summary, lifecycle
// state, feasibility, grounding note, momentum) from its full segment set
// and temporal context. Every synthesis replaces every narrative field.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/skeinhq/skein/internal/llm"
	"github.com/skeinhq/skein/internal/store"
)

// Generator abstracts the text-generation model.
type Generator interface {
	Generate(ctx context.Context, system, user string, opts llm.GenOpts) (string, error)
}

// Synthesizer wraps the generation model for thread synthesis.
type Synthesizer struct {
	gen Generator
}

// New creates a synthesizer.
func New(gen Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

const synthesisPrompt = `You are an AI thinking partner analyzing a user's idea thread. Based on the thought segments and temporal context below, generate a synthesis.

TEMPORAL CONTEXT (use this to assess state and momentum):
- Total dumps mentioning this thread: %d
- First mentioned: %s
- Last mentioned: %s
- Days since last mention: %d
- Dumps in last 7 days: %d
- Dumps before last 7 days: %d

Rules:
- Title: 3-8 words, captures the core idea
- Summary: 1-2 sentences describing what this idea is about
- State: Choose based on BOTH segment content AND temporal patterns:
  - "seed" = Early idea, only 1-2 mentions, still forming
  - "active" = Being actively developed, frequent recent mentions, forward progress
  - "stuck" = User mentions frustration, obstacles, or keeps circling without progress
  - "deciding" = Comparing options, weighing trade-offs, mentions "should I" / "or maybe"
  - "parked" = No recent mentions (7+ days), user moved on
  - "done" = User declares completion or signals resolution
- State Reason: One sentence explaining your state choice, referencing temporal evidence
- Reality Score: 1-10 feasibility based on specificity and actionability
- Grounding Note: A brief observation like a thoughtful friend who's been paying attention.
  Reference specific patterns you notice: time gaps, scope changes, mood shifts, avoidance.
  Be GENTLE but HONEST. Never preachy or coach-like.
- Momentum: Based on temporal patterns:
  - "rising" = More dumps recently than before
  - "steady" = Consistent mention frequency
  - "declining" = Fewer recent dumps than before
  - "stale" = No mentions for 14+ days

Return ONLY valid JSON with fields: title, summary, state, stateReason, realityScore, groundingNote, momentum`

// rawSynthesis is the untrusted model output shape. realityScore arrives as
// whatever the model felt like: number, string, or garbage.
type rawSynthesis struct {
	Title         string          `json:"title"`
	Summary       string          `json:"summary"`
	State         string          `json:"state"`
	StateReason   string          `json:"stateReason"`
	RealityScore  json.RawMessage `json:"realityScore"`
	GroundingNote string          `json:"groundingNote"`
	Momentum      string          `json:"momentum"`
}

// Synthesize recomputes the narrative for a thread from all of its segments
// (ordered by creation time) and its temporal context. It never returns an
// error: total model failure degrades to a deterministic placeholder so the
// pipeline keeps moving.
func (s *Synthesizer) Synthesize(ctx context.Context, segments []*store.Segment, tc TemporalContext) store.Synthesis {
	fallbackMomentum := ComputeMomentum(tc)

	raw, err := s.gen.Generate(ctx, buildSynthesisPrompt(tc), segmentTranscript(segments), llm.GenOpts{
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		log.Printf("[synth] generation failed, using degraded synthesis: %v", err)
		return degraded(segments, fallbackMomentum)
	}

	obj, err := llm.ExtractJSONObject(raw)
	if err != nil {
		log.Printf("[synth] no JSON object in response, using degraded synthesis")
		return degraded(segments, fallbackMomentum)
	}

	var parsed rawSynthesis
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		log.Printf("[synth] malformed JSON, using degraded synthesis: %v", err)
		return degraded(segments, fallbackMomentum)
	}

	syn := store.Synthesis{
		Title:         strings.TrimSpace(parsed.Title),
		Summary:       strings.TrimSpace(parsed.Summary),
		State:         store.ThreadState(parsed.State),
		StateReason:   strings.TrimSpace(parsed.StateReason),
		RealityScore:  clampScore(parseScore(parsed.RealityScore)),
		GroundingNote: strings.TrimSpace(parsed.GroundingNote),
		Momentum:      store.Momentum(parsed.Momentum),
	}

	if syn.Title == "" {
		syn.Title = "Untitled Idea"
	}
	if !syn.State.Valid() {
		syn.State = store.StateSeed
	}
	if !syn.Momentum.Valid() {
		syn.Momentum = fallbackMomentum
	}

	return syn
}

func buildSynthesisPrompt(tc TemporalContext) string {
	return fmt.Sprintf(synthesisPrompt,
		tc.TotalDumps,
		tc.FirstMentioned.Format(time.RFC3339),
		tc.LastMentioned.Format(time.RFC3339),
		tc.DaysSinceLastMention,
		tc.RecentDumpCount,
		tc.OlderDumpCount,
	)
}

// segmentTranscript renders segments the way the model sees them:
// timestamped, typed, in creation order.
func segmentTranscript(segments []*store.Segment) string {
	var b strings.Builder
	b.WriteString("Here are all segments for this idea thread:\n\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%s] (%s) %s\n\n", seg.CreatedAt.Format(time.RFC3339), seg.Type, seg.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// degraded is the no-model synthesis: enough narrative to keep the thread
// usable until a later run succeeds.
func degraded(segments []*store.Segment, momentum store.Momentum) store.Synthesis {
	title := "Untitled"
	if len(segments) > 0 {
		title = leading(segments[0].Content, 60)
	}
	return store.Synthesis{
		Title:        title,
		Summary:      "Synthesis pending...",
		State:        store.StateSeed,
		StateReason:  "New thread, not enough data yet",
		RealityScore: 5,
		Momentum:     momentum,
	}
}

// parseScore accepts a number or a numeric string; anything else scores 5.
func parseScore(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 5
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}

	return 5
}

func clampScore(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

func leading(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package segment splits one raw dump into topic-coherent segments, aware of
// the user's ongoing threads so it can hint at continuity.
package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/skeinhq/skein/internal/llm"
	"github.com/skeinhq/skein/internal/store"
)

// MaxSegments caps how many segments one dump may produce. A model output
// with more valid segments than this is discarded in favor of the paragraph
// fallback.
const MaxSegments = 4

// minSegmentLen is the minimum trimmed text length for a kept segment.
const minSegmentLen = 15

// Generator abstracts the text-generation model.
type Generator interface {
	Generate(ctx context.Context, system, user string, opts llm.GenOpts) (string, error)
}

// Draft is one proposed segment before it is persisted.
type Draft struct {
	Text       string            `json:"text"`
	Type       store.SegmentType `json:"type"`
	ThreadHint string            `json:"existingThreadHint,omitempty"` // exact title of a supplied thread
}

// Segmenter wraps the generation model for dump segmentation.
type Segmenter struct {
	gen Generator
}

// New creates a segmenter.
func New(gen Generator) *Segmenter {
	return &Segmenter{gen: gen}
}

const segmentationPrompt = `You segment freewriting into topic-level groups for a personal idea tracker.

EXISTING THREADS:
%s

INSTRUCTIONS — follow this two-step process:

STEP 1: Read the entire dump. Identify the DISTINCT TOPICS (themes). A topic is a subject the user is thinking about — NOT a single sentence. Most dumps have 1-3 topics, rarely 4.

STEP 2: For each topic, collect ALL text from the dump that belongs to that topic — even if sentences are scattered across the dump. Merge them into one segment, preserving original wording.

CRITICAL RULES:
- Maximum 4 segments. If you find more than 4 topics, merge the closest ones.
- Each segment must be at least 2 sentences. Never create a segment from a single sentence.
- Emotions, frustrations, and reflections about a topic belong WITH that topic, not as separate segments.
- If text continues an EXISTING thread above, set "existingThreadHint" to the EXACT thread title.
- Types: "idea", "action_item", "thought", "question", "emotion", "comparison"

Return ONLY a JSON array:
[{"text": "merged text...", "type": "idea", "existingThreadHint": "Title If Exists"}]`

// buildPrompt renders the system prompt with the user's recent threads.
func buildPrompt(threads []store.ThreadContext) string {
	var list string
	if len(threads) == 0 {
		list = "(No existing threads yet — this is the user's first dump)"
	} else {
		var b strings.Builder
		for _, t := range threads {
			fmt.Fprintf(&b, "- %q (%s, %d segments)", t.Title, t.State, t.SegmentCount)
			if t.Summary != "" {
				b.WriteString(": " + t.Summary)
			}
			b.WriteString("\n")
		}
		list = strings.TrimRight(b.String(), "\n")
	}
	return fmt.Sprintf(segmentationPrompt, list)
}

// Segment splits dumpText into 1-4 drafts. It never fails for non-empty
// input: any model, credential, or parse problem degrades to paragraph
// splitting, and in the worst case the whole dump becomes one segment.
func (s *Segmenter) Segment(ctx context.Context, dumpText string, threads []store.ThreadContext) []Draft {
	raw, err := s.gen.Generate(ctx, buildPrompt(threads), dumpText, llm.GenOpts{
		MaxTokens:   2048,
		Temperature: 0.1,
	})
	if err != nil {
		log.Printf("[segment] generation failed, using fallback: %v", err)
		return ParagraphFallback(dumpText)
	}

	arr, err := llm.ExtractJSONArray(raw)
	if err != nil {
		log.Printf("[segment] no JSON array in response, using whole dump")
		return wholeDump(dumpText)
	}

	var drafts []Draft
	if err := json.Unmarshal([]byte(arr), &drafts); err != nil {
		log.Printf("[segment] malformed JSON, using fallback: %v", err)
		return ParagraphFallback(dumpText)
	}

	valid := make([]Draft, 0, len(drafts))
	for _, d := range drafts {
		d.Text = strings.TrimSpace(d.Text)
		d.ThreadHint = strings.TrimSpace(d.ThreadHint)
		if len(d.Text) <= minSegmentLen || !d.Type.Valid() {
			continue
		}
		valid = append(valid, d)
	}

	if len(valid) > MaxSegments {
		log.Printf("[segment] model produced %d segments, falling back to paragraph splitting", len(valid))
		return ParagraphFallback(dumpText)
	}
	if len(valid) == 0 {
		return wholeDump(dumpText)
	}
	return valid
}

var blankLine = regexp.MustCompile(`\n\s*\n`)

// ParagraphFallback splits on blank lines and keeps paragraphs longer than
// 20 characters. Multi-sentence paragraphs come first: the pipeline's
// downstream heuristics work better on segments with at least two sentences.
func ParagraphFallback(content string) []Draft {
	var paragraphs []string
	for _, p := range blankLine.Split(content, -1) {
		p = strings.TrimSpace(p)
		if len(p) > 20 {
			paragraphs = append(paragraphs, p)
		}
	}

	if len(paragraphs) == 0 {
		return wholeDump(content)
	}

	drafts := make([]Draft, 0, len(paragraphs))
	var singles []Draft
	for _, p := range paragraphs {
		d := Draft{Text: p, Type: store.TypeThought}
		if sentenceCount(p) >= 2 {
			drafts = append(drafts, d)
		} else {
			singles = append(singles, d)
		}
	}
	return append(drafts, singles...)
}

// sentenceCount counts sentences via prose; on tokenizer failure it falls
// back to counting terminal punctuation.
func sentenceCount(text string) int {
	doc, err := prose.NewDocument(text)
	if err == nil {
		return len(doc.Sentences())
	}
	return strings.Count(text, ".") + strings.Count(text, "?") + strings.Count(text, "!")
}

func wholeDump(content string) []Draft {
	return []Draft{{Text: strings.TrimSpace(content), Type: store.TypeThought}}
}

// Package vecindex stores segment embeddings and answers nearest-neighbor
// queries. The index is an injected capability: pipeline components receive
// an Index rather than reaching for shared state, so tests can swap in the
// in-memory implementation.
package vecindex

// Namespace partitions this application's vectors inside a shared index so
// other products can use the same backend without cross-contamination.
const Namespace = "skein-ideas"

// Meta is the metadata stored alongside each vector.
type Meta struct {
	UserID      string `json:"user_id"`
	ThreadID    string `json:"thread_id,omitempty"`
	SegmentType string `json:"segment_type"`
	Text        string `json:"text"` // truncated to 200 chars at upsert
}

// Match is one ranked query result. Score is cosine similarity, roughly
// [0,1] for embedding models with non-negative components; higher is closer.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Meta  Meta    `json:"meta"`
}

// Index is the vector-store contract consumed by the clusterer and the edge
// discoverer.
type Index interface {
	// Upsert writes a vector and its metadata under the given id,
	// replacing any previous entry.
	Upsert(id string, vector []float64, meta Meta) error

	// Query returns up to topK matches for the query vector, restricted to
	// this namespace and the given user, ranked by descending similarity.
	Query(vector []float64, userID string, topK int) ([]Match, error)
}

// TruncateText clips metadata text to the stored limit.
func TruncateText(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

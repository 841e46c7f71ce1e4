package vecindex

import (
	"sort"
	"sync"
)

// MemoryIndex is an exact-scan in-memory Index. Used by tests and as a
// stand-in when no database is wired up.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string]memoryEntry
}

type memoryEntry struct {
	vector []float64
	meta   Meta
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string]memoryEntry)}
}

// Upsert stores or replaces a vector.
func (x *MemoryIndex) Upsert(id string, vector []float64, meta Meta) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	v := make([]float64, len(vector))
	copy(v, vector)
	meta.Text = TruncateText(meta.Text)
	x.vectors[id] = memoryEntry{vector: v, meta: meta}
	return nil
}

// Query ranks all of the user's vectors by cosine similarity.
func (x *MemoryIndex) Query(vector []float64, userID string, topK int) ([]Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if topK <= 0 {
		topK = 10
	}

	var matches []Match
	for id, entry := range x.vectors {
		if entry.meta.UserID != userID {
			continue
		}
		matches = append(matches, Match{
			ID:    id,
			Score: CosineSimilarity(vector, entry.vector),
			Meta:  entry.meta,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

package vecindex

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	sqlite_vec.Auto() // registers the vec0 virtual table with go-sqlite3
}

// SQLiteIndex persists vectors in the application's SQLite database:
// metadata and the canonical JSON embedding live in segment_vectors, and a
// vec0 virtual table (when the sqlite-vec extension is compiled in) provides
// fast KNN. Without vec0 every query is a full-scan cosine ranking.
type SQLiteIndex struct {
	db           *sql.DB
	vecAvailable bool
	vecDim       int // dimension of segment_vec (0 = not yet created)
}

// OpenSQLite prepares the vector tables on an already-open connection.
func OpenSQLite(db *sql.DB) (*SQLiteIndex, error) {
	idx := &SQLiteIndex{db: db}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS segment_vectors (
			segment_id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			user_id TEXT NOT NULL,
			thread_id TEXT,
			segment_type TEXT,
			text TEXT,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment_vectors: %w", err)
	}
	db.Exec("CREATE INDEX IF NOT EXISTS idx_segment_vectors_user ON segment_vectors(namespace, user_id)")

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		log.Printf("[vecindex] sqlite-vec not available: %v, falling back to full scan", err)
	} else {
		log.Printf("[vecindex] sqlite-vec %s loaded", vecVersion)
		idx.vecAvailable = true
		if err := idx.initVecTable(); err != nil {
			log.Printf("[vecindex] vec init warning: %v", err)
		}
	}

	return idx, nil
}

// initVecTable restores vecDim from existing data after a restart.
func (x *SQLiteIndex) initVecTable() error {
	var embBytes []byte
	err := x.db.QueryRow(`SELECT embedding FROM segment_vectors WHERE LENGTH(embedding) > 4 LIMIT 1`).Scan(&embBytes)
	if err != nil {
		return nil // empty index; defer to first Upsert
	}
	var emb []float64
	if err := json.Unmarshal(embBytes, &emb); err != nil || len(emb) == 0 {
		return nil
	}
	return x.ensureVecTable(len(emb))
}

// ensureVecTable creates the segment_vec virtual table for the given
// dimension and backfills existing vectors. Idempotent for the same dim.
//
// Uses the segment_vectors rowid as the vec0 rowid plus an auxiliary
// +segment_id column, avoiding vec0's TEXT PRIMARY KEY partitioning
// behaviour which breaks KNN queries.
func (x *SQLiteIndex) ensureVecTable(dim int) error {
	if x.vecDim == dim {
		return nil
	}
	if x.vecDim != 0 && x.vecDim != dim {
		return fmt.Errorf("embedding dim %d doesn't match vec table dim %d", dim, x.vecDim)
	}

	_, err := x.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS segment_vec USING vec0(
			embedding float[%d],
			+segment_id TEXT
		)
	`, dim))
	if err != nil {
		return fmt.Errorf("failed to create segment_vec(float[%d]): %w", dim, err)
	}
	x.vecDim = dim

	rows, err := x.db.Query(`SELECT rowid, segment_id, embedding FROM segment_vectors`)
	if err != nil {
		return nil // backfill failure is non-fatal
	}
	defer rows.Close()

	tx, err := x.db.Begin()
	if err != nil {
		return nil
	}

	var count int
	for rows.Next() {
		var rowid int64
		var id string
		var embBytes []byte
		if err := rows.Scan(&rowid, &id, &embBytes); err != nil {
			continue
		}
		var emb []float64
		if err := json.Unmarshal(embBytes, &emb); err != nil || len(emb) != dim {
			continue
		}
		serialized, serErr := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(emb)))
		if serErr != nil {
			continue
		}
		// vec0 does not reliably support INSERT OR REPLACE; use DELETE + INSERT.
		tx.Exec(`DELETE FROM segment_vec WHERE rowid = ?`, rowid)
		if _, err := tx.Exec(`INSERT INTO segment_vec(rowid, embedding, segment_id) VALUES (?, ?, ?)`, rowid, serialized, id); err != nil {
			continue
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return nil
	}
	if count > 0 {
		log.Printf("[vecindex] vec backfill: indexed %d segments (dim=%d)", count, dim)
	}
	return nil
}

// Upsert writes a vector and its metadata, replacing any previous entry for
// the same segment id.
func (x *SQLiteIndex) Upsert(id string, vector []float64, meta Meta) error {
	if id == "" {
		return fmt.Errorf("segment id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("empty vector")
	}

	embBytes, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	_, err = x.db.Exec(`
		INSERT INTO segment_vectors (segment_id, namespace, user_id, thread_id, segment_type, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			segment_type = excluded.segment_type,
			text = excluded.text,
			embedding = excluded.embedding
	`, id, Namespace, meta.UserID, meta.ThreadID, meta.SegmentType, TruncateText(meta.Text), embBytes)
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	if !x.vecAvailable {
		return nil
	}

	if x.vecDim == 0 {
		if err := x.ensureVecTable(len(vector)); err != nil {
			log.Printf("[vecindex] vec table warning: %v", err)
			return nil
		}
	}
	if len(vector) != x.vecDim {
		log.Printf("[vecindex] dim mismatch for %s (%d != %d), vec index skipped", id, len(vector), x.vecDim)
		return nil
	}

	var rowid int64
	if err := x.db.QueryRow(`SELECT rowid FROM segment_vectors WHERE segment_id = ?`, id).Scan(&rowid); err != nil {
		return nil
	}
	serialized, err := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(vector)))
	if err != nil {
		return nil
	}
	x.db.Exec(`DELETE FROM segment_vec WHERE rowid = ?`, rowid)
	x.db.Exec(`INSERT INTO segment_vec(rowid, embedding, segment_id) VALUES (?, ?, ?)`, rowid, serialized, id)
	return nil
}

// Query returns up to topK same-user matches ranked by cosine similarity.
func (x *SQLiteIndex) Query(vector []float64, userID string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}

	if x.vecAvailable && x.vecDim == len(vector) {
		matches, err := x.queryVec(vector, userID, topK)
		if err == nil {
			return matches, nil
		}
		log.Printf("[vecindex] KNN query failed, falling back to full scan: %v", err)
	}

	return x.queryScan(vector, userID, topK)
}

// queryVec runs a vec0 KNN query. The KNN sees all users' vectors, so it
// over-fetches and filters to the caller's user afterwards.
func (x *SQLiteIndex) queryVec(vector []float64, userID string, topK int) ([]Match, error) {
	serialized, err := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(vector)))
	if err != nil {
		return nil, err
	}

	k := topK * 8
	rows, err := x.db.Query(`
		SELECT v.segment_id, v.distance, m.user_id, m.thread_id, m.segment_type, m.text
		FROM (SELECT segment_id, distance FROM segment_vec WHERE embedding MATCH ? AND k = ?) v
		JOIN segment_vectors m ON m.segment_id = v.segment_id
		WHERE m.namespace = ? AND m.user_id = ?
		ORDER BY v.distance ASC
	`, serialized, k, Namespace, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var dist float64
		var threadID, segType, text sql.NullString
		if err := rows.Scan(&m.ID, &dist, &m.Meta.UserID, &threadID, &segType, &text); err != nil {
			continue
		}
		m.Score = l2ToCosineSim(dist)
		m.Meta.ThreadID = threadID.String
		m.Meta.SegmentType = segType.String
		m.Meta.Text = text.String
		matches = append(matches, m)
		if len(matches) >= topK {
			break
		}
	}
	return matches, rows.Err()
}

// queryScan ranks every stored vector for the user by cosine similarity.
func (x *SQLiteIndex) queryScan(vector []float64, userID string, topK int) ([]Match, error) {
	rows, err := x.db.Query(`
		SELECT segment_id, user_id, thread_id, segment_type, text, embedding
		FROM segment_vectors
		WHERE namespace = ? AND user_id = ?
	`, Namespace, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var threadID, segType, text sql.NullString
		var embBytes []byte
		if err := rows.Scan(&m.ID, &m.Meta.UserID, &threadID, &segType, &text, &embBytes); err != nil {
			continue
		}
		var emb []float64
		if err := json.Unmarshal(embBytes, &emb); err != nil {
			continue
		}
		m.Score = CosineSimilarity(vector, emb)
		m.Meta.ThreadID = threadID.String
		m.Meta.SegmentType = segType.String
		m.Meta.Text = text.String
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, rows.Err()
}

// CosineSimilarity computes similarity between two embeddings (-1 to 1).
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// normalizeFloat32 returns a unit-length copy of the vector. Normalizing
// before storing in vec0 makes L2 distance equivalent to cosine distance:
//   cosine_dist = L2_dist² / 2   (for unit vectors)
func normalizeFloat32(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// l2ToCosineSim converts an L2 distance (on normalized vectors) to cosine
// similarity: cosine_sim = 1 - L2²/2
func l2ToCosineSim(l2dist float64) float64 {
	return 1.0 - (l2dist*l2dist)/2.0
}

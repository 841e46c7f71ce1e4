package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertSegment stores a freshly segmented excerpt. The segment starts
// unassigned; the clusterer attaches it to a thread later.
func (s *DB) InsertSegment(dumpID, userID, content string, segType SegmentType) (*Segment, error) {
	if !segType.Valid() {
		return nil, fmt.Errorf("invalid segment type: %q", segType)
	}

	seg := &Segment{
		ID:        uuid.NewString(),
		DumpID:    dumpID,
		UserID:    userID,
		Content:   content,
		Type:      segType,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO segments (id, dump_id, user_id, content, segment_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, seg.ID, seg.DumpID, seg.UserID, seg.Content, seg.Type, seg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert segment: %w", err)
	}

	return seg, nil
}

// AssignSegment attaches a segment to a thread with the given confidence and,
// in the same transaction, bumps the thread's incrementally-maintained
// segment count and activity timestamp. This is the only write path that
// changes a segment's thread.
func (s *DB) AssignSegment(segmentID, threadID string, confidence float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin assignment: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	res, err := tx.Exec(`
		UPDATE segments SET thread_id = ?, confidence = ? WHERE id = ?
	`, threadID, confidence, segmentID)
	if err != nil {
		return fmt.Errorf("failed to assign segment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("segment not found: %s", segmentID)
	}

	res, err = tx.Exec(`
		UPDATE idea_threads
		SET segment_count = segment_count + 1, last_activity_at = ?, updated_at = ?
		WHERE id = ?
	`, now, now, threadID)
	if err != nil {
		return fmt.Errorf("failed to bump thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thread not found: %s", threadID)
	}

	return tx.Commit()
}

// MarkSegmentEmbedded flags that the segment's vector is in the index.
func (s *DB) MarkSegmentEmbedded(segmentID string) error {
	_, err := s.db.Exec(`UPDATE segments SET embedding_stored = 1 WHERE id = ?`, segmentID)
	return err
}

// SegmentsForThread returns a thread's segments ordered by creation time,
// the order the synthesizer consumes them in.
func (s *DB) SegmentsForThread(threadID string) ([]*Segment, error) {
	rows, err := s.db.Query(`
		SELECT id, dump_id, user_id, content, segment_type, thread_id, confidence, embedding_stored, created_at
		FROM segments
		WHERE thread_id = ?
		ORDER BY created_at ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	return scanSegmentRows(rows)
}

// SegmentsForDump returns the segments derived from one dump.
func (s *DB) SegmentsForDump(dumpID string) ([]*Segment, error) {
	rows, err := s.db.Query(`
		SELECT id, dump_id, user_id, content, segment_type, thread_id, confidence, embedding_stored, created_at
		FROM segments
		WHERE dump_id = ?
		ORDER BY created_at ASC
	`, dumpID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	return scanSegmentRows(rows)
}

// DumpDatesForThread returns the distinct creation timestamps of dumps that
// contributed any segment to the thread, ascending. This feeds the temporal
// context used by synthesis.
func (s *DB) DumpDatesForThread(threadID string) ([]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT d.created_at
		FROM segments s
		JOIN dumps d ON s.dump_id = d.id
		WHERE s.thread_id = ?
		ORDER BY d.created_at ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dump dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			continue
		}
		dates = append(dates, t)
	}
	return dates, rows.Err()
}

func scanSegmentRows(rows *sql.Rows) ([]*Segment, error) {
	var segments []*Segment
	for rows.Next() {
		var seg Segment
		var threadID sql.NullString
		var embedded int

		err := rows.Scan(&seg.ID, &seg.DumpID, &seg.UserID, &seg.Content, &seg.Type,
			&threadID, &seg.Confidence, &embedded, &seg.CreatedAt)
		if err != nil {
			continue
		}

		seg.ThreadID = threadID.String
		seg.EmbeddingStored = embedded != 0
		segments = append(segments, &seg)
	}
	return segments, rows.Err()
}

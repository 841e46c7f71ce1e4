package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateThread creates a new thread in seed state. The provisional title is
// replaced by the first synthesis pass; segment_count starts at 0 and is
// bumped by AssignSegment.
func (s *DB) CreateThread(userID, title string) (*Thread, error) {
	now := time.Now().UTC()
	th := &Thread{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          title,
		State:          StateSeed,
		RealityScore:   5,
		Momentum:       MomentumSteady,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.Exec(`
		INSERT INTO idea_threads (id, user_id, title, state, reality_score, momentum,
			segment_count, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, th.ID, th.UserID, th.Title, th.State, th.RealityScore, th.Momentum,
		th.LastActivityAt, th.CreatedAt, th.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert thread: %w", err)
	}

	return th, nil
}

// GetThread retrieves a thread by id, scoped to its owner.
func (s *DB) GetThread(id, userID string) (*Thread, error) {
	row := s.db.QueryRow(threadSelect+` WHERE id = ? AND user_id = ?`, id, userID)

	th, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return th, nil
}

// FindThreadByTitleHint looks up a thread whose title contains the first 30
// characters of the segmenter's hint. The match is a case-sensitive substring:
// the hint is supposed to be an exact title echo, so anything fuzzier would
// let unrelated threads capture segments.
func (s *DB) FindThreadByTitleHint(userID, hint string) (*Thread, error) {
	probe := hint
	if len(probe) > 30 {
		probe = probe[:30]
	}

	row := s.db.QueryRow(threadSelect+`
		WHERE user_id = ? AND INSTR(title, ?) > 0
		LIMIT 1
	`, userID, probe)

	th, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match title hint: %w", err)
	}
	return th, nil
}

// RecentThreads returns the user's threads ordered by last activity, capped
// at limit. This is the context window handed to the segmenter.
func (s *DB) RecentThreads(userID string, limit int) ([]ThreadContext, error) {
	rows, err := s.db.Query(`
		SELECT id, title, COALESCE(summary, ''), state, segment_count
		FROM idea_threads
		WHERE user_id = ?
		ORDER BY last_activity_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent threads: %w", err)
	}
	defer rows.Close()

	var contexts []ThreadContext
	for rows.Next() {
		var tc ThreadContext
		if err := rows.Scan(&tc.ID, &tc.Title, &tc.Summary, &tc.State, &tc.SegmentCount); err != nil {
			continue
		}
		contexts = append(contexts, tc)
	}
	return contexts, rows.Err()
}

// ListThreads returns all of the user's threads, optionally filtered by
// state, newest activity first.
func (s *DB) ListThreads(userID string, state ThreadState) ([]*Thread, error) {
	query := threadSelect + ` WHERE user_id = ?`
	args := []any{userID}

	if state != "" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY last_activity_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			continue
		}
		threads = append(threads, th)
	}
	return threads, rows.Err()
}

// Synthesis is the narrative replacement written by the synthesizer.
type Synthesis struct {
	Title         string
	Summary       string
	State         ThreadState
	StateReason   string
	RealityScore  int
	GroundingNote string
	Momentum      Momentum
}

// UpdateThreadSynthesis replaces all narrative fields of a thread. Every
// synthesis is a full recomputation; nothing is merged.
func (s *DB) UpdateThreadSynthesis(threadID string, syn Synthesis) error {
	res, err := s.db.Exec(`
		UPDATE idea_threads
		SET title = ?, summary = ?, state = ?, state_reason = ?,
			reality_score = ?, grounding_note = ?, momentum = ?, updated_at = ?
		WHERE id = ?
	`, syn.Title, syn.Summary, syn.State, syn.StateReason,
		syn.RealityScore, syn.GroundingNote, syn.Momentum, time.Now().UTC(), threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread synthesis: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const threadSelect = `
	SELECT id, user_id, title, COALESCE(summary, ''), state, COALESCE(state_reason, ''),
		reality_score, COALESCE(grounding_note, ''), momentum, segment_count,
		last_activity_at, created_at, updated_at
	FROM idea_threads`

func scanThread(row scannable) (*Thread, error) {
	var th Thread
	err := row.Scan(&th.ID, &th.UserID, &th.Title, &th.Summary, &th.State, &th.StateReason,
		&th.RealityScore, &th.GroundingNote, &th.Momentum, &th.SegmentCount,
		&th.LastActivityAt, &th.CreatedAt, &th.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &th, nil
}

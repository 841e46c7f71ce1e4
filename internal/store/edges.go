package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReplaceThreadEdges swaps the full outgoing edge set of a thread in one
// transaction: delete everything, insert the new snapshot. Edges are "state
// at last synthesis", not an accumulating log.
func (s *DB) ReplaceThreadEdges(fromThreadID string, edges []ThreadEdge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin edge replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM thread_edges WHERE from_thread_id = ?`, fromThreadID); err != nil {
		return fmt.Errorf("failed to delete old edges: %w", err)
	}

	now := time.Now().UTC()
	for i := range edges {
		e := &edges[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.EdgeType == "" {
			e.EdgeType = EdgeRelatesTo
		}
		e.FromThreadID = fromThreadID
		e.CreatedAt = now

		_, err := tx.Exec(`
			INSERT INTO thread_edges (id, from_thread_id, to_thread_id, edge_type, strength, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.FromThreadID, e.ToThreadID, e.EdgeType, e.Strength, e.Reason, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert edge: %w", err)
		}
	}

	return tx.Commit()
}

// OutgoingEdges returns the edges originating from a thread.
func (s *DB) OutgoingEdges(fromThreadID string) ([]ThreadEdge, error) {
	rows, err := s.db.Query(`
		SELECT id, from_thread_id, to_thread_id, edge_type, strength, COALESCE(reason, ''), created_at
		FROM thread_edges
		WHERE from_thread_id = ?
		ORDER BY strength DESC
	`, fromThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []ThreadEdge
	for rows.Next() {
		var e ThreadEdge
		if err := rows.Scan(&e.ID, &e.FromThreadID, &e.ToThreadID, &e.EdgeType, &e.Strength, &e.Reason, &e.CreatedAt); err != nil {
			continue
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ConnectedEdges returns edges touching a thread in either direction, with
// the far thread's title resolved for display. Symmetry is not implied:
// an A→B edge shows up for both A and B, but B may carry no edge back.
func (s *DB) ConnectedEdges(threadID string) ([]ConnectedEdge, error) {
	rows, err := s.db.Query(`
		SELECT te.id, te.from_thread_id, te.to_thread_id, te.edge_type, te.strength,
			COALESCE(te.reason, ''), te.created_at,
			CASE WHEN te.from_thread_id = ? THEN te.to_thread_id ELSE te.from_thread_id END,
			CASE WHEN te.from_thread_id = ? THEN COALESCE(t2.title, '') ELSE COALESCE(t1.title, '') END
		FROM thread_edges te
		LEFT JOIN idea_threads t1 ON te.from_thread_id = t1.id
		LEFT JOIN idea_threads t2 ON te.to_thread_id = t2.id
		WHERE te.from_thread_id = ? OR te.to_thread_id = ?
	`, threadID, threadID, threadID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connected edges: %w", err)
	}
	defer rows.Close()

	var edges []ConnectedEdge
	for rows.Next() {
		var e ConnectedEdge
		err := rows.Scan(&e.ID, &e.FromThreadID, &e.ToThreadID, &e.EdgeType, &e.Strength,
			&e.Reason, &e.CreatedAt, &e.ConnectedThreadID, &e.ConnectedTitle)
		if err != nil {
			continue
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

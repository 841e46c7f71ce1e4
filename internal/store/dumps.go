package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyProcessed is returned when a pipeline run is requested for a dump
// that is complete or currently being processed.
var ErrAlreadyProcessed = errors.New("dump already processed")

// CreateDump inserts a new dump and returns it with generated fields filled.
func (s *DB) CreateDump(userID, content, contentType string, mediaURLs []string) (*Dump, error) {
	if contentType == "" {
		contentType = "text"
	}

	var mediaJSON sql.NullString
	if len(mediaURLs) > 0 {
		b, err := json.Marshal(mediaURLs)
		if err != nil {
			return nil, fmt.Errorf("marshal media urls: %w", err)
		}
		mediaJSON = sql.NullString{String: string(b), Valid: true}
	}

	d := &Dump{
		ID:          uuid.NewString(),
		UserID:      userID,
		Content:     content,
		ContentType: contentType,
		MediaURLs:   mediaURLs,
		Status:      DumpPending,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO dumps (id, user_id, content, content_type, media_urls, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.UserID, d.Content, d.ContentType, mediaJSON, d.Status, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dump: %w", err)
	}

	return d, nil
}

// GetDump retrieves a dump by id, scoped to its owner.
func (s *DB) GetDump(id, userID string) (*Dump, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, content, content_type, media_urls, status, processed_at, created_at, updated_at
		FROM dumps WHERE id = ? AND user_id = ?
	`, id, userID)

	d, err := scanDump(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dump: %w", err)
	}
	return d, nil
}

// ListDumps returns the user's most recent dumps.
func (s *DB) ListDumps(userID string, limit int) ([]*Dump, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, content, content_type, media_urls, status, processed_at, created_at, updated_at
		FROM dumps WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dumps: %w", err)
	}
	defer rows.Close()

	var dumps []*Dump
	for rows.Next() {
		d, err := scanDump(rows)
		if err != nil {
			continue
		}
		dumps = append(dumps, d)
	}
	return dumps, rows.Err()
}

// ClaimDump atomically transitions a dump to 'processing'. It fails with
// ErrAlreadyProcessed when the dump is complete or another run holds it,
// which is what makes reprocessing a finished dump a no-op instead of a
// segment-duplicating redo.
func (s *DB) ClaimDump(id, userID string) error {
	res, err := s.db.Exec(`
		UPDATE dumps SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status IN (?, ?)
	`, DumpProcessing, time.Now().UTC(), id, userID, DumpPending, DumpFailed)
	if err != nil {
		return fmt.Errorf("failed to claim dump: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish missing from already-claimed for the caller.
		if _, err := s.GetDump(id, userID); err != nil {
			return err
		}
		return ErrAlreadyProcessed
	}
	return nil
}

// FinishDump records the terminal checkpoint of a pipeline run.
func (s *DB) FinishDump(id string, status DumpStatus) error {
	now := time.Now().UTC()
	var processedAt sql.NullTime
	if status == DumpComplete {
		processedAt = sql.NullTime{Time: now, Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE dumps SET status = ?, processed_at = ?, updated_at = ? WHERE id = ?
	`, status, processedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish dump: %w", err)
	}
	return nil
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanDump(row scannable) (*Dump, error) {
	var d Dump
	var mediaJSON sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(&d.ID, &d.UserID, &d.Content, &d.ContentType, &mediaJSON,
		&d.Status, &processedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if mediaJSON.Valid {
		json.Unmarshal([]byte(mediaJSON.String), &d.MediaURLs)
	}
	if processedAt.Valid {
		d.ProcessedAt = processedAt.Time
	}

	return &d, nil
}

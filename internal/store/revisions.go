package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/flowfilter/internal/ir"
)

// Revisions returns the revisions of a flow, oldest first.
// Returns an empty slice (not nil) if the flow has none.
func (s *Store) Revisions(ctx context.Context, flowID string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow_id, version, content_hash, note
		FROM revisions
		WHERE flow_id = ?
		ORDER BY version ASC, id COLLATE BINARY ASC
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	out := []Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return out, nil
}

// RevisionBody returns the flow as it was stored at version.
// Returns ErrNotFound if there is no such revision.
func (s *Store) RevisionBody(ctx context.Context, flowID string, version int64) (ir.Flow, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM revisions WHERE flow_id = ? AND version = ?
	`, flowID, version).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Flow{}, fmt.Errorf("revision %q@%d: %w", flowID, version, ErrNotFound)
	}
	if err != nil {
		return ir.Flow{}, fmt.Errorf("revision %q@%d: %w", flowID, version, err)
	}
	return ir.ParseFlow([]byte(body))
}

// RevisionByHash returns the earliest revision of any flow whose content
// hash is hash. Returns ErrNotFound if none matches.
func (s *Store) RevisionByHash(ctx context.Context, hash string) (Revision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, flow_id, version, content_hash, note
		FROM revisions
		WHERE content_hash = ?
		ORDER BY flow_id COLLATE BINARY ASC, version ASC
		LIMIT 1
	`, hash)
	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, fmt.Errorf("revision with hash %s: %w", hash, ErrNotFound)
	}
	return rev, err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(r rowScanner) (Revision, error) {
	var rev Revision
	if err := r.Scan(&rev.ID, &rev.FlowID, &rev.Version, &rev.Hash, &rev.Note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Revision{}, err
		}
		return Revision{}, fmt.Errorf("scan revision: %w", err)
	}
	return rev, nil
}

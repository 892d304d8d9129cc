package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/flowfilter/internal/ir"
)

// PutResult describes the outcome of Put.
type PutResult struct {
	Version    int64  `json:"version"`
	Hash       string `json:"hash"`
	Changed    bool   `json:"changed"`
	RevisionID string `json:"revision_id,omitempty"`
}

// Revision is one accepted write of a flow.
type Revision struct {
	ID      string `json:"id"`
	FlowID  string `json:"flow_id"`
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
	Note    string `json:"note,omitempty"`
}

// FlowInfo summarizes a stored flow.
type FlowInfo struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
}

// PutOption configures a single Put.
type PutOption func(*putConfig)

type putConfig struct {
	note string
}

// WithNote attaches a free-form note to the revision a Put records.
func WithNote(note string) PutOption {
	return func(c *putConfig) {
		c.note = note
	}
}

// Get returns the stored flow and its version.
// Returns ErrNotFound if no flow has this id.
func (s *Store) Get(ctx context.Context, id string) (ir.Flow, int64, error) {
	var body string
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT body, version FROM flows WHERE id = ?
	`, id).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Flow{}, 0, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Flow{}, 0, fmt.Errorf("get %q: %w", id, err)
	}

	flow, err := ir.ParseFlow([]byte(body))
	if err != nil {
		return ir.Flow{}, 0, fmt.Errorf("get %q: decode body: %w", id, err)
	}
	return flow, version, nil
}

// Put stores flow under id if the stored version equals expectedVersion.
// Use expectedVersion 0 to create a flow that must not exist yet.
//
// When the flow's content hash equals the stored one nothing is written
// and the result reports Changed=false with the current version.
// A mismatched version returns a *ConflictError wrapping ErrVersionConflict.
func (s *Store) Put(ctx context.Context, id string, flow ir.Flow, expectedVersion int64, opts ...PutOption) (PutResult, error) {
	if id == "" {
		return PutResult{}, fmt.Errorf("put: flow id must not be empty")
	}
	var cfg putConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	body, err := json.Marshal(flow)
	if err != nil {
		return PutResult{}, fmt.Errorf("put %q: encode body: %w", id, err)
	}
	hash, err := ir.FlowHash(flow)
	if err != nil {
		return PutResult{}, fmt.Errorf("put %q: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PutResult{}, fmt.Errorf("put %q: begin: %w", id, err)
	}
	defer tx.Rollback()

	var current int64
	var currentHash string
	err = tx.QueryRowContext(ctx, `
		SELECT version, content_hash FROM flows WHERE id = ?
	`, id).Scan(&current, &currentHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return PutResult{}, fmt.Errorf("put %q: read version: %w", id, err)
	}

	if current != expectedVersion {
		return PutResult{}, &ConflictError{FlowID: id, Expected: expectedVersion, Actual: current}
	}
	if current > 0 && currentHash == hash {
		return PutResult{Version: current, Hash: hash}, nil
	}

	next := current + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO flows (id, body, content_hash, version, schema_version, tool_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			content_hash = excluded.content_hash,
			version = excluded.version,
			schema_version = excluded.schema_version,
			tool_version = excluded.tool_version
	`, id, string(body), hash, next, ir.SchemaVersion, ir.ToolVersion)
	if err != nil {
		return PutResult{}, fmt.Errorf("put %q: write flow: %w", id, err)
	}

	revID := s.ids.Generate()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (id, flow_id, version, content_hash, body, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`, revID, id, next, hash, string(body), cfg.note)
	if err != nil {
		return PutResult{}, fmt.Errorf("put %q: write revision: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return PutResult{}, fmt.Errorf("put %q: commit: %w", id, err)
	}
	return PutResult{Version: next, Hash: hash, Changed: true, RevisionID: revID}, nil
}

// List returns every stored flow ordered by id.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) List(ctx context.Context) ([]FlowInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, content_hash
		FROM flows
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	out := []FlowInfo{}
	for rows.Next() {
		var fi FlowInfo
		if err := rows.Scan(&fi.ID, &fi.Version, &fi.Hash); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		out = append(out, fi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return out, nil
}

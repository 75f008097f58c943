// Package sqlstore persists scene state in the scene_sessions table through sqlx.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/gostage/core/logger"
	"github.com/m3rciful/gostage/core/scene"
)

const (
	selectQuery = `SELECT session_id, scene, step, payload, data, touched_at, updated_at
FROM scene_sessions WHERE session_id = ?`
	upsertQuery = `INSERT INTO scene_sessions (session_id, scene, step, payload, data, touched_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET
	scene = excluded.scene,
	step = excluded.step,
	payload = excluded.payload,
	data = excluded.data,
	touched_at = excluded.touched_at,
	updated_at = excluded.updated_at`
	deleteQuery = `DELETE FROM scene_sessions WHERE session_id = ?`
	pruneQuery  = `DELETE FROM scene_sessions WHERE touched_at > 0 AND touched_at < ?`
)

type row struct {
	SessionID string `db:"session_id"`
	Scene     string `db:"scene"`
	Step      int    `db:"step"`
	Payload   string `db:"payload"`
	Data      string `db:"data"`
	TouchedAt int64  `db:"touched_at"`
	UpdatedAt int64  `db:"updated_at"`
}

// Store implements scene.Store on top of a SQL database. Queries are
// rebound to the placeholder style of the connection's driver.
type Store struct {
	db  *sqlx.DB
	now func() time.Time

	selectQ, upsertQ, deleteQ, pruneQ string
}

// New wraps db. The scene_sessions table must exist
// (see database.RunMigrations).
func New(db *sqlx.DB) *Store {
	return &Store{
		db:      db,
		now:     time.Now,
		selectQ: db.Rebind(selectQuery),
		upsertQ: db.Rebind(upsertQuery),
		deleteQ: db.Rebind(deleteQuery),
		pruneQ:  db.Rebind(pruneQuery),
	}
}

// Get loads the state of sessionID; unknown sessions yield the zero State.
func (s *Store) Get(ctx context.Context, sessionID string) (scene.State, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, s.selectQ, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scene.State{}, nil
		}
		return scene.State{}, fmt.Errorf("sqlstore: get %s: %w", sessionID, err)
	}
	payload, err := decodeValues(r.Payload)
	if err != nil {
		return scene.State{}, fmt.Errorf("sqlstore: decode payload of %s: %w", sessionID, err)
	}
	data, err := decodeValues(r.Data)
	if err != nil {
		return scene.State{}, fmt.Errorf("sqlstore: decode data of %s: %w", sessionID, err)
	}
	st := scene.State{Scene: r.Scene, Step: r.Step, Payload: payload, Data: data}
	if r.TouchedAt > 0 {
		st.TouchedAt = time.UnixMilli(r.TouchedAt).UTC()
	}
	return st, nil
}

// Set upserts the state of sessionID.
func (s *Store) Set(ctx context.Context, sessionID string, st scene.State) error {
	payload, err := encodeValues(st.Payload)
	if err != nil {
		return fmt.Errorf("sqlstore: encode payload of %s: %w", sessionID, err)
	}
	data, err := encodeValues(st.Data)
	if err != nil {
		return fmt.Errorf("sqlstore: encode data of %s: %w", sessionID, err)
	}
	var touched int64
	if !st.TouchedAt.IsZero() {
		touched = st.TouchedAt.UnixMilli()
	}
	if _, err := s.db.ExecContext(ctx, s.upsertQ,
		sessionID, st.Scene, st.Step, payload, data, touched, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("sqlstore: set %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes a session row.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQ, sessionID); err != nil {
		return fmt.Errorf("sqlstore: delete %s: %w", sessionID, err)
	}
	return nil
}

// PruneIdle deletes sessions last touched before cutoff and reports how many
// rows went away.
func (s *Store) PruneIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.pruneQ, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlstore: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: prune rows: %w", err)
	}
	logger.Debug(ctx, "session.store", "store.prune",
		slog.String("backend", "sql"),
		slog.Int64("rows", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}

func encodeValues(v scene.Values) (string, error) {
	if len(v) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeValues(raw string) (scene.Values, error) {
	if raw == "" || raw == "{}" || raw == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v scene.Values
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

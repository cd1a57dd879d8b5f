package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"inventoryview/inventory"
	"inventoryview/sqliteutil"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    position INTEGER NOT NULL,
    character TEXT NOT NULL,
    source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_id INTEGER NOT NULL REFERENCES snapshots(id),
    parent_id INTEGER REFERENCES items(id),
    position INTEGER NOT NULL,
    label TEXT NOT NULL,
    storage INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS items_snapshot ON items(snapshot_id);
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

const metaSavedAt = "saved_at"

// SQLite stores snapshots as rows: one per snapshot and one per item, with
// parent_id linking an item to its container.
type SQLite struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens (or creates) the database at path. A database that fails
// its integrity check is moved aside first and a fresh one created.
func OpenSQLite(path string) (*SQLite, error) {
	if _, err := sqliteutil.Preflight(path, 2*time.Second); err != nil {
		return nil, fmt.Errorf("persist: sqlite preflight: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: sqlite schema: %w", err)
	}
	return &SQLite{path: path, db: db}, nil
}

func (s *SQLite) Name() string {
	return "sqlite " + s.path
}

func (s *SQLite) Read() ([]*inventory.Snapshot, error) {
	var savedAt string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaSavedAt).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT id, character, source FROM snapshots ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	var snaps []*inventory.Snapshot
	byID := make(map[int64]*inventory.Snapshot)
	for rows.Next() {
		var id int64
		snap := &inventory.Snapshot{}
		if err := rows.Scan(&id, &snap.CharacterName, &snap.SourceLabel); err != nil {
			rows.Close()
			return nil, err
		}
		byID[id] = snap
		snaps = append(snaps, snap)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Parents are always inserted before their children, so id order is
	// enough to rebuild each tree in one pass.
	itemRows, err := s.db.Query(`SELECT id, snapshot_id, parent_id, label, storage FROM items ORDER BY snapshot_id, id`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	items := make(map[int64]*inventory.Item)
	for itemRows.Next() {
		var (
			id, snapID int64
			parentID   sql.NullInt64
			label      string
			storage    int
		)
		if err := itemRows.Scan(&id, &snapID, &parentID, &label, &storage); err != nil {
			return nil, err
		}
		snap, ok := byID[snapID]
		if !ok {
			return nil, fmt.Errorf("item %d references missing snapshot %d", id, snapID)
		}
		it := inventory.NewItem(label, storage != 0)
		items[id] = it
		if !parentID.Valid {
			snap.Items = append(snap.Items, it)
			continue
		}
		parent, ok := items[parentID.Int64]
		if !ok {
			return nil, fmt.Errorf("item %d references missing parent %d", id, parentID.Int64)
		}
		parent.AddChild(it)
	}
	return snaps, itemRows.Err()
}

func (s *SQLite) Write(snaps []*inventory.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := writeSnapshots(tx, snaps); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func writeSnapshots(tx *sql.Tx, snaps []*inventory.Snapshot) error {
	if _, err := tx.Exec(`DELETE FROM items`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshots`); err != nil {
		return err
	}
	snapStmt, err := tx.Prepare(`INSERT INTO snapshots (position, character, source) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer snapStmt.Close()
	itemStmt, err := tx.Prepare(`INSERT INTO items (snapshot_id, parent_id, position, label, storage) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer itemStmt.Close()

	for pos, snap := range snaps {
		res, err := snapStmt.Exec(pos, snap.CharacterName, snap.SourceLabel)
		if err != nil {
			return err
		}
		snapID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := insertItems(itemStmt, snapID, sql.NullInt64{}, snap.Items); err != nil {
			return err
		}
	}
	_, err = tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaSavedAt, time.Now().UTC().Format(time.RFC3339))
	return err
}

func insertItems(stmt *sql.Stmt, snapID int64, parent sql.NullInt64, items []*inventory.Item) error {
	for pos, it := range items {
		res, err := stmt.Exec(snapID, parent, pos, it.Label, boolToInt(it.IsStorageRoot))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := insertItems(stmt, snapID, sql.NullInt64{Int64: id, Valid: true}, it.Children); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

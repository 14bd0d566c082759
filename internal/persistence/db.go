// Package persistence archives generated maps in SQLite.
package persistence

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a map ID is not in the archive.
var ErrNotFound = errors.New("map not found")

// DB wraps a SQLite connection for the map archive.
type DB struct {
	conn *sqlx.DB
}

// MapRecord describes an archived map. The payload is stored separately.
type MapRecord struct {
	ID        string    `json:"id"`
	Radius    int       `json:"radius"`
	Seed      int64     `json:"seed"`
	Mode      string    `json:"mode"`
	HexCount  int       `json:"hex_count"`
	Size      int       `json:"size"` // wire payload bytes before compression
	CreatedAt time.Time `json:"created_at"`
}

type mapRow struct {
	ID        string `db:"id"`
	Radius    int    `db:"radius"`
	Seed      int64  `db:"seed"`
	Mode      string `db:"mode"`
	HexCount  int    `db:"hex_count"`
	Size      int    `db:"size"`
	CreatedAt int64  `db:"created_at"`
}

func (r mapRow) record() MapRecord {
	return MapRecord{
		ID:        r.ID,
		Radius:    r.Radius,
		Seed:      r.Seed,
		Mode:      r.Mode,
		HexCount:  r.HexCount,
		Size:      r.Size,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS maps (
		id TEXT PRIMARY KEY,
		radius INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		mode TEXT NOT NULL,
		hex_count INTEGER NOT NULL,
		size INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_maps_created ON maps(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveMap archives a wire-encoded map under rec.ID.
func (db *DB) SaveMap(rec MapRecord, payload []byte) error {
	packed, err := compress(payload)
	if err != nil {
		return fmt.Errorf("compress map %s: %w", rec.ID, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err = db.conn.Exec(`INSERT INTO maps
		(id, radius, seed, mode, hex_count, size, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Radius, rec.Seed, rec.Mode, rec.HexCount, len(payload), packed, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert map %s: %w", rec.ID, err)
	}

	slog.Debug("map archived", "id", rec.ID,
		"size", humanize.Bytes(uint64(len(payload))),
		"stored", humanize.Bytes(uint64(len(packed))),
	)
	return nil
}

// LoadMap returns an archived map and its wire payload.
func (db *DB) LoadMap(id string) (MapRecord, []byte, error) {
	return db.loadOne("WHERE id = ?", id)
}

// LatestMap returns the most recently archived map.
func (db *DB) LatestMap() (MapRecord, []byte, error) {
	return db.loadOne("ORDER BY created_at DESC, rowid DESC LIMIT 1")
}

func (db *DB) loadOne(clause string, args ...any) (MapRecord, []byte, error) {
	var row struct {
		mapRow
		Payload []byte `db:"payload"`
	}
	err := db.conn.Get(&row,
		"SELECT id, radius, seed, mode, hex_count, size, created_at, payload FROM maps "+clause,
		args...,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return MapRecord{}, nil, ErrNotFound
	}
	if err != nil {
		return MapRecord{}, nil, err
	}

	payload, err := decompress(row.Payload, row.Size)
	if err != nil {
		return MapRecord{}, nil, fmt.Errorf("decompress map %s: %w", row.ID, err)
	}
	return row.record(), payload, nil
}

// ListMaps returns up to limit archived maps, newest first.
func (db *DB) ListMaps(limit int) ([]MapRecord, error) {
	var rows []mapRow
	err := db.conn.Select(&rows,
		`SELECT id, radius, seed, mode, hex_count, size, created_at
		 FROM maps ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]MapRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// PruneMaps deletes all but the newest keep maps.
func (db *DB) PruneMaps(keep int) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM maps WHERE id NOT IN
		(SELECT id FROM maps ORDER BY created_at DESC, rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountMaps returns the archive size.
func (db *DB) CountMaps() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM maps")
	return n, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(b); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte, size int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	out := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.Copy(out, dec); err != nil {
		return nil, err
	}
	if out.Len() != size {
		return nil, fmt.Errorf("payload is %d bytes, recorded %d", out.Len(), size)
	}
	return out.Bytes(), nil
}

// Package archive appends accepted frames to a SQLite capture log.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"decode1090/internal/adsb"
)

// Record is one archived frame
type Record struct {
	Timestamp  time.Time
	ICAO       string
	DF         uint8
	Signal     float64
	MessageHex string
}

// NewRecord builds the archive row for a decoded frame
func NewRecord(f *adsb.Frame, frag *adsb.Fragment) *Record {
	rec := &Record{
		Timestamp:  f.Timestamp,
		DF:         uint8(f.DF()),
		Signal:     f.Signal,
		MessageHex: f.Hex(),
	}
	if frag != nil {
		rec.ICAO = frag.ICAO.String()
	}
	return rec
}

// Repository stores batches of records
type Repository interface {
	InsertBatch(recs []*Record) error
}

// Store implements Repository on SQLite
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := optimizeSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to optimize database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func optimizeSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		icao TEXT NOT NULL,
		df INTEGER NOT NULL,
		signal REAL,
		message_hex TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(icao, timestamp, message_hex)
	);`

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_frames_icao ON frames(icao)`,
		`CREATE INDEX IF NOT EXISTS idx_frames_timestamp ON frames(timestamp)`,
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create frames table: %w", err)
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// InsertBatch writes recs in one transaction. Duplicate frames are ignored.
func (s *Store) InsertBatch(recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO frames (
		timestamp, icao, df, signal, message_hex
	) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(rec.Timestamp.UTC(), rec.ICAO, rec.DF, rec.Signal, rec.MessageHex); err != nil {
			return fmt.Errorf("failed to insert frame: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

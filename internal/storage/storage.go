// Package storage caches aggregated profiles in SQLite, keyed by the SHA-256
// fingerprint of the recording they were computed from. A cache hit lets
// startup skip aggregation; a changed recording gets a new fingerprint and
// is aggregated again.
//
// Each fingerprint's profiles are replaced atomically inside one transaction.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/circadia/internal/models"
)

// schemaVersion is bumped whenever the stored profile layout changes; older
// rows are dropped on open.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS profiles (
	fingerprint TEXT    NOT NULL,
	position    INTEGER NOT NULL,
	subject_id  TEXT    NOT NULL,
	sex         TEXT    NOT NULL,
	phase       TEXT    NOT NULL,
	metric      TEXT    NOT NULL,
	values_json TEXT    NOT NULL,
	PRIMARY KEY (fingerprint, position)
);`

// Storage is a SQLite-backed profile cache
type Storage struct {
	db *sql.DB
}

// New opens (or creates) the cache at dbPath. ":memory:" gives a private
// in-memory cache.
func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and each ":memory:"
	// connection would otherwise be its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) migrate() error {
	var version int
	err := s.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM profiles`); err != nil {
		return fmt.Errorf("failed to clear stale profiles: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveProfiles replaces the cached profiles for fingerprint.
func (s *Storage) SaveProfiles(fingerprint string, profiles []models.Profile) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint must not be empty")
	}
	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return fmt.Errorf("invalid profile %s: %w", profiles[i].Key(), err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM profiles WHERE fingerprint = ?`, fingerprint); err != nil {
		return fmt.Errorf("failed to clear profiles: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO profiles (fingerprint, position, subject_id, sex, phase, metric, values_json) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range profiles {
		values, err := json.Marshal(p.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal values for %s: %w", p.Key(), err)
		}
		if _, err := stmt.Exec(fingerprint, i, p.SubjectID, string(p.Sex), string(p.Phase), string(p.Metric), string(values)); err != nil {
			return fmt.Errorf("failed to insert profile %s: %w", p.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadProfiles returns the cached profiles for fingerprint in their
// original order. found is false when nothing is cached.
func (s *Storage) LoadProfiles(fingerprint string) (profiles []models.Profile, found bool, err error) {
	rows, err := s.db.Query(`SELECT subject_id, sex, phase, metric, values_json FROM profiles WHERE fingerprint = ? ORDER BY position`, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                        models.Profile
			sex, phase, metric, blob string
		)
		if err := rows.Scan(&p.SubjectID, &sex, &phase, &metric, &blob); err != nil {
			return nil, false, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.Sex, p.Phase, p.Metric = models.Sex(sex), models.Phase(phase), models.Metric(metric)
		if err := json.Unmarshal([]byte(blob), &p.Values); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal values for %s: %w", p.Key(), err)
		}
		if err := p.Validate(); err != nil {
			return nil, false, fmt.Errorf("cached profile %s is corrupt: %w", p.Key(), err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read profiles: %w", err)
	}
	return profiles, len(profiles) > 0, nil
}

// Fingerprints lists every cached fingerprint.
func (s *Storage) Fingerprints() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT fingerprint FROM profiles ORDER BY fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// Prune drops cached entries whose fingerprint is not in keep.
func (s *Storage) Prune(keep []string) (int64, error) {
	current, err := s.Fingerprints()
	if err != nil {
		return 0, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, fp := range keep {
		keepSet[fp] = true
	}

	var removed int64
	for _, fp := range current {
		if keepSet[fp] {
			continue
		}
		res, err := s.db.Exec(`DELETE FROM profiles WHERE fingerprint = ?`, fp)
		if err != nil {
			return removed, fmt.Errorf("failed to prune %s: %w", fp, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

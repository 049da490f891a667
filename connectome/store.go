// Package connectome persists the contents of a source
// registry to a SQLite database for offline inspection.
//
// Each snapshot is keyed by a fresh run id and carries a
// SHA3 digest of its rows, so the connectivity of two ranks
// (or two runs of the same script) can be compared without
// reading the rows back.
package connectome

import (
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/spikecomm/registry"
	"golang.org/x/crypto/sha3"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    run_id     TEXT PRIMARY KEY,
    rank       INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    entries    INTEGER NOT NULL,
    digest     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sources (
    run_id       TEXT NOT NULL,
    thread       INTEGER NOT NULL,
    synapse_type INTEGER NOT NULL,
    slot         INTEGER NOT NULL,
    remote_id    INTEGER NOT NULL,
    is_primary   INTEGER NOT NULL,
    disabled     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sources_by_run ON sources (run_id, thread, synapse_type, slot);
`

// A Store is an open snapshot database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a snapshot database.
func Open(path string) (s *Store, err error) {
	defer essentials.AddCtxTo("open connectome store", &err)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteSnapshot stores every live entry of the registry
// under a fresh run id and returns that id.
func (s *Store) WriteSnapshot(rank int, reg *registry.SourceRegistry) (runID string, err error) {
	defer essentials.AddCtxTo("write connectome snapshot", &err)

	runID = uuid.New().String()
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ins, err := tx.Prepare(
		"INSERT INTO sources (run_id, thread, synapse_type, slot, remote_id, is_primary, disabled) " +
			"VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return "", err
	}
	defer ins.Close()

	hash := sha3.New256()
	var row [8]byte
	entries := 0
	reg.ForEachSource(func(info registry.SourceInfo) {
		if err != nil {
			return
		}
		_, err = ins.Exec(runID, info.Thread, info.SynapseType, info.Slot,
			int64(info.RemoteID), boolInt(info.Primary), boolInt(info.Disabled))
		entries++
		// ForEachSource visits entries in a fixed order, so
		// hashing the fields in sequence gives a
		// deterministic digest.
		for _, v := range []uint64{
			uint64(info.Thread), uint64(info.SynapseType), uint64(info.Slot),
			info.RemoteID, uint64(boolInt(info.Primary)), uint64(boolInt(info.Disabled)),
		} {
			binary.LittleEndian.PutUint64(row[:], v)
			hash.Write(row[:])
		}
	})
	if err != nil {
		return "", err
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	_, err = tx.Exec(
		"INSERT INTO snapshots (run_id, rank, created_at, entries, digest) VALUES (?, ?, ?, ?, ?)",
		runID, rank, time.Now().UTC().Format(time.RFC3339), entries, digest)
	if err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// SnapshotDigest returns the stored digest of a snapshot.
func (s *Store) SnapshotDigest(runID string) (digest string, err error) {
	defer essentials.AddCtxTo("read snapshot digest", &err)
	err = s.db.QueryRow("SELECT digest FROM snapshots WHERE run_id = ?", runID).Scan(&digest)
	return
}

// EntryCount returns the number of rows a snapshot holds.
func (s *Store) EntryCount(runID string) (count int, err error) {
	defer essentials.AddCtxTo("count snapshot entries", &err)
	err = s.db.QueryRow("SELECT COUNT(*) FROM sources WHERE run_id = ?", runID).Scan(&count)
	return
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

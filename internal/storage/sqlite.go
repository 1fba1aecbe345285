package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现：客户端会话 blob 与联系人簿
// SQLiteStore persists client session blobs and the contact book in SQLite (WAL mode).
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create db directory")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "exec %q", p)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ensure schema")
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS client_state (
		client_id   TEXT PRIMARY KEY,
		blob        BLOB NOT NULL,
		raw_size    INTEGER NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS companies (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE COLLATE NOCASE,
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS people (
		id           TEXT PRIMARY KEY,
		first_name   TEXT NOT NULL DEFAULT '',
		last_name    TEXT NOT NULL DEFAULT '',
		emails       TEXT NOT NULL DEFAULT '[]',
		phones       TEXT NOT NULL DEFAULT '[]',
		company_id   TEXT REFERENCES companies(id) ON DELETE SET NULL,
		job_title    TEXT NOT NULL DEFAULT '',
		city         TEXT NOT NULL DEFAULT '',
		state        TEXT NOT NULL DEFAULT '',
		linkedin     TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_people_created ON people(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Load 读取客户端 blob（zstd 解压）
// Load returns the decompressed blob of clientID, or nil when none is stored.
func (s *SQLiteStore) Load(clientID string) ([]byte, error) {
	var (
		stored  []byte
		rawSize int64
	)
	err := s.db.QueryRow(`SELECT blob, raw_size FROM client_state WHERE client_id = ?`, clientID).Scan(&stored, &rawSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load client %s", clientID)
	}
	return decompressBlob(stored, rawSize)
}

// Save 写入客户端 blob（zstd 压缩）
// Save stores blob for clientID, compressed at rest.
func (s *SQLiteStore) Save(clientID string, blob []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO client_state (client_id, blob, raw_size, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET blob = excluded.blob, raw_size = excluded.raw_size, updated_at = excluded.updated_at`,
		clientID, compressBlob(blob), len(blob), nowUTC())
	if err != nil {
		return errors.Wrapf(err, "save client %s", clientID)
	}
	return nil
}

func (s *SQLiteStore) Clients() ([]string, error) {
	states, err := s.ClientStates()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(states))
	for _, st := range states {
		ids = append(ids, st.ClientID)
	}
	return ids, nil
}

// ClientStates lists stored blobs with their raw and compressed sizes.
func (s *SQLiteStore) ClientStates() ([]ClientState, error) {
	rows, err := s.db.Query(`SELECT client_id, raw_size, length(blob), updated_at FROM client_state ORDER BY client_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list clients")
	}
	defer rows.Close()
	var out []ClientState
	for rows.Next() {
		var st ClientState
		if err := rows.Scan(&st.ClientID, &st.RawSize, &st.StoredSize, &st.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan client")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Close 关闭数据库 / Close the database
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

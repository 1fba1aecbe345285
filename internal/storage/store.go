package storage

import "github.com/cockroachdb/errors"

// ErrNotFound 记录不存在
// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("not found")

// BlobStore 按客户端保存会话 blob，支持多后端 (SQLite / JSON 文件)
// BlobStore keeps one session blob per client context; backends are SQLite and JSON files.
// Load returns (nil, nil) when the client has no stored state.
type BlobStore interface {
	Load(clientID string) ([]byte, error)
	Save(clientID string, blob []byte) error
	// Clients lists the client ids with stored state.
	Clients() ([]string, error)
	Close() error
}

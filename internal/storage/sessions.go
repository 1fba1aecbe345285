package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// FileStore 以 JSON 文件保存每个客户端的会话 blob
// FileStore keeps each client's session blob in <baseDir>/sessions/<client>.json.
type FileStore struct {
	baseDir string
}

var unsafeClientChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NewFileStore 创建文件存储 / Creates a file-backed blob store
func NewFileStore(baseDir string) (*FileStore, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, errors.New("file store base dir is empty")
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "sessions"), 0o755); err != nil {
		return nil, errors.Wrap(err, "create sessions dir")
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (f *FileStore) path(clientID string) string {
	name := unsafeClientChars.ReplaceAllString(clientID, "_")
	if name == "" {
		name = "default"
	}
	return filepath.Join(f.baseDir, "sessions", name+".json")
}

func (f *FileStore) Load(clientID string) ([]byte, error) {
	data, err := os.ReadFile(f.path(clientID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", f.path(clientID))
	}
	return data, nil
}

// Save 先写临时文件再原子替换 / Writes a temp file, then renames it into place
func (f *FileStore) Save(clientID string, blob []byte) error {
	target := f.path(clientID)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".blob-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrapf(err, "replace %s", target)
	}
	return nil
}

func (f *FileStore) Clients() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.baseDir, "sessions"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read sessions dir")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FileStore) Close() error { return nil }

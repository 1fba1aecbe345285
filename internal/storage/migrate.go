package storage

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// MigrateBlobs 将 JSON 文件中的客户端 blob 迁移到 SQLite
// MigrateBlobs copies client blobs from src into dst, skipping clients dst
// already holds. It returns the number of migrated clients.
func MigrateBlobs(src, dst BlobStore, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.Default()
	}
	clients, err := src.Clients()
	if err != nil {
		return 0, errors.Wrap(err, "list source clients")
	}

	migrated := 0
	for _, id := range clients {
		// 检查是否已存在 / Check if already migrated
		if existing, err := dst.Load(id); err == nil && existing != nil {
			continue
		}
		blob, err := src.Load(id)
		if err != nil {
			logger.Warn("skip migrate", "client", id, "err", err)
			continue
		}
		if len(blob) == 0 {
			continue
		}
		if err := dst.Save(id, blob); err != nil {
			logger.Warn("migrate client failed", "client", id, "err", err)
			continue
		}
		migrated++
	}
	return migrated, nil
}

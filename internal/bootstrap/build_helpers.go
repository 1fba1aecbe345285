package bootstrap

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"assistant/internal/config"
	"assistant/internal/provider"
	"assistant/internal/quota"
	"assistant/internal/session"
	"assistant/internal/storage"
)

// DatabaseName is the SQLite file under the data dir.
const DatabaseName = "assistant.db"

// LimitsFromConfig maps the quota section onto session limits.
func LimitsFromConfig(cfg config.Config) session.Limits {
	limits := session.DefaultLimits()
	q := cfg.Quota
	if q.MaxStorageBytes > 0 {
		limits.MaxStorageSizeBytes = q.MaxStorageBytes
	}
	if q.MaxSessions > 0 {
		limits.MaxSessions = q.MaxSessions
	}
	if q.MaxMessagesPerSession > 0 {
		limits.MaxMessagesPerSession = q.MaxMessagesPerSession
	}
	if q.MaxAttachmentBytes > 0 {
		limits.MaxAttachmentSizeBytes = q.MaxAttachmentBytes
	}
	return limits
}

// PolicyFromConfig 将配置中的阈值表转换为监控策略
// PolicyFromConfig builds the monitor policy from the thresholds table.
func PolicyFromConfig(cfg config.Config) quota.Policy {
	policy := quota.DefaultPolicy()
	m := cfg.Monitor
	if m.IntervalMS > 0 {
		policy.Interval = time.Duration(m.IntervalMS) * time.Millisecond
	}
	if m.EvictBatch > 0 {
		policy.EvictBatch = m.EvictBatch
	}
	if len(m.Thresholds) > 0 {
		policy.Thresholds = make([]quota.Threshold, 0, len(m.Thresholds))
		for _, th := range m.Thresholds {
			policy.Thresholds = append(policy.Thresholds, quota.Threshold{
				Level:    quota.Level(th.Level),
				Percent:  th.Percent,
				Suppress: time.Duration(th.SuppressMinutes) * time.Minute,
			})
		}
	}
	return policy
}

func providerConfig(cfg config.Config) provider.Config {
	return provider.Config{
		Name:       cfg.Provider.Name,
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		Model:      cfg.Provider.Model,
		TimeoutMS:  cfg.Provider.TimeoutMS,
		MaxRetries: cfg.Provider.MaxRetries,
	}
}

// OpenBlobStore opens the configured session backend under the data dir.
func OpenBlobStore(cfg config.Config) (storage.BlobStore, error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", "sqlite":
		return storage.NewSQLiteStore(filepath.Join(dir, DatabaseName))
	case "file":
		return storage.NewFileStore(dir)
	}
	return nil, errors.Newf("unknown storage backend %q", cfg.Storage.Backend)
}

func ms(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}

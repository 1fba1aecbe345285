package storage

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newRecordID 生成带前缀的记录 ID / Generates a prefixed record ID
func newRecordID(prefix string) string {
	idMu.Lock()
	defer idMu.Unlock()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}

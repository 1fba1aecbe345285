package session

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

// NewID 生成带前缀的 ULID，同一毫秒内单调递增
// NewID returns a prefixed ULID, monotonic within the same millisecond.
func NewID(prefix string) string {
	idMu.Lock()
	defer idMu.Unlock()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}

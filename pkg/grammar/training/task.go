package training

import (
	"crypto/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Task identifies one dispatched training run.
type Task struct {
	// RunID correlates the scheduler's and the trainer's log lines.
	RunID   ulid.ULID
	JobID   int64
	Version string
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a sortable identifier for a run started at t.
func NewRunID(t time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy)
}

// NextVersion returns "<prefix>.<n>" where n is one more than the largest
// numeric patch among versions carrying that prefix. Non-numeric patches
// are ignored.
func NextVersion(versions []string, prefix string) string {
	base := strings.TrimSuffix(prefix, ".") + "."
	last := 0
	for _, v := range versions {
		if !strings.HasPrefix(v, base) {
			continue
		}
		patch, err := strconv.Atoi(strings.TrimPrefix(v, base))
		if err != nil || patch < 0 {
			continue
		}
		if patch > last {
			last = patch
		}
	}
	return base + strconv.Itoa(last+1)
}

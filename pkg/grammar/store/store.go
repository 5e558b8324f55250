package store

import (
	"context"
	"time"

	"github.com/cognicore/grammar/pkg/grammar/rules"
)

// RuleStore persists the shared rule collection. Every mutation runs inside
// a critical section spanning load, mutate and save.
type RuleStore interface {
	// Path returns the location of the backing file.
	Path() string

	// Load reads the collection. A missing backing file yields
	// internalerr.ErrMissingStore, an undecodable one
	// internalerr.ErrParseFailure.
	Load(ctx context.Context) (*rules.RuleSet, error)

	// Update loads the collection, applies fn and saves the result when fn
	// returns nil. Load errors are returned unchanged and nothing is written.
	Update(ctx context.Context, fn func(rs *rules.RuleSet) error) error

	// Upsert is the lenient counterpart of Update used by the add path: a
	// missing or undecodable backing file is replaced by a fresh rule set.
	Upsert(ctx context.Context, fn func(rs *rules.RuleSet) error) error

	// Add records a single correction, see rules.RuleSet.Add.
	Add(ctx context.Context, errorType, wrong, correct string) (rules.AddResult, error)

	// Reset overwrites the collection with the seed rules.
	Reset(ctx context.Context) error

	// Backup copies the backing file next to itself with a timestamp suffix
	// and returns the copy's path.
	Backup(now time.Time) (string, error)

	// Info describes the backing file.
	Info() (Info, error)
}

// Info describes the backing file of a RuleStore.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

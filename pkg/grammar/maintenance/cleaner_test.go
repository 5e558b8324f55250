package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/grammar/pkg/grammar/auditlog"
	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/lexicon"
	"github.com/cognicore/grammar/pkg/grammar/rules"
	"github.com/cognicore/grammar/pkg/grammar/store/filestore"
)

var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func seededStore(t *testing.T, set map[string][]string) *filestore.Store {
	t.Helper()
	st := filestore.New(filepath.Join(t.TempDir(), "grammar_rules.yaml"))
	err := st.Upsert(context.Background(), func(rs *rules.RuleSet) error {
		for errType, originals := range set {
			for _, o := range originals {
				rs.Rules[errType] = append(rs.Rules[errType], rules.Rule{
					Original:  o,
					Corrected: []string{"x"},
					Count:     1,
				})
			}
		}
		return nil
	})
	require.NoError(t, err)
	return st
}

func originals(rs *rules.RuleSet, errType string) []string {
	var out []string
	for _, r := range rs.Rules[errType] {
		out = append(out, r.Original)
	}
	return out
}

func TestBlanketCleanup(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, map[string][]string{
		"grammar": {"is", "was", "were", "I has", "she go home"},
	})
	logDir := t.TempDir()

	c := Cleaner{
		Store:   st,
		Journal: auditlog.New(logDir, "grammar_rules_cleanup", auditlog.WithClock(clock)),
		Now:     clock,
	}
	res, err := c.Run(ctx, Blanket{})
	require.NoError(t, err)

	assert.True(t, res.Saved)
	assert.Equal(t, 5, res.Before)
	assert.Equal(t, 2, res.After)
	assert.Equal(t, 3, res.Removed)
	assert.InDelta(t, 60.0, res.Percent, 0.001)
	require.Len(t, res.Types, 1)
	assert.Equal(t, TypeResult{Type: "grammar", Description: "Grammar error", Before: 5, After: 2, Removed: 3}, res.Types[0])

	rs, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"I has", "she go home"}, originals(rs, "grammar"))

	backup := filestore.BackupPath(st.Path(), fixedNow)
	assert.Equal(t, backup, res.BackupPath)
	_, err = os.Stat(backup)
	assert.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(logDir, "grammar_rules_cleanup_20240601.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Type 'grammar' (Grammar error): 5 rules, removed 3, kept 2")
	assert.Contains(t, string(data), "Removed 3 rules (60.00%)")
	assert.True(t, strings.HasSuffix(string(data), "\n\n"))
}

func TestBlanketDropsEmptyOriginals(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, map[string][]string{"unknown": {"", "   ", "a lot"}})

	res, err := (&Cleaner{Store: st, Now: clock}).Run(ctx, Blanket{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
}

func TestTargetedCleanup(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, map[string][]string{
		"grammar":  {"is", "Were", "recieve", "I has"},
		"spelling": {"is", "teh"},
	})

	logDir := t.TempDir()
	c := Cleaner{
		Store:   st,
		Journal: auditlog.New(logDir, "grammar_rules_cleanup", auditlog.WithClock(clock)),
		Now:     clock,
	}
	res, err := c.Run(ctx, NewTargeted(DefaultPreserve(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)

	rs, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"recieve", "I has"}, originals(rs, "grammar"))
	assert.Equal(t, []string{"is", "teh"}, originals(rs, "spelling"))

	data, err := os.ReadFile(filepath.Join(logDir, "grammar_rules_cleanup_20240601.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Type 'grammar' (Grammar error): 4 rules, removed 2, kept 2")
	assert.Contains(t, string(data), "Type 'spelling' (Spelling error): 2 rules, removed 0, kept 2")
}

func TestTargetedCustomLexicon(t *testing.T) {
	p := NewTargeted(nil, lexicon.New([]string{"alot"}))
	assert.False(t, p.Keep("spelling", rules.Rule{Original: "ALOT"}))
	assert.True(t, p.Keep("grammar", rules.Rule{Original: "is"}))
	assert.False(t, p.Keep("grammar", rules.Rule{Original: ""}))
}

func TestCleanupMissingStore(t *testing.T) {
	st := filestore.New(filepath.Join(t.TempDir(), "grammar_rules.yaml"))
	_, err := (&Cleaner{Store: st}).Run(context.Background(), Blanket{})
	require.Error(t, err)
	assert.True(t, internalerr.IsFatal(err))
	assert.True(t, errors.Is(err, internalerr.ErrMissingStore))
}

func TestCleanupParseFailureLeavesFileUntouched(t *testing.T) {
	st := filestore.New(filepath.Join(t.TempDir(), "grammar_rules.yaml"))
	require.NoError(t, os.WriteFile(st.Path(), []byte("garbage: [\n"), 0644))

	res, err := (&Cleaner{Store: st, Now: clock}).Run(context.Background(), Blanket{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerr.ErrParseFailure))
	assert.False(t, res.Saved)

	data, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	assert.Equal(t, "garbage: [\n", string(data))
}

type brokenBackup struct {
	*filestore.Store
}

func (brokenBackup) Backup(now time.Time) (string, error) {
	return "unwritable", fmt.Errorf("%w: disk full", internalerr.ErrBackupFailed)
}

func TestBackupFailureContinuesByDefault(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, map[string][]string{"grammar": {"is", "I has"}})

	res, err := (&Cleaner{Store: brokenBackup{st}, Now: clock}).Run(ctx, Blanket{})
	require.NoError(t, err)
	assert.Error(t, res.BackupErr)
	assert.True(t, res.Saved)
	assert.Equal(t, 1, res.Removed)
}

func TestBackupFailureCanAbort(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t, map[string][]string{"grammar": {"is", "I has"}})

	c := Cleaner{Store: brokenBackup{st}, Now: clock, AbortOnBackupFailure: true}
	res, err := c.Run(ctx, Blanket{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerr.ErrBackupFailed))
	assert.False(t, res.Saved)

	rs, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, rs.Rules["grammar"], 2)
}

// Package filestore implements store.RuleStore on a single YAML file.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers never observe a partially written store.
// Mutations are serialized by an in-process mutex and an advisory lock on a
// sibling ".lock" file, which also serializes separate processes.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/rules"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

const backupTimeLayout = "20060102_150405"

// Store is a file-backed rule store.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

var _ store.RuleStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for masked failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a store backed by path. The file does not need to exist.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the backing file.
func (s *Store) Load(ctx context.Context) (*rules.RuleSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

// Update runs fn inside the critical section and saves the result.
func (s *Store) Update(ctx context.Context, fn func(rs *rules.RuleSet) error) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	rs, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(rs); err != nil {
		return err
	}
	return s.write(rs)
}

// Upsert is Update with missing or undecodable stores replaced by an empty
// rule set carrying the default descriptions.
func (s *Store) Upsert(ctx context.Context, fn func(rs *rules.RuleSet) error) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	rs, err := s.read()
	switch {
	case err == nil:
	case errors.Is(err, internalerr.ErrMissingStore):
		rs = rules.New()
	case errors.Is(err, internalerr.ErrParseFailure):
		s.logger.Warn("rule store unreadable, starting from defaults",
			zap.String("path", s.path), zap.Error(err))
		rs = rules.New()
	default:
		return err
	}

	if err := fn(rs); err != nil {
		return err
	}
	return s.write(rs)
}

// Add records a single correction.
func (s *Store) Add(ctx context.Context, errorType, wrong, correct string) (rules.AddResult, error) {
	var res rules.AddResult
	err := s.Upsert(ctx, func(rs *rules.RuleSet) error {
		var err error
		res, err = rs.Add(errorType, wrong, correct)
		return err
	})
	if err != nil {
		return rules.AddResult{}, err
	}
	return res, nil
}

// Reset overwrites the store with the seed rules.
func (s *Store) Reset(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(rules.Defaults())
}

// Backup copies the backing file to <base>_backup_<YYYYMMDD_HHMMSS><ext>.
func (s *Store) Backup(now time.Time) (string, error) {
	dst := BackupPath(s.path, now)

	src, err := os.Open(s.path)
	if err != nil {
		return dst, fmt.Errorf("%w: %v", internalerr.ErrBackupFailed, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return dst, fmt.Errorf("%w: %v", internalerr.ErrBackupFailed, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return dst, fmt.Errorf("%w: %v", internalerr.ErrBackupFailed, err)
	}
	if err := out.Close(); err != nil {
		return dst, fmt.Errorf("%w: %v", internalerr.ErrBackupFailed, err)
	}
	return dst, nil
}

// Info describes the backing file.
func (s *Store) Info() (store.Info, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.Info{}, fmt.Errorf("%w: %s", internalerr.ErrMissingStore, s.path)
		}
		return store.Info{}, err
	}
	return store.Info{Path: s.path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// BackupPath derives the backup file name for path at now.
func BackupPath(path string, now time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "_backup_" + now.Format(backupTimeLayout) + ext
}

func (s *Store) read() (*rules.RuleSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", internalerr.ErrMissingStore, s.path)
		}
		return nil, fmt.Errorf("read rule store: %w", err)
	}
	rs, err := rules.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return rs, nil
}

func (s *Store) write(rs *rules.RuleSet) error {
	data, err := rules.Encode(rs)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", internalerr.ErrPersistFailed, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrPersistFailed, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrPersistFailed, err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", internalerr.ErrPersistFailed, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", internalerr.ErrPersistFailed, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", internalerr.ErrPersistFailed, err)
	}
	return nil
}

// lock enters the critical section and returns the function leaving it.
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	f, err := os.OpenFile(s.path+".lock", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(ctx, f); err != nil {
		f.Close()
		s.mu.Unlock()
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}

	return func() {
		if err := unlockFile(f); err != nil {
			s.logger.Warn("release store lock", zap.Error(err))
		}
		f.Close()
		s.mu.Unlock()
	}, nil
}

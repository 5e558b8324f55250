package matcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cognicore/grammar/pkg/grammar/rules"
)

// DefaultReloadInterval bounds how often a watched store is re-read.
const DefaultReloadInterval = 250 * time.Millisecond

// Source supplies rule snapshots. store.RuleStore satisfies it.
type Source interface {
	Path() string
	Load(ctx context.Context) (*rules.RuleSet, error)
}

// Checker serves request-time checks from an in-memory snapshot of the
// store, optionally kept fresh by watching the store file.
type Checker struct {
	source  Source
	matcher *Matcher
	logger  *zap.Logger
	limiter *rate.Limiter

	current atomic.Pointer[rules.RuleSet]
	reloads atomic.Int64
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckerLogger sets the diagnostics logger.
func WithCheckerLogger(l *zap.Logger) CheckerOption {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReloadInterval sets the minimum spacing between reloads.
func WithReloadInterval(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewChecker returns a Checker over source. Call Reload before the first
// Check; until then every check reports no issues.
func NewChecker(source Source, m *Matcher, opts ...CheckerOption) *Checker {
	if m == nil {
		m = New()
	}
	c := &Checker{
		source:  source,
		matcher: m,
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Every(DefaultReloadInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reload replaces the snapshot with the store's current contents. On error
// the previous snapshot stays in place.
func (c *Checker) Reload(ctx context.Context) error {
	rs, err := c.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload rules: %w", err)
	}
	c.current.Store(rs)
	c.reloads.Add(1)
	c.logger.Debug("rules reloaded",
		zap.String("path", c.source.Path()),
		zap.Int("rules", rs.Total()))
	return nil
}

// Snapshot returns the rule set checks currently run against.
func (c *Checker) Snapshot() *rules.RuleSet {
	return c.current.Load()
}

// Reloads reports how many reloads have succeeded.
func (c *Checker) Reloads() int64 {
	return c.reloads.Load()
}

// Check scans text against the current snapshot.
func (c *Checker) Check(text string) Issues {
	return c.matcher.FindIssues(c.current.Load(), text)
}

// Watch reloads the snapshot whenever the store file is written or replaced.
// It blocks until ctx is cancelled.
func (c *Checker) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(c.source.Path())
	// Atomic saves replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	c.logger.Info("watching rule store", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, target) {
				continue
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return nil
			}
			drain(w.Events)
			if err := c.Reload(ctx); err != nil {
				c.logger.Warn("keeping previous rules", zap.Error(err))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func relevant(ev fsnotify.Event, target string) bool {
	if filepath.Clean(ev.Name) != target {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// drain discards events queued while waiting for the limiter; the reload
// that follows covers them.
func drain(events <-chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

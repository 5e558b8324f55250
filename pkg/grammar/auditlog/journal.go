// Package auditlog writes the human readable operation logs kept next to the
// rule store: one file per operation per day, each run appending a block of
// lines followed by a blank line.
package auditlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	dayLayout   = "20060102"
	stampLayout = "2006-01-02 15:04:05"
)

// Journal buffers the lines of one run and appends them on Flush.
type Journal struct {
	dir        string
	name       string
	console    io.Writer
	now        func() time.Time
	timestamps bool

	mu    sync.Mutex
	lines []string
}

// Option configures a Journal.
type Option func(*Journal)

// WithConsole mirrors every line to w as it is recorded.
func WithConsole(w io.Writer) Option {
	return func(j *Journal) { j.console = w }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

// WithTimestamps prefixes each line with "[YYYY-MM-DD HH:MM:SS] ".
func WithTimestamps() Option {
	return func(j *Journal) { j.timestamps = true }
}

// New returns a journal writing to <dir>/<name>_YYYYMMDD.log. An empty dir
// disables the file and keeps only the console mirror.
func New(dir, name string, opts ...Option) *Journal {
	j := &Journal{dir: dir, name: name, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Discard returns a journal that records lines but writes nowhere.
func Discard() *Journal {
	return New("", "discard")
}

// Path returns the file the journal appends to today.
func (j *Journal) Path() string {
	if j.dir == "" {
		return ""
	}
	return filepath.Join(j.dir, j.name+"_"+j.now().Format(dayLayout)+".log")
}

// Begin records the run header "<title> - <timestamp>".
func (j *Journal) Begin(title string) {
	j.record(title + " - " + j.now().Format(stampLayout))
}

// Printf records a formatted line.
func (j *Journal) Printf(format string, args ...any) {
	j.record(fmt.Sprintf(format, args...))
}

// Lines returns the lines recorded since the last Flush.
func (j *Journal) Lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.lines))
	copy(out, j.lines)
	return out
}

// Flush appends the buffered block to the day's file and clears the buffer.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.lines) == 0 {
		return nil
	}
	block := strings.Join(j.lines, "\n") + "\n\n"
	j.lines = j.lines[:0]

	path := j.Path()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(j.dir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if _, err := f.WriteString(block); err != nil {
		f.Close()
		return fmt.Errorf("append log file: %w", err)
	}
	return f.Close()
}

func (j *Journal) record(line string) {
	if j.timestamps {
		line = "[" + j.now().Format(stampLayout) + "] " + line
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lines = append(j.lines, line)
	if j.console != nil {
		fmt.Fprintln(j.console, line)
	}
}

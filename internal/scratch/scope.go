// Package scratch implements ScratchScope: an exclusively-owned temporary
// directory bound to exactly one operation, with guaranteed cleanup on every
// exit path. Each run's Ingestor owns a root Scope with child scopes for its
// cache and segments; each LLM stage and toolkit call that needs disk opens
// its own root Scope for the length of that call. Every scope name ends in a
// fresh UUID, so per-run isolation (the hard requirement of spec §5) falls
// out of path construction rather than bookkeeping.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Scope is an exclusively-owned scratch directory. Close is idempotent and
// safe to call from a defer on every exit path, mirroring the teacher's
// os.MkdirTemp/defer os.RemoveAll discipline in the pipeline orchestrator.
type Scope struct {
	dir string

	mu     sync.Mutex
	closed bool
}

// New creates a scope rooted at filepath.Join(parent, prefix+"-"+uuid), where
// parent is normally the OS temp root for a run's top-level scope, or
// another Scope's Dir() for a nested child scope.
func New(parent, prefix string) (*Scope, error) {
	name := fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("scratch: creating %s: %w", dir, err)
	}
	return &Scope{dir: dir}, nil
}

// NewRoot creates a top-level scope under the OS temp root. prefix names the
// owning component, for example "ingest", "trim" or "media-concat".
func NewRoot(prefix string) (*Scope, error) {
	return New(os.TempDir(), prefix)
}

// Dir returns the scope's absolute directory path.
func (s *Scope) Dir() string {
	return s.dir
}

// Child creates a nested scope inside this one, for a single toolkit call or
// stage invocation. Nesting means a child's lifetime is strictly bounded by
// its parent's — closing the parent removes every child regardless of
// whether the child was explicitly closed (invariant (f) of spec §3).
func (s *Scope) Child(prefix string) (*Scope, error) {
	return New(s.dir, prefix)
}

// Path joins elem onto the scope's directory.
func (s *Scope) Path(elem ...string) string {
	return filepath.Join(append([]string{s.dir}, elem...)...)
}

// Close removes the scope directory and everything under it. Safe to call
// more than once; only the first call does work.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}

// Package history keeps a bounded, linear log of buffer snapshots for undo.
//
// There is no redo: committing after an undo drops every snapshot past the
// current index. Committing content equal to the current snapshot does
// nothing; snapshots further back in the log are not consulted.
package history

// DefaultMaxSize is the snapshot capacity used when none is given.
const DefaultMaxSize = 50

// Manager is the snapshot log plus a cursor into it.
// It is not safe for concurrent use; callers serialize access.
type Manager struct {
	entries []string
	index   int
	maxSize int
}

// NewManager creates an empty log holding at most maxSize snapshots.
func NewManager(maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Manager{
		index:   -1,
		maxSize: maxSize,
	}
}

// Commit records content as the newest snapshot and reports whether the log
// changed.
func (m *Manager) Commit(content string) bool {
	if m.index >= 0 && m.entries[m.index] == content {
		return false
	}

	// Drop the undone future.
	if m.index < len(m.entries)-1 {
		m.entries = m.entries[:m.index+1]
	}

	m.entries = append(m.entries, content)
	m.index = len(m.entries) - 1

	if len(m.entries) > m.maxSize {
		m.entries[0] = ""
		m.entries = m.entries[1:]
		m.index--
	}
	return true
}

// Undo steps back one snapshot and returns it. At the oldest retained
// snapshot it returns false and leaves the log alone.
func (m *Manager) Undo() (string, bool) {
	if m.index <= 0 {
		return "", false
	}
	m.index--
	return m.entries[m.index], true
}

// CanUndo reports whether Undo would move.
func (m *Manager) CanUndo() bool {
	return m.index > 0
}

// Current returns the snapshot at the cursor.
func (m *Manager) Current() (string, bool) {
	if m.index < 0 {
		return "", false
	}
	return m.entries[m.index], true
}

// Len returns the number of retained snapshots.
func (m *Manager) Len() int {
	return len(m.entries)
}

// Index returns the cursor, -1 when the log is empty.
func (m *Manager) Index() int {
	return m.index
}

// MaxSize returns the capacity.
func (m *Manager) MaxSize() int {
	return m.maxSize
}

// Snapshots returns a copy of the retained snapshots, oldest first.
func (m *Manager) Snapshots() []string {
	out := make([]string, len(m.entries))
	copy(out, m.entries)
	return out
}

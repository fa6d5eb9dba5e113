// Package tracker records, per subject, the last item a notification was handed off for.
package tracker

import "sync"

// State is the novelty state of one subject.
type State struct {
	SubjectID      int64
	LastSeenItemID string
}

// Tracker owns the state table for all subjects. State lives for the process lifetime.
//
// The scheduler is the only writer during a cycle; the mutex exists because Rollback
// is called from delivery goroutines.
type Tracker struct {
	mu     sync.Mutex
	states map[int64]*State
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{states: make(map[int64]*State)}
}

// Observe creates the subject's state if it does not exist yet and reports
// whether this call created it.
func (t *Tracker) Observe(subjectID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.states[subjectID]
	if !ok {
		t.states[subjectID] = &State{SubjectID: subjectID}
	}
	return !ok
}

// IsNew reports whether itemID differs from the subject's last seen item.
// An empty itemID is never new.
func (t *Tracker) IsNew(subjectID int64, itemID string) bool {
	if itemID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(subjectID).LastSeenItemID != itemID
}

// Commit records itemID as the subject's last seen item and returns the previous one.
func (t *Tracker) Commit(subjectID int64, itemID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(subjectID)
	prev := st.LastSeenItemID
	st.LastSeenItemID = itemID
	return prev
}

// Rollback restores previous as the subject's last seen item, but only while
// itemID is still the recorded one. It reports whether the state changed.
func (t *Tracker) Rollback(subjectID int64, itemID, previous string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[subjectID]
	if !ok || st.LastSeenItemID != itemID {
		return false
	}
	st.LastSeenItemID = previous
	return true
}

// LastSeen returns the subject's last seen item and whether the subject is tracked.
func (t *Tracker) LastSeen(subjectID int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[subjectID]
	if !ok {
		return "", false
	}
	return st.LastSeenItemID, true
}

// Snapshot returns a copy of all tracked states.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]State, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, *st)
	}
	return out
}

// state must be called with mu held.
func (t *Tracker) state(subjectID int64) *State {
	st, ok := t.states[subjectID]
	if !ok {
		st = &State{SubjectID: subjectID}
		t.states[subjectID] = st
	}
	return st
}

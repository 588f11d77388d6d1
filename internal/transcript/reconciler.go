package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lingora-app/lingora/internal/repository"
)

// Fragment is one unit of incoming transcript data. A later fragment bearing
// the same ID replaces the earlier one (interim speech-to-text correction).
type Fragment struct {
	ID      string
	Role    repository.Role
	Text    string
	IsFinal bool
}

// Entry is a live display entry. Ordering is first-seen order, stable across
// updates.
type Entry struct {
	ID        string
	Role      repository.Role
	Text      string
	Timestamp time.Time
	IsFinal   bool
}

// Outcome reports what Apply did with a fragment so the caller can decide
// whether to persist it.
type Outcome struct {
	Entry Entry
	// Finalized is true when the fragment transitioned into final state on
	// this apply.
	Finalized bool
	// Amended is true when an already-final fragment was redelivered with
	// different text.
	Amended bool
}

// Reconciler merges fragments into an ordered, deduplicated-by-ID sequence.
type Reconciler struct {
	mu      sync.Mutex
	entries []Entry
	index   map[string]int

	now   func() time.Time
	newID func() string
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		index: make(map[string]int),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (r *Reconciler) Apply(f Fragment) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.ID == "" {
		f.ID = r.newID()
	}
	entry := Entry{
		ID:        f.ID,
		Role:      f.Role,
		Text:      f.Text,
		Timestamp: r.now(),
		IsFinal:   f.IsFinal,
	}

	if i, ok := r.index[f.ID]; ok {
		prev := r.entries[i]
		r.entries[i] = entry
		return Outcome{
			Entry:     entry,
			Finalized: f.IsFinal && !prev.IsFinal,
			Amended:   f.IsFinal && prev.IsFinal && prev.Text != f.Text,
		}
	}

	r.index[f.ID] = len(r.entries)
	r.entries = append(r.entries, entry)
	return Outcome{Entry: entry, Finalized: f.IsFinal}
}

// Seed replaces the sequence with durable history, marking every entry final.
func (r *Reconciler) Seed(entries []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make([]Entry, 0, len(entries))
	r.index = make(map[string]int, len(entries))
	for _, e := range entries {
		if _, ok := r.index[e.ID]; ok {
			continue
		}
		e.IsFinal = true
		r.index[e.ID] = len(r.entries)
		r.entries = append(r.entries, e)
	}
}

// Entries returns a copy of the current ordered sequence.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.index = make(map[string]int)
}

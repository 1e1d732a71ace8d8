// Package memory provides an in-memory Store used for development and tests.
// Transactions run against a private copy of the state that replaces the
// shared state only when the callback succeeds, so a failed callback leaves
// nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tinoosan/millmeter/internal/errs"
	"github.com/tinoosan/millmeter/internal/ledger"
)

// Fault is consulted before every row write inside a transaction.
// Returning an error aborts the write and, through it, the transaction.
type Fault func(op string, c ledger.Category, r ledger.Row) error

type state struct {
	nextLogID int64
	sessions  map[int64]ledger.Session
	// rows per timeline, sorted ascending by log id
	rows      map[ledger.Timeline][]ledger.Row
	lookups   map[ledger.LookupTable]map[int64]string
	nextID    map[ledger.LookupTable]int64
	idem      map[string]int64
	audits    []ledger.CorrectionAudit
}

func newState() *state {
	return &state{
		sessions: make(map[int64]ledger.Session),
		rows:     make(map[ledger.Timeline][]ledger.Row),
		lookups:  make(map[ledger.LookupTable]map[int64]string),
		nextID:   make(map[ledger.LookupTable]int64),
		idem:     make(map[string]int64),
	}
}

func (st *state) clone() *state {
	c := &state{
		nextLogID: st.nextLogID,
		sessions:  make(map[int64]ledger.Session, len(st.sessions)),
		rows:      make(map[ledger.Timeline][]ledger.Row, len(st.rows)),
		lookups:   make(map[ledger.LookupTable]map[int64]string, len(st.lookups)),
		nextID:    make(map[ledger.LookupTable]int64, len(st.nextID)),
		idem:      make(map[string]int64, len(st.idem)),
		audits:    append([]ledger.CorrectionAudit(nil), st.audits...),
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.rows {
		c.rows[k] = append([]ledger.Row(nil), v...)
	}
	for t, m := range st.lookups {
		cm := make(map[int64]string, len(m))
		for id, name := range m {
			cm[id] = name
		}
		c.lookups[t] = cm
	}
	for k, v := range st.nextID {
		c.nextID[k] = v
	}
	for k, v := range st.idem {
		c.idem[k] = v
	}
	return c
}

// Store is guarded by an RWMutex; WithinTx holds the write lock for the whole callback.
type Store struct {
	mu    sync.RWMutex
	st    *state
	fault Fault
}

// New constructs an empty in-memory store.
func New() *Store { return &Store{st: newState()} }

// InjectFault installs f for subsequent transactions. Pass nil to clear it.
func (s *Store) InjectFault(f Fault) { s.mu.Lock(); s.fault = f; s.mu.Unlock() }

// Reset drops all data.
func (s *Store) Reset() { s.mu.Lock(); s.st = newState(); s.mu.Unlock() }

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// Audits returns the saved correction audits, oldest first.
func (s *Store) Audits() []ledger.CorrectionAudit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.CorrectionAudit(nil), s.st.audits...)
}

// WithinTx implements ledger.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{st: work, fault: s.fault}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type tx struct {
	st    *state
	fault Fault
}

func (t *tx) InsertSession(_ context.Context, sess ledger.Session) (int64, error) {
	t.st.nextLogID++
	sess.LogID = t.st.nextLogID
	t.st.sessions[sess.LogID] = sess
	return sess.LogID, nil
}

func (t *tx) InsertRow(_ context.Context, c ledger.Category, r ledger.Row) error {
	if !c.Valid() {
		return fmt.Errorf("%w: unknown category %q", errs.ErrInvalid, string(c))
	}
	if _, ok := t.st.sessions[r.LogID]; !ok {
		return fmt.Errorf("insert %s row: session %d: %w", c, r.LogID, errs.ErrNotFound)
	}
	if t.fault != nil {
		if err := t.fault("insert", c, r); err != nil {
			return err
		}
	}
	key := r.Timeline(c)
	rows := t.st.rows[key]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].LogID >= r.LogID })
	if i < len(rows) && rows[i].LogID == r.LogID {
		return fmt.Errorf("%w: %s row for log %d already exists", errs.ErrConflict, c, r.LogID)
	}
	rows = append(rows, ledger.Row{})
	copy(rows[i+1:], rows[i:])
	rows[i] = r
	t.st.rows[key] = rows
	return nil
}

func (t *tx) LatestRow(_ context.Context, tl ledger.Timeline) (ledger.Row, bool, error) {
	rows := t.st.rows[tl]
	if len(rows) == 0 {
		return ledger.Row{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

func (t *tx) Row(_ context.Context, tl ledger.Timeline, logID int64) (ledger.Row, error) {
	rows := t.st.rows[tl]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].LogID >= logID })
	if i < len(rows) && rows[i].LogID == logID {
		return rows[i], nil
	}
	return ledger.Row{}, fmt.Errorf("%s log %d: %w", tl.Key(), logID, errs.ErrNotFound)
}

func (t *tx) NextRow(_ context.Context, tl ledger.Timeline, logID int64) (ledger.Row, bool, error) {
	rows := t.st.rows[tl]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].LogID > logID })
	if i < len(rows) {
		return rows[i], true, nil
	}
	return ledger.Row{}, false, nil
}

func (t *tx) PrevRow(_ context.Context, tl ledger.Timeline, logID int64) (ledger.Row, bool, error) {
	rows := t.st.rows[tl]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].LogID >= logID })
	if i > 0 {
		return rows[i-1], true, nil
	}
	return ledger.Row{}, false, nil
}

func (t *tx) RowsFrom(_ context.Context, tl ledger.Timeline, logID int64) ([]ledger.Row, error) {
	rows := t.st.rows[tl]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].LogID >= logID })
	return append([]ledger.Row(nil), rows[i:]...), nil
}

func (t *tx) UpdateRow(_ context.Context, c ledger.Category, r ledger.Row) error {
	if t.fault != nil {
		if err := t.fault("update", c, r); err != nil {
			return err
		}
	}
	rows := t.st.rows[r.Timeline(c)]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].LogID >= r.LogID })
	if i == len(rows) || rows[i].LogID != r.LogID {
		return fmt.Errorf("update %s log %d: %w", c, r.LogID, errs.ErrNotFound)
	}
	rows[i].Opening = r.Opening
	rows[i].Closing = r.Closing
	rows[i].Movement = r.Movement
	return nil
}

func (t *tx) SaveCorrection(_ context.Context, a ledger.CorrectionAudit) error {
	t.st.audits = append(t.st.audits, a)
	return nil
}

func (t *tx) SessionByIdempotencyKey(_ context.Context, key string) (int64, bool, error) {
	id, ok := t.st.idem[key]
	return id, ok, nil
}

func (t *tx) SaveIdempotencyKey(_ context.Context, key string, logID int64) error {
	if _, exists := t.st.idem[key]; exists {
		return fmt.Errorf("%w: idempotency key already used", errs.ErrConflict)
	}
	t.st.idem[key] = logID
	return nil
}

// Package ledger owns the ordered collection of income and expense entries.
//
// A Store is the single source of truth for entries and their totals. Every
// mutation rewrites the whole collection through the injected Persister;
// storage failures are returned as *PersistenceError warnings while the
// in-memory ledger stays authoritative.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	applog "ledger/internal/log"
)

type Store struct {
	mu       sync.Mutex
	entries  []core.Entry
	persist  Persister
	notifier Notifier
	now      func() time.Time
	newID    func() string
	logger   *applog.Logger
	events   *applog.StructuredLogger
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier registers a receiver for applied mutations.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock replaces time.Now for entry dates and change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithLogger sets the logger; the store tags it with the ledger component.
func WithLogger(logger *applog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns an empty store. A nil Persister keeps the ledger in memory only.
func NewStore(p Persister, opts ...Option) *Store {
	s := &Store{
		entries: []core.Entry{},
		persist: p,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentLedger)
	s.events = applog.NewStructuredLogger(s.logger)
	return s
}

// Load replaces the in-memory collection with the persisted one. An absent
// slot yields an empty ledger. An unreadable or corrupt slot also yields an
// empty ledger, and the cause is returned as a *PersistenceError.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []core.Entry{}
	if s.persist == nil {
		return nil
	}

	entries, err := s.persist.Load(ctx)
	if err == nil {
		err = checkCollection(entries)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Persisted ledger unreadable, starting empty",
			applog.NewFields().
				WithError(err).
				WithErrorType(applog.ErrorTypePersistence).
				WithOperation(applog.OpLoad).
				ToSlice()...)
		return &PersistenceError{Op: applog.OpLoad, Err: err}
	}

	s.entries = append(s.entries, entries...)
	s.logger.InfoContext(ctx, "Ledger loaded", applog.FieldCount, len(s.entries))
	return nil
}

// Create appends a new entry dated today. The returned error is either a
// *ValidationError (nothing changed) or a *PersistenceError (entry kept).
func (s *Store) Create(ctx context.Context, description, amount string, kind core.Kind) (core.Entry, error) {
	value, err := validateInput(description, amount, kind)
	if err != nil {
		return core.Entry{}, err
	}

	s.mu.Lock()
	e := core.Entry{
		ID:          s.nextID(),
		Description: description,
		Amount:      value,
		Kind:        kind,
		Date:        core.DateOf(s.now()),
	}
	s.entries = append(s.entries, e)
	change, err := s.commit(ctx, core.OpCreate, e)
	s.mu.Unlock()

	s.notify(ctx, change)
	return e, err
}

// Update replaces description, amount and kind of the entry with the given
// id, keeping its id, date and position.
func (s *Store) Update(ctx context.Context, id, description, amount string, kind core.Kind) (core.Entry, error) {
	value, err := validateInput(description, amount, kind)
	if err != nil {
		return core.Entry{}, err
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return core.Entry{}, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}

	e := s.entries[i]
	e.Description = description
	e.Amount = value
	e.Kind = kind
	s.entries[i] = e
	change, err := s.commit(ctx, core.OpUpdate, e)
	s.mu.Unlock()

	s.notify(ctx, change)
	return e, err
}

// Delete removes the entry with the given id. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}

	removed := s.entries[i]
	s.entries = slices.Delete(s.entries, i, i+1)
	change, err := s.commit(ctx, core.OpDelete, removed)
	s.mu.Unlock()

	s.notify(ctx, change)
	return err
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return core.Entry{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return s.entries[i], nil
}

// List returns a copy of the entries passing f, in insertion order.
func (s *Store) List(f core.Filter) []core.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.FilterEntries(s.entries, f)
}

// Totals recomputes income, expense and net from the current collection.
func (s *Store) Totals() core.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ComputeTotals(s.entries)
}

// Snapshot is a consistent read of a filtered listing together with the
// totals of the whole ledger.
type Snapshot struct {
	Filter  core.Filter
	Entries []core.Entry
	Totals  core.Totals
}

// Snapshot returns the entries passing f and the ledger totals, read under
// one lock.
func (s *Store) Snapshot(f core.Filter) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Filter:  f,
		Entries: core.FilterEntries(s.entries, f),
		Totals:  core.ComputeTotals(s.entries),
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// commit runs after an in-memory mutation: it rewrites the slot and returns
// the change to announce. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, op core.ChangeOp, e core.Entry) (core.EntryChange, error) {
	s.events.LogEntryChanged(ctx, string(op), e.ID, e.Kind.String(), core.FormatAmount(e.Amount), e.Date.String())
	change := core.EntryChange{Op: op, Entry: e, At: s.now()}

	if s.persist == nil {
		return change, nil
	}
	if err := s.persist.Save(ctx, slices.Clone(s.entries)); err != nil {
		s.logger.WarnContext(ctx, "Ledger not persisted, continuing in memory",
			applog.NewFields().
				WithEntry(e.ID, e.Kind.String(), core.FormatAmount(e.Amount), e.Date.String()).
				WithError(err).
				WithErrorType(applog.ErrorTypePersistence).
				WithOperation(applog.OpSave).
				ToSlice()...)
		return change, &PersistenceError{Op: applog.OpSave, Err: err}
	}
	return change, nil
}

// notify hands a committed change to the notifier. It runs without s.mu so
// a slow broker never stalls readers; consumers order changes by At.
func (s *Store) notify(ctx context.Context, change core.EntryChange) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EntryChanged(ctx, change); err != nil {
		// Don't fail the mutation - the ledger is already updated
		s.logger.WarnContext(ctx, "Failed to publish entry change",
			applog.FieldEntryID, change.Entry.ID,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err.Error())
	}
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(e core.Entry) bool { return e.ID == id })
}

// nextID draws ids until one is unused. Callers hold s.mu.
func (s *Store) nextID() string {
	for {
		id := s.newID()
		if id != "" && s.indexOf(id) < 0 {
			return id
		}
	}
}

func validateInput(description, amount string, kind core.Kind) (decimal.Decimal, error) {
	if err := core.ValidateDescription(description); err != nil {
		return decimal.Zero, &ValidationError{Field: "description", Err: err}
	}
	value, err := core.ParseAmount(amount)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Err: err}
	}
	if !kind.Valid() {
		return decimal.Zero, &ValidationError{Field: "kind", Err: core.ErrInvalidKind}
	}
	return value, nil
}

// checkCollection rejects a loaded collection that breaks entry invariants.
func checkCollection(entries []core.Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("entry %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

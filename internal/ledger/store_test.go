package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/storage/memory"
)

var fixedNow = time.Date(2025, 6, 14, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	changes []core.EntryChange
	err     error
}

func (n *recordingNotifier) EntryChanged(_ context.Context, c core.EntryChange) error {
	n.changes = append(n.changes, c)
	return n.err
}

// blockingNotifier parks every publish until release is closed.
type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func (n *blockingNotifier) EntryChanged(_ context.Context, _ core.EntryChange) error {
	n.entered <- struct{}{}
	<-n.release
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, p Persister, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
		WithLogger(applog.Discard()),
	}
	return NewStore(p, append(base, opts...)...)
}

func mustCreate(t *testing.T, s *Store, desc, amount string, kind core.Kind) core.Entry {
	t.Helper()
	e, err := s.Create(context.Background(), desc, amount, kind)
	if err != nil {
		t.Fatalf("create %q: %v", desc, err)
	}
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertTotals(t *testing.T, got core.Totals, income, expense, net string) {
	t.Helper()
	if !got.Income.Equal(dec(income)) || !got.Expense.Equal(dec(expense)) || !got.Net.Equal(dec(net)) {
		t.Fatalf("totals = {%s %s %s}, want {%s %s %s}", got.Income, got.Expense, got.Net, income, expense, net)
	}
}

func ids(entries []core.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestCreateUpdateDeleteScenario(t *testing.T) {
	slot := memory.New()
	s := newTestStore(t, slot)
	ctx := context.Background()

	salary := mustCreate(t, s, "Salary", "1000.00", core.Income)
	groceries := mustCreate(t, s, "Groceries", "45.50", core.Expense)

	assertTotals(t, s.Totals(), "1000.00", "45.50", "954.50")
	all := s.List(core.FilterAll)
	if len(all) != 2 || all[0].Description != "Salary" || all[1].Description != "Groceries" {
		t.Fatalf("unexpected listing: %+v", all)
	}

	updated, err := s.Update(ctx, groceries.ID, "Groceries", "50.00", core.Expense)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Date.String() != groceries.Date.String() || updated.ID != groceries.ID {
		t.Fatalf("update changed identity: %+v -> %+v", groceries, updated)
	}
	assertTotals(t, s.Totals(), "1000.00", "50.00", "950.00")

	if err := s.Delete(ctx, salary.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all = s.List(core.FilterAll)
	if len(all) != 1 || all[0].Description != "Groceries" {
		t.Fatalf("unexpected listing after delete: %+v", all)
	}
	if !s.Totals().Income.IsZero() {
		t.Fatalf("income = %s, want 0", s.Totals().Income)
	}
	if slot.Saves() != 4 {
		t.Fatalf("expected one full write per mutation, got %d", slot.Saves())
	}
}

func TestCreateAssignsIdentityAndDate(t *testing.T) {
	s := newTestStore(t, memory.New())

	e := mustCreate(t, s, "Coffee", "3,20", core.Expense)
	if e.ID != "id-1" {
		t.Errorf("id = %q", e.ID)
	}
	if e.Date.String() != "2025-06-14" {
		t.Errorf("date = %s", e.Date)
	}
	if e.Description != "Coffee" || e.Kind != core.Expense || !e.Amount.Equal(dec("3.20")) {
		t.Errorf("fields not preserved: %+v", e)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d", s.Len())
	}
}

func TestCreateSkipsCollidingIDs(t *testing.T) {
	gen := []string{"dup", "dup", "", "fresh"}
	i := 0
	s := newTestStore(t, nil, WithIDGenerator(func() string {
		id := gen[i]
		i++
		return id
	}))

	first := mustCreate(t, s, "a", "1", core.Income)
	second := mustCreate(t, s, "b", "1", core.Income)
	if first.ID != "dup" || second.ID != "fresh" {
		t.Fatalf("ids = %q, %q", first.ID, second.ID)
	}
}

func TestCreateValidation(t *testing.T) {
	slot := memory.New()
	n := &recordingNotifier{}
	s := newTestStore(t, slot, WithNotifier(n))

	cases := []struct {
		name, desc, amount string
		kind               core.Kind
		field              string
		want               error
	}{
		{"empty description", "", "1", core.Income, "description", core.ErrEmptyDescription},
		{"blank description", "   ", "1", core.Income, "description", core.ErrEmptyDescription},
		{"zero amount", "x", "0", core.Income, "amount", core.ErrInvalidAmount},
		{"negative amount", "x", "-5", core.Expense, "amount", core.ErrInvalidAmount},
		{"unparsable amount", "x", "ten", core.Expense, "amount", core.ErrInvalidAmount},
		{"bad kind", "x", "1", core.Kind("transfer"), "kind", core.ErrInvalidKind},
	}
	for _, tc := range cases {
		_, err := s.Create(context.Background(), tc.desc, tc.amount, tc.kind)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if ve.Field != tc.field || !errors.Is(err, tc.want) {
			t.Fatalf("%s: got field=%s err=%v", tc.name, ve.Field, err)
		}
		if IsPersistenceError(err) {
			t.Fatalf("%s: validation error reported as persistence error", tc.name)
		}
	}
	if s.Len() != 0 || slot.Saves() != 0 || len(n.changes) != 0 {
		t.Fatalf("rejected input changed state: len=%d saves=%d changes=%d", s.Len(), slot.Saves(), len(n.changes))
	}
}

func TestUpdateUnknownID(t *testing.T) {
	slot := memory.New()
	s := newTestStore(t, slot)
	mustCreate(t, s, "Salary", "10", core.Income)
	before := slot.Saves()

	_, err := s.Update(context.Background(), "missing", "x", "1", core.Expense)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.Len() != 1 || slot.Saves() != before {
		t.Fatalf("update on unknown id changed state")
	}
	assertTotals(t, s.Totals(), "10", "0", "10")
}

func TestUpdateValidationLeavesEntryUntouched(t *testing.T) {
	s := newTestStore(t, memory.New())
	e := mustCreate(t, s, "Salary", "10", core.Income)

	if _, err := s.Update(context.Background(), e.ID, "Salary", "abc", core.Income); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, err := s.Get(e.ID)
	if err != nil || !got.Amount.Equal(dec("10")) {
		t.Fatalf("entry modified by rejected update: %+v err=%v", got, err)
	}
}

func TestUpdateKeepsPosition(t *testing.T) {
	s := newTestStore(t, nil)
	a := mustCreate(t, s, "a", "1", core.Income)
	b := mustCreate(t, s, "b", "2", core.Expense)
	c := mustCreate(t, s, "c", "3", core.Income)

	if _, err := s.Update(context.Background(), b.ID, "b2", "20", core.Income); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := ids(s.List(core.FilterAll))
	want := []string{a.ID, b.ID, c.ID}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if l := s.List(core.FilterExpense); len(l) != 0 {
		t.Fatalf("kind change not reflected in filter: %v", ids(l))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	slot := memory.New()
	n := &recordingNotifier{}
	s := newTestStore(t, slot, WithNotifier(n))
	a := mustCreate(t, s, "a", "1", core.Income)
	mustCreate(t, s, "b", "2", core.Expense)

	ctx := context.Background()
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	once := ids(s.List(core.FilterAll))
	saves := slot.Saves()

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}
	if fmt.Sprint(ids(s.List(core.FilterAll))) != fmt.Sprint(once) {
		t.Fatalf("second delete changed state")
	}
	if slot.Saves() != saves {
		t.Fatalf("no-op delete wrote to storage")
	}
	if len(n.changes) != 3 || n.changes[2].Op != core.OpDelete || n.changes[2].Entry.ID != a.ID {
		t.Fatalf("unexpected change log: %+v", n.changes)
	}
}

func TestGetUnknownID(t *testing.T) {
	s := newTestStore(t, nil)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersPartitionLedger(t *testing.T) {
	s := newTestStore(t, nil)
	for i, kind := range []core.Kind{core.Income, core.Expense, core.Expense, core.Income, core.Expense} {
		mustCreate(t, s, fmt.Sprintf("e%d", i), "1.10", kind)
	}
	// Exercise filters in an arbitrary order first.
	s.List(core.FilterExpense)
	s.List(core.FilterIncome)

	all := s.List(core.FilterAll)
	if fmt.Sprint(ids(all)) != "[id-1 id-2 id-3 id-4 id-5]" {
		t.Fatalf("insertion order lost: %v", ids(all))
	}

	seen := map[string]int{}
	for _, e := range s.List(core.FilterIncome) {
		if e.Kind != core.Income {
			t.Fatalf("income filter returned %+v", e)
		}
		seen[e.ID]++
	}
	for _, e := range s.List(core.FilterExpense) {
		if e.Kind != core.Expense {
			t.Fatalf("expense filter returned %+v", e)
		}
		seen[e.ID]++
	}
	if len(seen) != len(all) {
		t.Fatalf("union of filters has %d entries, want %d", len(seen), len(all))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("entry %s appears in %d filters", id, n)
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	s := newTestStore(t, nil)
	mustCreate(t, s, "a", "1", core.Income)

	out := s.List(core.FilterAll)
	out[0].Description = "mutated"
	if got, _ := s.Get(out[0].ID); got.Description != "a" {
		t.Fatalf("List exposed internal state")
	}
}

func TestTotalsMatchFoldAfterMutations(t *testing.T) {
	s := newTestStore(t, memory.New())
	ctx := context.Background()

	var created []core.Entry
	amounts := []string{"12.34", "0.01", "999.99", "5", "7.77", "0.50"}
	for i, a := range amounts {
		kind := core.Income
		if i%2 == 1 {
			kind = core.Expense
		}
		created = append(created, mustCreate(t, s, "x", a, kind))
	}
	if _, err := s.Update(ctx, created[0].ID, "x", "1.11", core.Expense); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Delete(ctx, created[3].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got := s.Totals()
	want := core.ComputeTotals(s.List(core.FilterAll))
	if !got.Income.Equal(want.Income) || !got.Expense.Equal(want.Expense) || !got.Net.Equal(want.Net) {
		t.Fatalf("totals %+v drift from fold %+v", got, want)
	}
	if !got.Income.Sub(got.Expense).Equal(got.Net) {
		t.Fatalf("net != income - expense")
	}
	// income: 999.99 + 7.77; expense: 1.11 + 0.01 + 0.50
	assertTotals(t, got, "1007.76", "1.62", "1006.14")
}

func TestSnapshotCombinesFilterAndTotals(t *testing.T) {
	s := newTestStore(t, nil)
	mustCreate(t, s, "Salary", "100", core.Income)
	mustCreate(t, s, "Rent", "40", core.Expense)

	snap := s.Snapshot(core.FilterExpense)
	if snap.Filter != core.FilterExpense || len(snap.Entries) != 1 || snap.Entries[0].Description != "Rent" {
		t.Fatalf("unexpected snapshot entries: %+v", snap)
	}
	assertTotals(t, snap.Totals, "100", "40", "60")
}

func TestPersistenceRoundTrip(t *testing.T) {
	slot := memory.New()
	s := newTestStore(t, slot)
	mustCreate(t, s, "Salary", "1000.00", core.Income)
	mustCreate(t, s, "Groceries", "45.50", core.Expense)
	mustCreate(t, s, "Bonus", "0.99", core.Income)

	reloaded := newTestStore(t, slot)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	want, got := s.List(core.FilterAll), reloaded.List(core.FilterAll)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Description != want[i].Description ||
			got[i].Kind != want[i].Kind || !got[i].Amount.Equal(want[i].Amount) || got[i].Date.String() != want[i].Date.String() {
			t.Fatalf("entry %d: %+v != %+v", i, got[i], want[i])
		}
	}
}

func TestLoadAbsentSlot(t *testing.T) {
	s := newTestStore(t, memory.New())
	mustCreate(t, s, "before load", "1", core.Income)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	// The created entry was persisted, so it is loaded back.
	if s.Len() != 1 {
		t.Fatalf("len = %d", s.Len())
	}

	fresh := newTestStore(t, memory.New())
	if err := fresh.Load(context.Background()); err != nil || fresh.Len() != 0 {
		t.Fatalf("absent slot: len=%d err=%v", fresh.Len(), err)
	}
}

func TestLoadCorruptSlotFallsBackToEmpty(t *testing.T) {
	s := newTestStore(t, memory.NewWithPayload([]byte(`[{"id":"1","amount":"oops"}]`)))

	err := s.Load(context.Background())
	if !IsPersistenceError(err) {
		t.Fatalf("expected persistence warning, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("corrupt slot should load as empty, len=%d", s.Len())
	}
	// The store remains usable and the next write replaces the corrupt slot.
	mustCreate(t, s, "fresh start", "2", core.Expense)
	assertTotals(t, s.Totals(), "0", "2", "-2")
}

func TestLoadUnreadableSlot(t *testing.T) {
	slot := memory.New()
	slot.FailLoad(errors.New("disk gone"))
	s := newTestStore(t, slot)

	err := s.Load(context.Background())
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != applog.OpLoad {
		t.Fatalf("expected load PersistenceError, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestSaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	slot := memory.New()
	s := newTestStore(t, slot)
	ctx := context.Background()

	slot.FailSave(errors.New("quota exceeded"))
	e, err := s.Create(ctx, "Salary", "10", core.Income)
	if !IsPersistenceError(err) {
		t.Fatalf("expected persistence warning, got %v", err)
	}
	if e.ID == "" || s.Len() != 1 {
		t.Fatalf("mutation not applied in memory: %+v len=%d", e, s.Len())
	}

	if _, err := s.Update(ctx, e.ID, "Salary", "12", core.Income); !IsPersistenceError(err) {
		t.Fatalf("expected persistence warning on update, got %v", err)
	}
	assertTotals(t, s.Totals(), "12", "0", "12")

	// Storage recovers: the next write carries the whole collection.
	slot.FailSave(nil)
	mustCreate(t, s, "Rent", "5", core.Expense)

	reloaded := newTestStore(t, slot)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	assertTotals(t, reloaded.Totals(), "12", "5", "7")
}

func TestNotifierFailureDoesNotFailMutation(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker down")}
	s := newTestStore(t, nil, WithNotifier(n))

	e, err := s.Create(context.Background(), "Salary", "10", core.Income)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(n.changes) != 1 {
		t.Fatalf("changes = %d", len(n.changes))
	}
	c := n.changes[0]
	if c.Op != core.OpCreate || c.Entry.ID != e.ID || !c.At.Equal(fixedNow) {
		t.Fatalf("unexpected change: %+v", c)
	}
}

func TestOperationsBeforeLoadUseEmptyLedger(t *testing.T) {
	s := newTestStore(t, memory.New())
	if s.Len() != 0 || len(s.List(core.FilterAll)) != 0 {
		t.Fatal("expected empty ledger before load")
	}
	assertTotals(t, s.Totals(), "0", "0", "0")
}

func TestLongDescriptionsAreAccepted(t *testing.T) {
	slot := memory.New()
	s := newTestStore(t, slot)

	long := strings.Repeat("x", 1000)
	e := mustCreate(t, s, long, "1.00", core.Income)
	if e.Description != long {
		t.Fatalf("description truncated to %d chars", len(e.Description))
	}

	reloaded := newTestStore(t, slot)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := reloaded.Get(e.ID); got.Description != long {
		t.Fatal("long description lost on reload")
	}
}

func TestLoadKeepsLongDescriptionsFromBrowserSlot(t *testing.T) {
	payload := `[{"id":"1","description":"Salary","amount":1000,"type":"income","date":"2024-05-01"},` +
		`{"id":"2","description":"` + strings.Repeat("y", 201) + `","amount":5,"type":"expense","date":"2024-05-02"}]`
	slot := memory.NewWithPayload([]byte(payload))
	s := newTestStore(t, slot)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	// The next write must carry the loaded entries forward.
	mustCreate(t, s, "Coffee", "3", core.Expense)
	reloaded := newTestStore(t, slot)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := ids(reloaded.List(core.FilterAll)); len(got) != 3 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("ids after write = %v", got)
	}
	assertTotals(t, reloaded.Totals(), "1000", "8", "992")
}

func TestSlowNotifierDoesNotBlockReads(t *testing.T) {
	n := &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestStore(t, memory.New(), WithNotifier(n))

	created := make(chan error, 1)
	go func() {
		_, err := s.Create(context.Background(), "Salary", "10", core.Income)
		created <- err
	}()
	<-n.entered

	read := make(chan Snapshot, 1)
	go func() {
		read <- s.Snapshot(core.FilterAll)
	}()
	select {
	case snap := <-read:
		if len(snap.Entries) != 1 || !snap.Totals.Income.Equal(dec("10")) {
			t.Errorf("snapshot during publish = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Error("reads blocked while the notifier was publishing")
	}

	close(n.release)
	if err := <-created; err != nil {
		t.Fatalf("create: %v", err)
	}
}

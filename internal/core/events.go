package core

import "time"

const (
	OpCreate ChangeOp = "created"
	OpUpdate ChangeOp = "updated"
	OpDelete ChangeOp = "deleted"
)

// ChangeOp names the mutation that produced an EntryChange.
type ChangeOp string

// EntryChange describes one applied ledger mutation. For deletions Entry
// holds the removed entry as it was before removal.
type EntryChange struct {
	Op    ChangeOp
	Entry Entry
	At    time.Time
}

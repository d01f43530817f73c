// Package campaign implements campaign lifecycle management.
//
// The service layer owns the status state machine, recipient snapshots and
// the lifecycle ledger entries that go with each transition. Every status
// write is a compare-and-set against the expected prior status, so two
// callers racing for the same transition see exactly one winner; the loser
// gets a *ConflictError.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign

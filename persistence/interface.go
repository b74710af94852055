// persistence/interface.go
package persistence

import (
	"fmt"
)

// Database persists ledger state and settlement history. The in-memory
// ledger is authoritative at runtime; the database restores it across
// restarts and keeps audit rows for offline review.
type Database interface {
	// SaveAccount upserts one account's binary image. Nil data deletes
	// the row (account closed).
	SaveAccount(addr string, data []byte) error
	SaveBalance(addr string, balance uint64) error
	LoadLedger() (accounts map[string][]byte, balances map[string]uint64, err error)

	RecordSettlement(periodType, periodID string, winners []string, amounts []uint64, pool uint64) error
	RecordClaim(periodType, periodID, winner string, amount uint64) error

	Close() error
}

var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

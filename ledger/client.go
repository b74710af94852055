// Package ledger defines the client handle the router and settlement
// engine use to talk to an execution layer, plus an in-memory ledger that
// executes the fixed instruction surface of the game program.
package ledger

import (
	"context"
	"errors"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/pda"
	"github.com/voblegame/voble/period"
)

// Transport-level sentinels. The router normalizes these into the
// protocol taxonomy; nothing above the router sees them.
var (
	// ErrAlreadyProcessed: the ledger saw this transaction id before. A
	// duplicate submission racing a prior success looks exactly like
	// this, so it is ambiguous, not terminal.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrUnknownTransaction: confirmation asked about a signature the
	// ledger never recorded.
	ErrUnknownTransaction = errors.New("unknown transaction signature")

	// ErrNotFound: no account at the requested address.
	ErrNotFound = errors.New("account not found")
)

// Instruction is one call against the program's fixed instruction
// surface. Fields beyond Op are populated per operation kind.
type Instruction struct {
	Op         string
	Owner      keys.PublicKey
	PeriodType period.Type
	PeriodID   string
	Guess      string
	Username   string
	WordIndex  uint32
	Winner     keys.PublicKey
	Rank       uint8
	Amount     uint64
}

// Transaction is a signed instruction batch. ID deduplicates submissions;
// resubmitting the same ID yields ErrAlreadyProcessed.
type Transaction struct {
	ID           string
	FeePayer     keys.PublicKey
	Signer       keys.PublicKey
	Instructions []Instruction
}

// Client is a handle to one execution layer. Implementations are injected
// by the composing application; no package-level connection exists.
type Client interface {
	// Submit sends the transaction and returns its signature. The
	// signature is returned even when execution failed on-ledger; the
	// failure surfaces through Confirm.
	Submit(ctx context.Context, tx *Transaction) (string, error)

	// Confirm waits for the transaction's final status and returns its
	// execution error, if any.
	Confirm(ctx context.Context, sig string) error

	// Simulate dry-runs the transaction without mutating any state.
	Simulate(ctx context.Context, tx *Transaction) error

	// GetAccount returns the raw account bytes at addr.
	GetAccount(ctx context.Context, addr pda.Address) ([]byte, error)

	// Balance returns the funds held at addr.
	Balance(ctx context.Context, addr pda.Address) (uint64, error)
}

// AccountStore persists ledger state across restarts. The base layer
// writes through to it; the rollup keeps everything in memory.
type AccountStore interface {
	SaveAccount(addr string, data []byte) error
	SaveBalance(addr string, balance uint64) error
	LoadLedger() (accounts map[string][]byte, balances map[string]uint64, err error)
}

package protocol

import "errors"

// Error taxonomy. Everything the router or settlement engine reports is
// one of these, possibly wrapped with context. Raw transport errors never
// escape the router boundary.
var (
	// ErrPreconditionViolated is state-machine misuse. Never retried and
	// never submitted to the ledger.
	ErrPreconditionViolated = errors.New("precondition violated")

	// ErrSimulationFailed means the transaction would fail on-chain.
	ErrSimulationFailed = errors.New("transaction simulation failed")

	// ErrDuplicateSubmission is a duplicate that could not be resolved to
	// a success by polling the expected resulting state.
	ErrDuplicateSubmission = errors.New("duplicate submission unresolved")

	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")

	// ErrStalePeriodMismatch means the session is bound to a different
	// period than the request.
	ErrStalePeriodMismatch = errors.New("session bound to a different period")

	// Claim-path terminal errors.
	ErrEntitlementNotFound = errors.New("entitlement not found")
	ErrAlreadyClaimed      = errors.New("prize already claimed")
	ErrNonPositiveAmount   = errors.New("entitlement amount is not positive")

	// ErrAlreadyFinalized is a soft error: a repeated finalize call is a
	// legitimate retry, logged as a warning rather than treated as fatal.
	ErrAlreadyFinalized = errors.New("already finalized")

	ErrGamePaused = errors.New("game is paused")
)

package protocol

// Operation kinds understood by the ledger program. The router uses these
// to pick an execution layer and a fee payer.
const (
	OpInitializeProfile     = "initialize-profile"
	OpInitializeSession     = "initialize-session"
	OpBuyTicket             = "buy-ticket-and-start-game"
	OpDelegateSession       = "delegate-session"
	OpSubmitGuess           = "submit-guess"
	OpCompleteGame          = "complete-game"
	OpUndelegateSession     = "undelegate-session"
	OpResetSession          = "reset-session"
	OpInitializeLeaderboard = "initialize-period-leaderboard"
	OpFinalizeLeaderboard   = "finalize-leaderboard"
	OpFinalizePeriod        = "finalize-period"
	OpCreateEntitlement     = "create-winner-entitlement"
	OpClaimPrize            = "claim-prize"
)

// Result is what crosses the UI boundary. Failures carry a message, never
// a raw transport error.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func Success(msg string) Result {
	return Result{OK: true, Message: msg}
}

func Failure(err error) Result {
	if err == nil {
		return Result{OK: true}
	}
	return Result{OK: false, Message: err.Error()}
}

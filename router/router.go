// Package router sends program instructions to the right execution layer
// and turns transport-level failures into the protocol error taxonomy.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/ledger"
	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/monitor"
	"github.com/voblegame/voble/protocol"
)

// Layer names an execution layer.
type Layer int

const (
	LayerBase Layer = iota
	LayerRollup
)

func (l Layer) String() string {
	if l == LayerRollup {
		return "rollup"
	}
	return "base"
}

// Route maps an operation to the layer it must execute on. The mapping is
// static: gameplay hot-path operations run on the rollup, everything that
// moves funds or settles periods runs on the base layer. Reset enters
// through the rollup too; the rollup forwards it to the base layer when
// it does not hold the session.
func Route(op string) Layer {
	switch op {
	case protocol.OpSubmitGuess,
		protocol.OpCompleteGame,
		protocol.OpDelegateSession,
		protocol.OpUndelegateSession,
		protocol.OpResetSession:
		return LayerRollup
	}
	return LayerBase
}

// Expectation checks whether the effect of an instruction is visible in
// ledger state. The router polls it to disambiguate duplicate
// submissions and confirmation timeouts.
type Expectation func(ctx context.Context, c ledger.Client) (bool, error)

// RetryPolicy bounds the expectation polling loop.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

type Router struct {
	base           ledger.Client
	rollup         ledger.Client
	payers         *keys.FeePayerCache
	confirmTimeout time.Duration
	retry          RetryPolicy
	mon            *monitor.Monitor
}

func New(base, rollup ledger.Client, confirmTimeout time.Duration, retry RetryPolicy, mon *monitor.Monitor) *Router {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 200 * time.Millisecond
	}
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Second
	}
	return &Router{
		base:           base,
		rollup:         rollup,
		payers:         keys.NewFeePayerCache(),
		confirmTimeout: confirmTimeout,
		retry:          retry,
		mon:            mon,
	}
}

// Client returns the handle for the given layer. Callers use it for state
// reads; all writes go through Execute.
func (r *Router) Client(l Layer) ledger.Client {
	if l == LayerRollup {
		return r.rollup
	}
	return r.base
}

// Execute routes one instruction signed by signer. Rollup transactions
// are paid by a derived fee payer so the player's wallet never spends on
// the hot path; base transactions are paid by the signer itself and
// simulated before submission.
//
// expect, when non-nil, lets the router resolve ambiguous outcomes by
// reading state: a duplicate-submission response or a confirmation
// timeout is treated as success once the expected effect is visible.
func (r *Router) Execute(ctx context.Context, signer keys.PublicKey, ins ledger.Instruction, expect Expectation) error {
	layer := Route(ins.Op)
	client := r.Client(layer)

	feePayer := signer
	if layer == LayerRollup {
		feePayer = r.payers.For(signer).Public
	}

	tx := &ledger.Transaction{
		ID:           uuid.New().String(),
		FeePayer:     feePayer,
		Signer:       signer,
		Instructions: []ledger.Instruction{ins},
	}

	start := time.Now()
	err := r.execute(ctx, layer, client, tx, expect)
	if r.mon != nil {
		r.mon.IncTransactionsRouted(ins.Op, layer.String())
		r.mon.ObserveRouteLatency(layer.String(), time.Since(start))
		if err != nil {
			r.mon.IncTransactionFailures(ins.Op)
		}
	}
	return err
}

func (r *Router) execute(ctx context.Context, layer Layer, client ledger.Client, tx *ledger.Transaction, expect Expectation) error {
	op := tx.Instructions[0].Op

	if layer == LayerBase {
		if err := client.Simulate(ctx, tx); err != nil {
			logger.Log.Debugw("Simulation rejected transaction", "op", op, "error", err)
			return errors.Join(protocol.ErrSimulationFailed, err)
		}
	}

	sig, err := client.Submit(ctx, tx)
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyProcessed) {
			return r.resolveAmbiguity(ctx, client, op, expect, protocol.ErrDuplicateSubmission)
		}
		return fmt.Errorf("submit %s: %w", op, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, r.confirmTimeout)
	defer cancel()
	err = client.Confirm(confirmCtx, sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		logger.Log.Warnw("Confirmation timed out, re-reading state", "op", op, "sig", sig)
		return r.resolveAmbiguity(ctx, client, op,
			expect, fmt.Errorf("confirm %s: %w", op, err))
	default:
		return err
	}
}

// resolveAmbiguity polls the expectation until the effect is visible or
// attempts run out, in which case the ambiguous verdict stands.
func (r *Router) resolveAmbiguity(ctx context.Context, client ledger.Client, op string, expect Expectation, verdict error) error {
	if expect == nil {
		return verdict
	}
	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		ok, err := expect(ctx, client)
		if err == nil && ok {
			logger.Log.Infow("Ambiguous outcome resolved as success", "op", op, "attempt", attempt+1)
			if r.mon != nil {
				r.mon.IncDuplicateResolutions()
			}
			return nil
		}
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			logger.Log.Warnw("Expectation check failed", "op", op, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retry.Backoff):
		}
	}
	return verdict
}

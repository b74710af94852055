// Package settle finalizes period competitions: it freezes the
// leaderboard, snapshots the vault, mints winner entitlements and
// processes prize claims.
package settle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/ledger"
	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/models"
	"github.com/voblegame/voble/monitor"
	"github.com/voblegame/voble/pda"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/protocol"
	"github.com/voblegame/voble/router"
)

// AuditLog receives settlement and claim records for offline bookkeeping.
// The ledger stays authoritative; audit rows are write-only history.
type AuditLog interface {
	RecordSettlement(periodType, periodID string, winners []string, amounts []uint64, pool uint64) error
	RecordClaim(periodType, periodID, winner string, amount uint64) error
}

// StandingsMirror publishes final standings to a read-optimized store.
type StandingsMirror interface {
	PublishStandings(ctx context.Context, t period.Type, id string, entries []models.LeaderEntry) error
}

// Notifier receives each freshly settled period, e.g. to push the result
// to connected players.
type Notifier func(*Report)

type Engine struct {
	router    *router.Router
	authority keys.Keypair
	splits    [models.TopWinnersCount]uint16
	periods   *period.Generator
	mon       *monitor.Monitor
	audit     AuditLog
	mirror    StandingsMirror
	notify    Notifier

	// claimMu serializes claims per (period, winner) so a double claim
	// resolves deterministically instead of racing.
	mu      sync.Mutex
	claimMu map[string]*sync.Mutex
}

func NewEngine(r *router.Router, authority keys.Keypair, splits [models.TopWinnersCount]uint16, periods *period.Generator, mon *monitor.Monitor) *Engine {
	return &Engine{
		router:    r,
		authority: authority,
		splits:    splits,
		periods:   periods,
		mon:       mon,
		claimMu:   make(map[string]*sync.Mutex),
	}
}

func (e *Engine) SetAuditLog(a AuditLog)               { e.audit = a }
func (e *Engine) SetStandingsMirror(m StandingsMirror) { e.mirror = m }
func (e *Engine) SetNotifier(n Notifier)               { e.notify = n }

// EnsureLeaderboard creates the leaderboard for a period if it does not
// exist yet. Safe to call repeatedly.
func (e *Engine) EnsureLeaderboard(ctx context.Context, t period.Type, id string) error {
	addr, _ := pda.Leaderboard(t, id)
	err := e.router.Execute(ctx, e.authority.Public, ledger.Instruction{
		Op:         protocol.OpInitializeLeaderboard,
		PeriodType: t,
		PeriodID:   id,
	}, existsExpectation(addr))
	if errors.Is(err, protocol.ErrAccountAlreadyExists) {
		return nil
	}
	return err
}

// Report summarizes one settlement run.
type Report struct {
	PeriodType        period.Type
	PeriodID          string
	TotalParticipants uint32
	PrizePool         uint64
	Winners           []keys.PublicKey
	Amounts           []uint64
	AlreadyFinalized  bool
}

// SettlePeriod runs the full settlement flow for one period. Every step
// is idempotent: rerunning a partially settled period finishes the
// remaining steps and reports AlreadyFinalized for the ones it skipped.
func (e *Engine) SettlePeriod(ctx context.Context, t period.Type, id string) (*Report, error) {
	if !period.Valid(t, id) {
		return nil, fmt.Errorf("%w: malformed period id %q", protocol.ErrPreconditionViolated, id)
	}
	report := &Report{PeriodType: t, PeriodID: id}

	err := e.router.Execute(ctx, e.authority.Public, ledger.Instruction{
		Op:         protocol.OpFinalizeLeaderboard,
		PeriodType: t,
		PeriodID:   id,
	}, nil)
	switch {
	case errors.Is(err, protocol.ErrAlreadyFinalized):
		logger.Log.Warnw("Leaderboard already finalized", "type", t, "period", id)
		report.AlreadyFinalized = true
	case err != nil:
		e.countRun(t, "error")
		return nil, fmt.Errorf("finalize leaderboard %s/%s: %w", t, id, err)
	}

	err = e.router.Execute(ctx, e.authority.Public, ledger.Instruction{
		Op:         protocol.OpFinalizePeriod,
		PeriodType: t,
		PeriodID:   id,
	}, nil)
	switch {
	case errors.Is(err, protocol.ErrAlreadyFinalized):
		logger.Log.Warnw("Period already finalized", "type", t, "period", id)
		report.AlreadyFinalized = true
	case err != nil:
		e.countRun(t, "error")
		return nil, fmt.Errorf("finalize period %s/%s: %w", t, id, err)
	}

	ps, err := e.readPeriodState(ctx, t, id)
	if err != nil {
		e.countRun(t, "error")
		return nil, err
	}
	report.TotalParticipants = ps.TotalParticipants
	report.PrizePool = ps.VaultBalanceAtFinalization
	report.Winners = ps.Winners

	amounts := Split(ps.VaultBalanceAtFinalization, e.splits)
	for rank := 1; rank <= len(ps.Winners) && rank <= models.TopWinnersCount; rank++ {
		amount := amounts[rank-1]
		if amount == 0 {
			logger.Log.Infow("Skipping zero-amount entitlement", "type", t, "period", id, "rank", rank)
			report.Amounts = append(report.Amounts, 0)
			continue
		}
		winner := ps.Winners[rank-1]
		err := e.router.Execute(ctx, e.authority.Public, ledger.Instruction{
			Op:         protocol.OpCreateEntitlement,
			PeriodType: t,
			PeriodID:   id,
			Winner:     winner,
			Rank:       uint8(rank),
			Amount:     amount,
		}, e.entitlementExpectation(winner, t, id))
		if err != nil && !errors.Is(err, protocol.ErrAccountAlreadyExists) {
			e.countRun(t, "error")
			return nil, fmt.Errorf("create entitlement rank %d for %s/%s: %w", rank, t, id, err)
		}
		report.Amounts = append(report.Amounts, amount)
	}

	e.recordSettlement(report)
	e.publishStandings(ctx, t, id)
	if e.notify != nil && !report.AlreadyFinalized {
		e.notify(report)
	}
	e.countRun(t, "ok")
	return report, nil
}

// Claim cashes out one winner's entitlement. Concurrent claims for the
// same entitlement serialize here and the loser gets ErrAlreadyClaimed.
func (e *Engine) Claim(ctx context.Context, winner keys.PublicKey, t period.Type, id string) (uint64, error) {
	mu := e.claimLock(t, id, winner)
	mu.Lock()
	defer mu.Unlock()

	ent, err := e.readEntitlement(ctx, winner, t, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return 0, protocol.ErrEntitlementNotFound
	}
	if err != nil {
		return 0, err
	}
	if ent.Claimed {
		return 0, protocol.ErrAlreadyClaimed
	}

	err = e.router.Execute(ctx, winner, ledger.Instruction{
		Op:         protocol.OpClaimPrize,
		Owner:      winner,
		PeriodType: t,
		PeriodID:   id,
	}, e.claimedExpectation(winner, t, id))
	if err != nil {
		return 0, err
	}

	if e.mon != nil {
		e.mon.IncPrizesClaimed()
	}
	if e.audit != nil {
		if aerr := e.audit.RecordClaim(t.String(), id, winner.String(), ent.Amount); aerr != nil {
			logger.Log.Warnw("Claim audit write failed", "error", aerr)
		}
	}
	return ent.Amount, nil
}

func (e *Engine) claimLock(t period.Type, id string, winner keys.PublicKey) *sync.Mutex {
	key := fmt.Sprintf("%s/%s/%s", t, id, winner)
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.claimMu[key]
	if !ok {
		mu = &sync.Mutex{}
		e.claimMu[key] = mu
	}
	return mu
}

func (e *Engine) readPeriodState(ctx context.Context, t period.Type, id string) (*models.PeriodState, error) {
	addr, _ := pda.PeriodState(t, id)
	data, err := e.router.Client(router.LayerBase).GetAccount(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("read period state %s/%s: %w", t, id, err)
	}
	var ps models.PeriodState
	if err := ps.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &ps, nil
}

func (e *Engine) readEntitlement(ctx context.Context, winner keys.PublicKey, t period.Type, id string) (*models.WinnerEntitlement, error) {
	addr, _ := pda.WinnerEntitlement(winner, t, id)
	data, err := e.router.Client(router.LayerBase).GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	var ent models.WinnerEntitlement
	if err := ent.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &ent, nil
}

func existsExpectation(addr pda.Address) router.Expectation {
	return func(ctx context.Context, c ledger.Client) (bool, error) {
		_, err := c.GetAccount(ctx, addr)
		if errors.Is(err, ledger.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

func (e *Engine) entitlementExpectation(winner keys.PublicKey, t period.Type, id string) router.Expectation {
	addr, _ := pda.WinnerEntitlement(winner, t, id)
	return existsExpectation(addr)
}

func (e *Engine) claimedExpectation(winner keys.PublicKey, t period.Type, id string) router.Expectation {
	return func(ctx context.Context, c ledger.Client) (bool, error) {
		ent, err := e.readEntitlement(ctx, winner, t, id)
		if err != nil {
			return false, err
		}
		return ent.Claimed, nil
	}
}

func (e *Engine) recordSettlement(report *Report) {
	if e.audit == nil {
		return
	}
	winners := make([]string, len(report.Winners))
	for i, w := range report.Winners {
		winners[i] = w.String()
	}
	if err := e.audit.RecordSettlement(report.PeriodType.String(), report.PeriodID, winners, report.Amounts, report.PrizePool); err != nil {
		logger.Log.Warnw("Settlement audit write failed", "error", err)
	}
}

func (e *Engine) publishStandings(ctx context.Context, t period.Type, id string) {
	if e.mirror == nil {
		return
	}
	addr, _ := pda.Leaderboard(t, id)
	data, err := e.router.Client(router.LayerBase).GetAccount(ctx, addr)
	if err != nil {
		return
	}
	var lb models.PeriodLeaderboard
	if err := lb.UnmarshalBinary(data); err != nil {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.mirror.PublishStandings(mctx, t, id, lb.Entries); err != nil {
		logger.Log.Warnw("Standings mirror publish failed", "type", t, "period", id, "error", err)
	}
}

func (e *Engine) countRun(t period.Type, outcome string) {
	if e.mon != nil {
		e.mon.IncSettlementRuns(t.String(), outcome)
	}
}

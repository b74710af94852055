// Package game drives one player's session lifecycle: profile creation,
// ticket purchase, delegated play on the rollup and the settle-back to
// the base layer after a finished game.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

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

// State is the gateway-side view of a player's session lifecycle. It is a
// cache of ledger truth, never a substitute: Refresh re-derives it from
// the authoritative session account.
type State uint8

const (
	// StateAbsent: no profile or session account exists yet.
	StateAbsent State = iota
	// StateIdle: accounts exist, no game in progress.
	StateIdle
	// StatePlaying: ticket bought, session delegated, guesses open.
	StatePlaying
	// StateCompleted: the game finished but stats are not committed.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Service creates players and owns the shared plumbing.
type Service struct {
	router  *router.Router
	periods *period.Generator
	mon     *monitor.Monitor
}

func NewService(r *router.Router, periods *period.Generator, mon *monitor.Monitor) *Service {
	return &Service{router: r, periods: periods, mon: mon}
}

// Player is the session handle for one wallet. Methods are safe for
// concurrent use; each call that would be illegal in the current state
// fails with ErrPreconditionViolated before any transaction is sent.
type Player struct {
	svc    *Service
	wallet keys.PublicKey

	mu    sync.Mutex
	state State
}

func (s *Service) NewPlayer(wallet keys.PublicKey) *Player {
	return &Player{svc: s, wallet: wallet, state: StateAbsent}
}

func (p *Player) Wallet() keys.PublicKey { return p.wallet }

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Refresh re-derives the lifecycle state from the base-layer session
// account. Called on reconnect and whenever the cached state is suspect.
func (p *Player) Refresh(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sess, err := p.readSession(ctx, router.LayerBase)
	if errors.Is(err, ledger.ErrNotFound) {
		p.state = StateAbsent
		return p.state, nil
	}
	if err != nil {
		return p.state, err
	}
	if sess.Delegated {
		if rollupSess, rerr := p.readSession(ctx, router.LayerRollup); rerr == nil {
			sess = rollupSess
		}
	}
	p.state = stateFromSession(sess, p.svc.periods.Current(period.Daily))
	return p.state, nil
}

func stateFromSession(sess *models.Session, currentPeriod string) State {
	switch {
	case sess.StartedAt == 0 || sess.PeriodID != currentPeriod:
		return StateIdle
	case sess.Completed:
		return StateCompleted
	default:
		return StatePlaying
	}
}

// CreateProfile registers the wallet: profile account plus the session
// account that will be reused every period.
func (p *Player) CreateProfile(ctx context.Context, username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAbsent {
		return fmt.Errorf("%w: profile already created", protocol.ErrPreconditionViolated)
	}

	profileAddr, _ := pda.UserProfile(p.wallet)
	err := p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:       protocol.OpInitializeProfile,
		Owner:    p.wallet,
		Username: username,
	}, accountExists(profileAddr))
	if err != nil {
		return err
	}

	sessAddr, _ := pda.Session(p.wallet)
	err = p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:    protocol.OpInitializeSession,
		Owner: p.wallet,
	}, accountExists(sessAddr))
	if err != nil {
		return err
	}
	p.state = StateIdle
	return nil
}

// StartGame buys a ticket for the current daily period and delegates the
// session to the rollup. The purchase runs on the base layer and is
// simulated first, so an underfunded wallet fails before anything moves.
func (p *Player) StartGame(ctx context.Context, wordIndex uint32) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return "", fmt.Errorf("%w: cannot start a game while %s", protocol.ErrPreconditionViolated, p.state)
	}

	// A crash or failed settle-back can leave the session stranded on
	// the rollup from an earlier game. Return it home first; the ticket
	// purchase rejects delegated sessions.
	sess, err := p.readSession(ctx, router.LayerBase)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return "", err
	}
	if err == nil && sess.Delegated {
		if err := p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
			Op:    protocol.OpUndelegateSession,
			Owner: p.wallet,
		}, p.expectDelegated(false)); err != nil {
			return "", fmt.Errorf("recover stranded session: %w", err)
		}
	}

	periodID := p.svc.periods.Current(period.Daily)
	err = p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:        protocol.OpBuyTicket,
		Owner:     p.wallet,
		PeriodID:  periodID,
		WordIndex: wordIndex,
	}, p.expectSessionBound(periodID))
	if err != nil {
		return "", err
	}
	if p.svc.mon != nil {
		p.svc.mon.IncTicketsSold()
	}

	err = p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:    protocol.OpDelegateSession,
		Owner: p.wallet,
	}, p.expectDelegated(true))
	if err != nil {
		return "", err
	}
	p.state = StatePlaying
	return periodID, nil
}

// GuessOutcome is the feedback for one submitted guess plus the session
// summary after it landed.
type GuessOutcome struct {
	Result      [models.WordLength]models.LetterResult
	GuessesUsed uint8
	Solved      bool
	Completed   bool
	Score       uint32
	TargetWord  string
}

// Guess submits one guess to the rollup and reads back the evaluated
// session.
func (p *Player) Guess(ctx context.Context, word string) (*GuessOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return nil, fmt.Errorf("%w: no game in progress", protocol.ErrPreconditionViolated)
	}

	before, err := p.readSession(ctx, router.LayerRollup)
	if err != nil {
		return nil, err
	}
	periodID := before.PeriodID

	err = p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:       protocol.OpSubmitGuess,
		Owner:    p.wallet,
		PeriodID: periodID,
		Guess:    word,
	}, p.expectGuessCount(before.GuessesUsed+1))
	if err != nil {
		return nil, err
	}
	if p.svc.mon != nil {
		p.svc.mon.IncGuessesSubmitted()
	}

	after, err := p.readSession(ctx, router.LayerRollup)
	if err != nil {
		return nil, err
	}
	last := after.Guesses[len(after.Guesses)-1]
	out := &GuessOutcome{
		Result:      last.Result,
		GuessesUsed: after.GuessesUsed,
		Solved:      after.Solved,
		Completed:   after.Completed,
		Score:       after.Score,
	}
	if after.Completed {
		out.TargetWord = after.TargetWord
		p.state = StateCompleted
	}
	return out, nil
}

// Finish commits the completed game's stats to the base layer, then
// returns the session home and resets it for the next period. The
// undelegate and reset steps are best effort: a failure there leaves the
// stats committed and the next StartGame returns the session home before
// buying.
func (p *Player) Finish(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateCompleted {
		return fmt.Errorf("%w: no completed game to settle", protocol.ErrPreconditionViolated)
	}

	sess, err := p.readSession(ctx, router.LayerRollup)
	if errors.Is(err, ledger.ErrNotFound) {
		// Session already back on base, e.g. after a crash between the
		// commit and the reset on a previous attempt.
		sess, err = p.readSession(ctx, router.LayerBase)
	}
	if err != nil {
		return err
	}

	err = p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:       protocol.OpCompleteGame,
		Owner:    p.wallet,
		PeriodID: sess.PeriodID,
	}, p.expectStatsCommitted(sess.PeriodID))
	if err != nil {
		return err
	}
	if p.svc.mon != nil {
		p.svc.mon.IncGamesCompleted()
	}

	if err := p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:    protocol.OpUndelegateSession,
		Owner: p.wallet,
	}, p.expectDelegated(false)); err != nil {
		logger.Log.Warnw("Undelegate failed after stats commit", "player", p.wallet, "error", err)
		p.state = StateIdle
		return nil
	}

	if err := p.svc.router.Execute(ctx, p.wallet, ledger.Instruction{
		Op:    protocol.OpResetSession,
		Owner: p.wallet,
	}, nil); err != nil {
		logger.Log.Warnw("Session reset failed", "player", p.wallet, "error", err)
	}
	p.state = StateIdle
	return nil
}

// Profile reads the base-layer profile account.
func (p *Player) Profile(ctx context.Context) (*models.UserProfile, error) {
	addr, _ := pda.UserProfile(p.wallet)
	data, err := p.svc.router.Client(router.LayerBase).GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	var profile models.UserProfile
	if err := profile.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Leaderboard reads a period leaderboard from the base layer.
func (s *Service) Leaderboard(ctx context.Context, t period.Type, id string) (*models.PeriodLeaderboard, error) {
	addr, _ := pda.Leaderboard(t, id)
	data, err := s.router.Client(router.LayerBase).GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	var lb models.PeriodLeaderboard
	if err := lb.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &lb, nil
}

func (p *Player) readSession(ctx context.Context, l router.Layer) (*models.Session, error) {
	addr, _ := pda.Session(p.wallet)
	data, err := p.svc.router.Client(l).GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := sess.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &sess, nil
}

func accountExists(addr pda.Address) router.Expectation {
	return func(ctx context.Context, c ledger.Client) (bool, error) {
		_, err := c.GetAccount(ctx, addr)
		if errors.Is(err, ledger.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

func (p *Player) expectSessionBound(periodID string) router.Expectation {
	addr, _ := pda.Session(p.wallet)
	return func(ctx context.Context, c ledger.Client) (bool, error) {
		data, err := c.GetAccount(ctx, addr)
		if err != nil {
			return false, err
		}
		var sess models.Session
		if err := sess.UnmarshalBinary(data); err != nil {
			return false, err
		}
		return sess.PeriodID == periodID && sess.StartedAt > 0 && sess.GuessesUsed == 0, nil
	}
}

func (p *Player) expectDelegated(want bool) router.Expectation {
	addr, _ := pda.Session(p.wallet)
	return func(ctx context.Context, c ledger.Client) (bool, error) {
		data, err := c.GetAccount(ctx, addr)
		if err != nil {
			return false, err
		}
		var sess models.Session
		if err := sess.UnmarshalBinary(data); err != nil {
			return false, err
		}
		return sess.Delegated == want, nil
	}
}

func (p *Player) expectGuessCount(want uint8) router.Expectation {
	addr, _ := pda.Session(p.wallet)
	return func(ctx context.Context, c ledger.Client) (bool, error) {
		data, err := c.GetAccount(ctx, addr)
		if err != nil {
			return false, err
		}
		var sess models.Session
		if err := sess.UnmarshalBinary(data); err != nil {
			return false, err
		}
		return sess.GuessesUsed >= want, nil
	}
}

// expectStatsCommitted checks the base-layer profile because that is
// where complete-game lands its effect, regardless of which layer the
// instruction was sent to.
func (p *Player) expectStatsCommitted(periodID string) router.Expectation {
	addr, _ := pda.UserProfile(p.wallet)
	return func(ctx context.Context, _ ledger.Client) (bool, error) {
		data, err := p.svc.router.Client(router.LayerBase).GetAccount(ctx, addr)
		if err != nil {
			return false, err
		}
		var profile models.UserProfile
		if err := profile.UnmarshalBinary(data); err != nil {
			return false, err
		}
		return profile.LastPlayedPeriod == periodID, nil
	}
}

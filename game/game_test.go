package game

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/ledger"
	"github.com/voblegame/voble/models"
	"github.com/voblegame/voble/pda"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/protocol"
	"github.com/voblegame/voble/router"
)

const wordTemple = uint32(19) // TEMPLE

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

type harness struct {
	svc    *Service
	base   *ledger.Memory
	rollup *ledger.Memory
	clock  *fakeClock
	txSeq  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
	base := ledger.NewMemory(ledger.Base, clock.Now)
	rollup := ledger.NewMemory(ledger.Rollup, clock.Now)
	ledger.Pair(base, rollup)

	err := base.Genesis(models.GlobalConfig{
		Authority:     keys.DeriveSigner([]byte("harness-authority")).Public,
		TicketPrice:   1_000_000,
		SplitDaily:    4000,
		SplitWeekly:   2000,
		SplitMonthly:  1500,
		SplitPlatform: 1500,
		SplitLucky:    1000,
		WinnerSplits:  [3]uint16{5000, 3000, 2000},
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}

	r := router.New(base, rollup, time.Second, router.RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond}, nil)
	periods := period.NewGenerator(clock.Now)
	return &harness{
		svc:    NewService(r, periods, nil),
		base:   base,
		rollup: rollup,
		clock:  clock,
	}
}

func (h *harness) fundedPlayer(t *testing.T, name string) *Player {
	t.Helper()
	wallet := keys.DeriveSigner([]byte("wallet-" + name)).Public
	h.base.Fund(wallet, 10_000_000)
	p := h.svc.NewPlayer(wallet)
	if err := p.CreateProfile(context.Background(), name); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func (h *harness) initDailyBoard(t *testing.T) string {
	t.Helper()
	id := h.svc.periods.Current(period.Daily)
	h.txSeq++
	sig, err := h.base.Submit(context.Background(), &ledger.Transaction{
		ID:     fmt.Sprintf("board-%d", h.txSeq),
		Signer: keys.DeriveSigner([]byte("harness-authority")).Public,
		Instructions: []ledger.Instruction{
			{Op: protocol.OpInitializeLeaderboard, PeriodType: period.Daily, PeriodID: id},
		},
	})
	if err != nil {
		t.Fatalf("init board: %v", err)
	}
	if err := h.base.Confirm(context.Background(), sig); err != nil {
		t.Fatalf("init board: %v", err)
	}
	return id
}

func TestPlayerLifecycle(t *testing.T) {
	h := newHarness(t)
	boardID := h.initDailyBoard(t)
	p := h.fundedPlayer(t, "alice")
	ctx := context.Background()

	if p.State() != StateIdle {
		t.Fatalf("state after profile = %s", p.State())
	}

	periodID, err := p.StartGame(ctx, wordTemple)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if periodID != boardID {
		t.Fatalf("period = %s, want %s", periodID, boardID)
	}
	if p.State() != StatePlaying {
		t.Fatalf("state after start = %s", p.State())
	}

	out, err := p.Guess(ctx, "CASTLE")
	if err != nil {
		t.Fatalf("guess: %v", err)
	}
	if out.Completed || out.Solved || out.GuessesUsed != 1 {
		t.Fatalf("first guess outcome: %+v", out)
	}
	if out.TargetWord != "" {
		t.Fatal("target word must stay hidden while the game runs")
	}

	out, err = p.Guess(ctx, "TEMPLE")
	if err != nil {
		t.Fatalf("winning guess: %v", err)
	}
	if !out.Solved || !out.Completed || out.TargetWord != "TEMPLE" {
		t.Fatalf("winning outcome: %+v", out)
	}
	if out.Score != 1300 {
		t.Fatalf("score = %d, want 1300", out.Score)
	}
	if p.State() != StateCompleted {
		t.Fatalf("state after solve = %s", p.State())
	}

	if err := p.Finish(ctx); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if p.State() != StateIdle {
		t.Fatalf("state after finish = %s", p.State())
	}

	profile, err := p.Profile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.GamesWon != 1 || profile.LastPlayedPeriod != periodID {
		t.Fatalf("profile after finish: %+v", profile)
	}

	lb, err := h.svc.Leaderboard(ctx, period.Daily, boardID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Player != p.Wallet() {
		t.Fatalf("leaderboard entries: %+v", lb.Entries)
	}

	// The session is back on base, undelegated and cleared.
	addr, _ := pda.Session(p.Wallet())
	data, err := h.base.GetAccount(ctx, addr)
	if err != nil {
		t.Fatalf("base session: %v", err)
	}
	var sess models.Session
	if err := sess.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if sess.Delegated || sess.Completed || sess.PeriodID != "" {
		t.Fatalf("session not settled home: %+v", sess)
	}
}

func TestLifecycleGuards(t *testing.T) {
	h := newHarness(t)
	p := h.fundedPlayer(t, "alice")
	ctx := context.Background()

	if err := p.CreateProfile(ctx, "alice"); !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("second CreateProfile: err = %v", err)
	}
	if _, err := p.Guess(ctx, "TEMPLE"); !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("guess while idle: err = %v", err)
	}
	if err := p.Finish(ctx); !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("finish while idle: err = %v", err)
	}

	if _, err := p.StartGame(ctx, wordTemple); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if _, err := p.StartGame(ctx, wordTemple); !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("start while playing: err = %v", err)
	}
	if err := p.Finish(ctx); !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("finish while playing: err = %v", err)
	}
}

func TestStartGameInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	wallet := keys.DeriveSigner([]byte("wallet-broke")).Public
	p := h.svc.NewPlayer(wallet)
	ctx := context.Background()

	// Profile creation needs no funds.
	if err := p.CreateProfile(ctx, "broke_player"); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	_, err := p.StartGame(ctx, wordTemple)
	if !errors.Is(err, protocol.ErrSimulationFailed) {
		t.Fatalf("err = %v, want ErrSimulationFailed", err)
	}
	if !errors.Is(err, protocol.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds cause", err)
	}
	// The simulation caught it; nothing was spent or delegated.
	if p.State() != StateIdle {
		t.Fatalf("state = %s, want idle", p.State())
	}
}

func TestRefreshDerivesState(t *testing.T) {
	h := newHarness(t)
	h.initDailyBoard(t)
	p := h.fundedPlayer(t, "alice")
	ctx := context.Background()

	// An unknown wallet refreshes to absent.
	stranger := h.svc.NewPlayer(keys.DeriveSigner([]byte("wallet-stranger")).Public)
	if st, err := stranger.Refresh(ctx); err != nil || st != StateAbsent {
		t.Fatalf("stranger state = %s, %v", st, err)
	}

	if _, err := p.StartGame(ctx, wordTemple); err != nil {
		t.Fatalf("start game: %v", err)
	}

	// A second handle for the same wallet, e.g. after a reconnect,
	// re-derives the live state from the delegated session.
	reconnected := h.svc.NewPlayer(p.Wallet())
	if st, err := reconnected.Refresh(ctx); err != nil || st != StatePlaying {
		t.Fatalf("reconnected state = %s, %v", st, err)
	}

	if _, err := reconnected.Guess(ctx, "TEMPLE"); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if st, err := reconnected.Refresh(ctx); err != nil || st != StateCompleted {
		t.Fatalf("state after solve = %s, %v", st, err)
	}

	// Crossing a period boundary makes the stale session idle.
	h.clock.t = h.clock.t.AddDate(0, 0, 1)
	if st, err := reconnected.Refresh(ctx); err != nil || st != StateIdle {
		t.Fatalf("state after day rollover = %s, %v", st, err)
	}
}

// A gateway crash between the stats commit and the settle-back leaves the
// session delegated on the rollup. The next StartGame must return it home
// instead of letting the purchase fail forever.
func TestStartGameRecoversStrandedSession(t *testing.T) {
	h := newHarness(t)
	h.initDailyBoard(t)
	p := h.fundedPlayer(t, "alice")
	ctx := context.Background()

	periodID, err := p.StartGame(ctx, wordTemple)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if _, err := p.Guess(ctx, "TEMPLE"); err != nil {
		t.Fatalf("guess: %v", err)
	}

	// Commit the stats directly, skipping the undelegate and reset the
	// way a crash mid-Finish would.
	h.txSeq++
	sig, err := h.rollup.Submit(ctx, &ledger.Transaction{
		ID:     fmt.Sprintf("stranded-%d", h.txSeq),
		Signer: p.Wallet(),
		Instructions: []ledger.Instruction{
			{Op: protocol.OpCompleteGame, Owner: p.Wallet(), PeriodID: periodID},
		},
	})
	if err != nil {
		t.Fatalf("commit stats: %v", err)
	}
	if err := h.rollup.Confirm(ctx, sig); err != nil {
		t.Fatalf("commit stats: %v", err)
	}

	h.clock.t = h.clock.t.AddDate(0, 0, 1)
	reconnected := h.svc.NewPlayer(p.Wallet())
	if st, err := reconnected.Refresh(ctx); err != nil || st != StateIdle {
		t.Fatalf("state after rollover = %s, %v", st, err)
	}

	newPeriod, err := reconnected.StartGame(ctx, wordTemple)
	if err != nil {
		t.Fatalf("start after stranded delegation: %v", err)
	}
	if newPeriod == periodID {
		t.Fatalf("period = %s, want a fresh one", newPeriod)
	}
	if reconnected.State() != StatePlaying {
		t.Fatalf("state = %s, want playing", reconnected.State())
	}

	// The recovery moved the session home; the rollup copy the new
	// delegation created belongs to the fresh game.
	sess, err := reconnected.readSession(ctx, router.LayerRollup)
	if err != nil {
		t.Fatalf("rollup session: %v", err)
	}
	if sess.PeriodID != newPeriod || sess.GuessesUsed != 0 || sess.Completed {
		t.Fatalf("rollup session: %+v", sess)
	}
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/models"
	"github.com/voblegame/voble/pda"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/protocol"
)

const (
	ticketPrice = uint64(1_000_000)
	wordTemple  = uint32(19) // TEMPLE
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type testLedger struct {
	base      *Memory
	rollup    *Memory
	clock     *fakeClock
	authority keys.Keypair
	txSeq     int
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
	base := NewMemory(Base, clock.Now)
	rollup := NewMemory(Rollup, clock.Now)
	Pair(base, rollup)

	authority := keys.DeriveSigner([]byte("test-authority"))
	err := base.Genesis(models.GlobalConfig{
		Authority:     authority.Public,
		TicketPrice:   ticketPrice,
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
	return &testLedger{base: base, rollup: rollup, clock: clock, authority: authority}
}

func (l *testLedger) dailyID() string {
	return period.ID(period.Daily, l.clock.Now())
}

// exec submits one instruction and returns its execution error.
func (l *testLedger) exec(t *testing.T, m *Memory, signer keys.PublicKey, ins Instruction) error {
	t.Helper()
	l.txSeq++
	sig, err := m.Submit(context.Background(), &Transaction{
		ID:           fmt.Sprintf("tx-%d", l.txSeq),
		FeePayer:     signer,
		Signer:       signer,
		Instructions: []Instruction{ins},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return m.Confirm(context.Background(), sig)
}

func (l *testLedger) mustExec(t *testing.T, m *Memory, signer keys.PublicKey, ins Instruction) {
	t.Helper()
	if err := l.exec(t, m, signer, ins); err != nil {
		t.Fatalf("%s failed: %v", ins.Op, err)
	}
}

// enroll creates a funded player with profile and session accounts.
func (l *testLedger) enroll(t *testing.T, name string) keys.PublicKey {
	t.Helper()
	kp := keys.DeriveSigner([]byte("player-" + name))
	l.base.Fund(kp.Public, 10*ticketPrice)
	l.mustExec(t, l.base, kp.Public, Instruction{Op: protocol.OpInitializeProfile, Owner: kp.Public, Username: name})
	l.mustExec(t, l.base, kp.Public, Instruction{Op: protocol.OpInitializeSession, Owner: kp.Public})
	return kp.Public
}

func (l *testLedger) initBoards(t *testing.T) {
	t.Helper()
	for _, pt := range []period.Type{period.Daily, period.Weekly, period.Monthly} {
		l.mustExec(t, l.base, l.authority.Public, Instruction{
			Op:         protocol.OpInitializeLeaderboard,
			PeriodType: pt,
			PeriodID:   period.ID(pt, l.clock.Now()),
		})
	}
}

func (l *testLedger) session(t *testing.T, m *Memory, owner keys.PublicKey) *models.Session {
	t.Helper()
	addr, _ := pda.Session(owner)
	data, err := m.GetAccount(context.Background(), addr)
	if err != nil {
		t.Fatalf("read session: %v", err)
	}
	var sess models.Session
	if err := sess.UnmarshalBinary(data); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return &sess
}

func (l *testLedger) profile(t *testing.T, owner keys.PublicKey) *models.UserProfile {
	t.Helper()
	addr, _ := pda.UserProfile(owner)
	data, err := l.base.GetAccount(context.Background(), addr)
	if err != nil {
		t.Fatalf("read profile: %v", err)
	}
	var p models.UserProfile
	if err := p.UnmarshalBinary(data); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	return &p
}

func (l *testLedger) balance(t *testing.T, addr pda.Address) uint64 {
	t.Helper()
	bal, err := l.base.Balance(context.Background(), addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

// playGame buys a ticket, delegates and solves the word in the given
// number of guesses (wrong guesses first, then the solution).
func (l *testLedger) playGame(t *testing.T, player keys.PublicKey, guesses int) {
	t.Helper()
	l.mustExec(t, l.base, player, Instruction{
		Op: protocol.OpBuyTicket, Owner: player,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})
	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpDelegateSession, Owner: player})
	for i := 0; i < guesses-1; i++ {
		l.mustExec(t, l.rollup, player, Instruction{
			Op: protocol.OpSubmitGuess, Owner: player,
			PeriodID: l.dailyID(), Guess: "CASTLE",
		})
	}
	l.mustExec(t, l.rollup, player, Instruction{
		Op: protocol.OpSubmitGuess, Owner: player,
		PeriodID: l.dailyID(), Guess: "TEMPLE",
	})
	l.mustExec(t, l.rollup, player, Instruction{
		Op: protocol.OpCompleteGame, Owner: player, PeriodID: l.dailyID(),
	})
}

func TestInitializeProfileRejectsDuplicate(t *testing.T) {
	l := newTestLedger(t)
	player := l.enroll(t, "alice")

	err := l.exec(t, l.base, player, Instruction{
		Op: protocol.OpInitializeProfile, Owner: player, Username: "alice",
	})
	if !errors.Is(err, protocol.ErrAccountAlreadyExists) {
		t.Fatalf("err = %v, want ErrAccountAlreadyExists", err)
	}
}

func TestBuyTicketSplitsFunds(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")

	l.mustExec(t, l.base, player, Instruction{
		Op: protocol.OpBuyTicket, Owner: player,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})

	if got := l.balance(t, pda.FromPublicKey(player)); got != 9*ticketPrice {
		t.Errorf("wallet = %d, want %d", got, 9*ticketPrice)
	}

	daily, _ := pda.Vault(period.Daily)
	weekly, _ := pda.Vault(period.Weekly)
	monthly, _ := pda.Vault(period.Monthly)
	lucky, _ := pda.LuckyDrawVault()
	platform, _ := pda.PlatformVault()

	shares := []struct {
		name string
		addr pda.Address
		want uint64
	}{
		{"daily", daily, 400_000},
		{"weekly", weekly, 200_000},
		{"monthly", monthly, 150_000},
		{"lucky", lucky, 100_000},
		{"platform", platform, 150_000},
	}
	var total uint64
	for _, s := range shares {
		got := l.balance(t, s.addr)
		if got != s.want {
			t.Errorf("%s vault = %d, want %d", s.name, got, s.want)
		}
		total += got
	}
	if total != ticketPrice {
		t.Errorf("vault shares sum to %d, want exactly %d", total, ticketPrice)
	}

	// Session bound to the period with a hidden word commitment.
	sess := l.session(t, l.base, player)
	if sess.PeriodID != l.dailyID() || sess.TargetWord != "" {
		t.Fatalf("session not bound correctly: %+v", sess)
	}
	if sess.TargetWordHash != models.WordHash("TEMPLE") {
		t.Fatal("target word commitment mismatch")
	}
}

func TestBuyTicketInsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	kp := keys.DeriveSigner([]byte("player-poor"))
	l.mustExec(t, l.base, kp.Public, Instruction{Op: protocol.OpInitializeProfile, Owner: kp.Public, Username: "poor_player"})
	l.mustExec(t, l.base, kp.Public, Instruction{Op: protocol.OpInitializeSession, Owner: kp.Public})

	err := l.exec(t, l.base, kp.Public, Instruction{
		Op: protocol.OpBuyTicket, Owner: kp.Public,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})
	if !errors.Is(err, protocol.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestBuyTicketWhilePaused(t *testing.T) {
	l := newTestLedger(t)
	player := l.enroll(t, "alice")

	// Flip the pause flag in place.
	addr, _ := pda.GlobalConfig()
	data, _ := l.base.GetAccount(context.Background(), addr)
	var cfg models.GlobalConfig
	if err := cfg.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	cfg.Paused = true
	if err := l.base.Genesis(cfg); err != nil {
		t.Fatal(err)
	}

	err := l.exec(t, l.base, player, Instruction{
		Op: protocol.OpBuyTicket, Owner: player,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})
	if !errors.Is(err, protocol.ErrGamePaused) {
		t.Fatalf("err = %v, want ErrGamePaused", err)
	}
}

func TestSolveScoresWithTimeBonus(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")

	l.mustExec(t, l.base, player, Instruction{
		Op: protocol.OpBuyTicket, Owner: player,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})
	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpDelegateSession, Owner: player})

	l.clock.Advance(20 * time.Second)
	l.mustExec(t, l.rollup, player, Instruction{
		Op: protocol.OpSubmitGuess, Owner: player,
		PeriodID: l.dailyID(), Guess: "CASTLE",
	})
	l.mustExec(t, l.rollup, player, Instruction{
		Op: protocol.OpSubmitGuess, Owner: player,
		PeriodID: l.dailyID(), Guess: "TEMPLE",
	})

	sess := l.session(t, l.rollup, player)
	if !sess.Solved || !sess.Completed {
		t.Fatalf("session should be solved and completed: %+v", sess)
	}
	if sess.TimeMs != 20_000 {
		t.Errorf("TimeMs = %d, want 20000", sess.TimeMs)
	}
	// 2 guesses = 800 base, 20s = 500 bonus.
	if sess.Score != 1300 {
		t.Errorf("Score = %d, want 1300", sess.Score)
	}
	if sess.TargetWord != "TEMPLE" {
		t.Error("target word should be revealed on completion")
	}
}

func TestGuessLimitEndsGame(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")

	l.mustExec(t, l.base, player, Instruction{
		Op: protocol.OpBuyTicket, Owner: player,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})
	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpDelegateSession, Owner: player})

	for i := 0; i < models.MaxGuesses; i++ {
		l.mustExec(t, l.rollup, player, Instruction{
			Op: protocol.OpSubmitGuess, Owner: player,
			PeriodID: l.dailyID(), Guess: "CASTLE",
		})
	}

	sess := l.session(t, l.rollup, player)
	if !sess.Completed || sess.Solved {
		t.Fatalf("session should be completed unsolved: %+v", sess)
	}
	if sess.Score != 0 {
		t.Errorf("unsolved score = %d, want 0", sess.Score)
	}

	err := l.exec(t, l.rollup, player, Instruction{
		Op: protocol.OpSubmitGuess, Owner: player,
		PeriodID: l.dailyID(), Guess: "TEMPLE",
	})
	if !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("guess after completion: err = %v, want ErrPreconditionViolated", err)
	}
}

func TestGuessRejectsStalePeriod(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")

	l.mustExec(t, l.base, player, Instruction{
		Op: protocol.OpBuyTicket, Owner: player,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})
	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpDelegateSession, Owner: player})

	err := l.exec(t, l.rollup, player, Instruction{
		Op: protocol.OpSubmitGuess, Owner: player,
		PeriodID: "2020-01-01", Guess: "TEMPLE",
	})
	if !errors.Is(err, protocol.ErrStalePeriodMismatch) {
		t.Fatalf("err = %v, want ErrStalePeriodMismatch", err)
	}
}

func TestGuessRejectsMalformedWord(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")

	l.mustExec(t, l.base, player, Instruction{
		Op: protocol.OpBuyTicket, Owner: player,
		PeriodID: l.dailyID(), WordIndex: wordTemple,
	})
	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpDelegateSession, Owner: player})

	for _, bad := range []string{"CAT", "TEMPLES", "TEMPL3"} {
		err := l.exec(t, l.rollup, player, Instruction{
			Op: protocol.OpSubmitGuess, Owner: player,
			PeriodID: l.dailyID(), Guess: bad,
		})
		if !errors.Is(err, protocol.ErrPreconditionViolated) {
			t.Errorf("guess %q: err = %v, want ErrPreconditionViolated", bad, err)
		}
	}
}

func TestCompleteGameCommitsStats(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")

	l.playGame(t, player, 2)

	p := l.profile(t, player)
	if p.TotalGamesPlayed != 1 || p.GamesWon != 1 || p.CurrentStreak != 1 {
		t.Fatalf("profile stats wrong: %+v", p)
	}
	if p.GuessDistribution[1] != 1 {
		t.Errorf("guess distribution: %v", p.GuessDistribution)
	}
	if p.LastPlayedPeriod != l.dailyID() {
		t.Errorf("LastPlayedPeriod = %q", p.LastPlayedPeriod)
	}

	got := make(map[uint8]bool)
	for _, a := range p.Achievements {
		got[a.ID] = true
	}
	for _, want := range []uint8{models.AchievementFirstGame, models.AchievementFirstWin, models.AchievementLuckyGuess} {
		if !got[want] {
			t.Errorf("achievement %d not unlocked; have %v", want, p.Achievements)
		}
	}

	// The leaderboard entry lands on the base layer.
	addr, _ := pda.Leaderboard(period.Daily, l.dailyID())
	data, err := l.base.GetAccount(context.Background(), addr)
	if err != nil {
		t.Fatalf("read leaderboard: %v", err)
	}
	var lb models.PeriodLeaderboard
	if err := lb.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Player != player {
		t.Fatalf("leaderboard entries: %+v", lb.Entries)
	}
	if lb.Entries[0].Username != "alice" {
		t.Errorf("entry username = %q", lb.Entries[0].Username)
	}

	// Committing the same game twice is rejected.
	err = l.exec(t, l.rollup, player, Instruction{
		Op: protocol.OpCompleteGame, Owner: player, PeriodID: l.dailyID(),
	})
	if !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("double commit: err = %v, want ErrPreconditionViolated", err)
	}
}

func TestUndelegateReturnsSessionToBase(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")
	l.playGame(t, player, 2)

	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpUndelegateSession, Owner: player})

	sess := l.session(t, l.base, player)
	if sess.Delegated {
		t.Fatal("base session should not be delegated after undelegate")
	}
	if !sess.Completed {
		t.Fatal("undelegate must preserve the completed play state")
	}

	addr, _ := pda.Session(player)
	if _, err := l.rollup.GetAccount(context.Background(), addr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rollup copy should be gone, err = %v", err)
	}

	// Reset clears play state for the next period.
	l.mustExec(t, l.base, player, Instruction{Op: protocol.OpResetSession, Owner: player})
	sess = l.session(t, l.base, player)
	if sess.Completed || sess.GuessesUsed != 0 || sess.PeriodID != "" {
		t.Fatalf("session not reset: %+v", sess)
	}
}

func TestResetFollowsSessionOwnership(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")
	l.playGame(t, player, 2)

	// While delegated the rollup owns the copy and resets it in place.
	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpResetSession, Owner: player})
	sess := l.session(t, l.rollup, player)
	if sess.Completed || sess.GuessesUsed != 0 || !sess.Delegated {
		t.Fatalf("rollup reset: %+v", sess)
	}
	if !l.session(t, l.base, player).Delegated {
		t.Fatal("base copy must keep the delegation flag")
	}

	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpUndelegateSession, Owner: player})

	// After undelegation the rollup no longer holds the session, so a
	// reset sent to it lands on the base layer.
	l.mustExec(t, l.rollup, player, Instruction{Op: protocol.OpResetSession, Owner: player})
	sess = l.session(t, l.base, player)
	if sess.Delegated || sess.Completed || sess.PeriodID != "" {
		t.Fatalf("forwarded reset: %+v", sess)
	}
}

func TestDelegateRejectedOnPairedBase(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")

	err := l.exec(t, l.base, player, Instruction{Op: protocol.OpDelegateSession, Owner: player})
	if !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("direct base delegate: err = %v, want ErrPreconditionViolated", err)
	}
	if l.session(t, l.base, player).Delegated {
		t.Fatal("rejected delegate must not flag the session")
	}
}

func TestDelegateOnUnpairedInstance(t *testing.T) {
	m := NewMemory(Base, nil)
	player := keys.DeriveSigner([]byte("player-solo")).Public
	ctx := context.Background()

	submit := func(id string, ins Instruction) error {
		sig, err := m.Submit(ctx, &Transaction{ID: id, Signer: player, Instructions: []Instruction{ins}})
		if err != nil {
			t.Fatalf("submit %s: %v", ins.Op, err)
		}
		return m.Confirm(ctx, sig)
	}

	if err := submit("solo-1", Instruction{Op: protocol.OpInitializeSession, Owner: player}); err != nil {
		t.Fatalf("init session: %v", err)
	}
	if err := submit("solo-2", Instruction{Op: protocol.OpDelegateSession, Owner: player}); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if err := submit("solo-3", Instruction{Op: protocol.OpDelegateSession, Owner: player}); !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("double delegate: err = %v, want ErrPreconditionViolated", err)
	}
}

func TestSettlementFlow(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	dailyID := l.dailyID()

	alice := l.enroll(t, "alice")
	bob := l.enroll(t, "bob")
	l.playGame(t, alice, 2) // 800 + 500 = 1300
	l.playGame(t, bob, 4)   // 400 + 500 = 900

	auth := l.authority.Public

	// Only the authority may finalize.
	err := l.exec(t, l.base, alice, Instruction{
		Op: protocol.OpFinalizeLeaderboard, PeriodType: period.Daily, PeriodID: dailyID,
	})
	if !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("non-authority finalize: err = %v", err)
	}

	l.mustExec(t, l.base, auth, Instruction{
		Op: protocol.OpFinalizeLeaderboard, PeriodType: period.Daily, PeriodID: dailyID,
	})
	err = l.exec(t, l.base, auth, Instruction{
		Op: protocol.OpFinalizeLeaderboard, PeriodType: period.Daily, PeriodID: dailyID,
	})
	if !errors.Is(err, protocol.ErrAlreadyFinalized) {
		t.Fatalf("second finalize: err = %v, want ErrAlreadyFinalized", err)
	}

	l.mustExec(t, l.base, auth, Instruction{
		Op: protocol.OpFinalizePeriod, PeriodType: period.Daily, PeriodID: dailyID,
	})
	err = l.exec(t, l.base, auth, Instruction{
		Op: protocol.OpFinalizePeriod, PeriodType: period.Daily, PeriodID: dailyID,
	})
	if !errors.Is(err, protocol.ErrAlreadyFinalized) {
		t.Fatalf("second period finalize: err = %v, want ErrAlreadyFinalized", err)
	}

	stateAddr, _ := pda.PeriodState(period.Daily, dailyID)
	data, err := l.base.GetAccount(context.Background(), stateAddr)
	if err != nil {
		t.Fatal(err)
	}
	var ps models.PeriodState
	if err := ps.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if len(ps.Winners) != 2 || ps.Winners[0] != alice || ps.Winners[1] != bob {
		t.Fatalf("winners = %v", ps.Winners)
	}
	// Two tickets put 400k each into the daily vault.
	if ps.VaultBalanceAtFinalization != 800_000 {
		t.Fatalf("vault snapshot = %d", ps.VaultBalanceAtFinalization)
	}

	// Entitlement validation.
	err = l.exec(t, l.base, auth, Instruction{
		Op: protocol.OpCreateEntitlement, PeriodType: period.Daily, PeriodID: dailyID,
		Winner: bob, Rank: 1, Amount: 400_000,
	})
	if !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("wrong winner for rank: err = %v", err)
	}
	err = l.exec(t, l.base, auth, Instruction{
		Op: protocol.OpCreateEntitlement, PeriodType: period.Daily, PeriodID: dailyID,
		Winner: alice, Rank: 1, Amount: 0,
	})
	if !errors.Is(err, protocol.ErrNonPositiveAmount) {
		t.Fatalf("zero amount: err = %v", err)
	}

	l.mustExec(t, l.base, auth, Instruction{
		Op: protocol.OpCreateEntitlement, PeriodType: period.Daily, PeriodID: dailyID,
		Winner: alice, Rank: 1, Amount: 400_000,
	})
	err = l.exec(t, l.base, auth, Instruction{
		Op: protocol.OpCreateEntitlement, PeriodType: period.Daily, PeriodID: dailyID,
		Winner: alice, Rank: 1, Amount: 400_000,
	})
	if !errors.Is(err, protocol.ErrAccountAlreadyExists) {
		t.Fatalf("duplicate entitlement: err = %v, want ErrAccountAlreadyExists", err)
	}

	// Claim moves funds and flips the flag atomically.
	walletBefore := l.balance(t, pda.FromPublicKey(alice))
	dailyVault, _ := pda.Vault(period.Daily)
	vaultBefore := l.balance(t, dailyVault)

	l.mustExec(t, l.base, alice, Instruction{
		Op: protocol.OpClaimPrize, Owner: alice,
		PeriodType: period.Daily, PeriodID: dailyID,
	})
	if got := l.balance(t, pda.FromPublicKey(alice)); got != walletBefore+400_000 {
		t.Errorf("wallet after claim = %d, want %d", got, walletBefore+400_000)
	}
	if got := l.balance(t, dailyVault); got != vaultBefore-400_000 {
		t.Errorf("vault after claim = %d, want %d", got, vaultBefore-400_000)
	}

	err = l.exec(t, l.base, alice, Instruction{
		Op: protocol.OpClaimPrize, Owner: alice,
		PeriodType: period.Daily, PeriodID: dailyID,
	})
	if !errors.Is(err, protocol.ErrAlreadyClaimed) {
		t.Fatalf("double claim: err = %v, want ErrAlreadyClaimed", err)
	}

	err = l.exec(t, l.base, bob, Instruction{
		Op: protocol.OpClaimPrize, Owner: bob,
		PeriodType: period.Daily, PeriodID: dailyID,
	})
	if !errors.Is(err, protocol.ErrEntitlementNotFound) {
		t.Fatalf("claim without entitlement: err = %v, want ErrEntitlementNotFound", err)
	}
}

func TestFinalizePeriodRequiresFinalizedLeaderboard(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)

	err := l.exec(t, l.base, l.authority.Public, Instruction{
		Op: protocol.OpFinalizePeriod, PeriodType: period.Daily, PeriodID: l.dailyID(),
	})
	if !errors.Is(err, protocol.ErrPreconditionViolated) {
		t.Fatalf("err = %v, want ErrPreconditionViolated", err)
	}
}

func TestSubmitDeduplicatesByTransactionID(t *testing.T) {
	l := newTestLedger(t)
	player := keys.DeriveSigner([]byte("player-dup")).Public

	tx := &Transaction{
		ID:     "fixed-id",
		Signer: player,
		Instructions: []Instruction{
			{Op: protocol.OpInitializeProfile, Owner: player, Username: "dup_player"},
		},
	}
	if _, err := l.base.Submit(context.Background(), tx); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := l.base.Submit(context.Background(), tx); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("second submit: err = %v, want ErrAlreadyProcessed", err)
	}
	if err := l.base.Confirm(context.Background(), "no-such-sig"); !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("confirm unknown: err = %v, want ErrUnknownTransaction", err)
	}
}

func TestSimulateDoesNotMutate(t *testing.T) {
	l := newTestLedger(t)
	l.initBoards(t)
	player := l.enroll(t, "alice")
	before := l.balance(t, pda.FromPublicKey(player))

	err := l.base.Simulate(context.Background(), &Transaction{
		ID:     "sim-1",
		Signer: player,
		Instructions: []Instruction{
			{Op: protocol.OpBuyTicket, Owner: player, PeriodID: l.dailyID(), WordIndex: wordTemple},
		},
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if got := l.balance(t, pda.FromPublicKey(player)); got != before {
		t.Fatalf("simulation mutated balance: %d -> %d", before, got)
	}
	sess := l.session(t, l.base, player)
	if sess.PeriodID != "" {
		t.Fatal("simulation mutated the session account")
	}
}

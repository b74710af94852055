package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/models"
	"github.com/voblegame/voble/pda"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/protocol"
)

// Role distinguishes the durable base layer from the fast rollup layer.
type Role int

const (
	Base Role = iota
	Rollup
)

func (r Role) String() string {
	if r == Rollup {
		return "rollup"
	}
	return "base"
}

// Memory executes the program's instruction surface against an in-memory
// account map. A Base/Rollup pair linked with Pair moves session
// ownership between layers the way delegation does on-chain. The base
// instance optionally writes through to an AccountStore.
type Memory struct {
	role Role
	now  func() time.Time

	mu          sync.Mutex
	accounts    map[pda.Address][]byte
	balances    map[pda.Address]uint64
	status      map[string]error
	seen        map[string]string
	counterpart *Memory
	store       AccountStore
}

func NewMemory(role Role, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		role:     role,
		now:      now,
		accounts: make(map[pda.Address][]byte),
		balances: make(map[pda.Address]uint64),
		status:   make(map[string]error),
		seen:     make(map[string]string),
	}
}

// Pair links a base and rollup instance so delegation can move accounts
// between them.
func Pair(base, rollup *Memory) {
	base.counterpart = rollup
	rollup.counterpart = base
}

// SetStore enables write-through persistence and loads any previously
// saved state.
func (m *Memory) SetStore(s AccountStore) error {
	accounts, balances, err := s.LoadLedger()
	if err != nil {
		return fmt.Errorf("load ledger state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for addrHex, data := range accounts {
		addr, err := parseAddress(addrHex)
		if err != nil {
			return err
		}
		m.accounts[addr] = data
	}
	for addrHex, bal := range balances {
		addr, err := parseAddress(addrHex)
		if err != nil {
			return err
		}
		m.balances[addr] = bal
	}
	m.store = s
	return nil
}

func parseAddress(hexStr string) (pda.Address, error) {
	var addr pda.Address
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != len(addr) {
		return addr, fmt.Errorf("malformed stored address %q", hexStr)
	}
	copy(addr[:], raw)
	return addr, nil
}

// Genesis writes the global config and makes sure every vault account
// exists. Called once by the operator when bootstrapping a deployment.
func (m *Memory) Genesis(cfg models.GlobalConfig) error {
	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, _ := pda.GlobalConfig()
	m.putAccount(addr, data)
	for _, t := range []period.Type{period.Daily, period.Weekly, period.Monthly} {
		vault, _ := pda.Vault(t)
		m.ensureBalance(vault)
	}
	platform, _ := pda.PlatformVault()
	m.ensureBalance(platform)
	lucky, _ := pda.LuckyDrawVault()
	m.ensureBalance(lucky)
	return nil
}

// Fund credits a wallet balance. Test and demo airdrop.
func (m *Memory) Fund(owner keys.PublicKey, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := pda.FromPublicKey(owner)
	m.balances[addr] += amount
	m.persistBalance(addr)
}

func (m *Memory) Submit(ctx context.Context, tx *Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.seen[tx.ID]; dup {
		return "", ErrAlreadyProcessed
	}
	sig := uuid.New().String()
	err := m.execute(tx)
	m.seen[tx.ID] = sig
	m.status[sig] = err
	return sig, nil
}

func (m *Memory) Confirm(ctx context.Context, sig string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	err, ok := m.status[sig]
	if !ok {
		return ErrUnknownTransaction
	}
	return err
}

// Simulate runs the transaction against a snapshot. Instructions that
// would reach the other layer cannot be simulated; the router only
// simulates base-layer operations, none of which cross layers.
func (m *Memory) Simulate(ctx context.Context, tx *Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	clone := &Memory{
		role:     m.role,
		now:      m.now,
		accounts: make(map[pda.Address][]byte, len(m.accounts)),
		balances: make(map[pda.Address]uint64, len(m.balances)),
		status:   make(map[string]error),
		seen:     make(map[string]string),
	}
	for k, v := range m.accounts {
		clone.accounts[k] = v
	}
	for k, v := range m.balances {
		clone.balances[k] = v
	}
	m.mu.Unlock()

	return clone.execute(tx)
}

func (m *Memory) GetAccount(ctx context.Context, addr pda.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.accounts[addr]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Balance(ctx context.Context, addr pda.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr], nil
}

// withLock runs fn with the instance lock held. Used by a rollup handler
// reaching into its base counterpart; the base never locks the rollup, so
// the lock order is acyclic.
func (m *Memory) withLock(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

func (m *Memory) putAccount(addr pda.Address, data []byte) {
	m.accounts[addr] = data
	if m.store != nil {
		if err := m.store.SaveAccount(addr.String(), data); err != nil {
			logger.Log.Warnf("Account write-through failed for %s: %v", addr, err)
		}
	}
}

func (m *Memory) deleteAccount(addr pda.Address) {
	delete(m.accounts, addr)
	if m.store != nil {
		if err := m.store.SaveAccount(addr.String(), nil); err != nil {
			logger.Log.Warnf("Account write-through failed for %s: %v", addr, err)
		}
	}
}

func (m *Memory) ensureBalance(addr pda.Address) {
	if _, ok := m.balances[addr]; !ok {
		m.balances[addr] = 0
		m.persistBalance(addr)
	}
}

func (m *Memory) persistBalance(addr pda.Address) {
	if m.store != nil {
		if err := m.store.SaveBalance(addr.String(), m.balances[addr]); err != nil {
			logger.Log.Warnf("Balance write-through failed for %s: %v", addr, err)
		}
	}
}

func (m *Memory) execute(tx *Transaction) error {
	for i := range tx.Instructions {
		if err := m.executeInstruction(tx, &tx.Instructions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) executeInstruction(tx *Transaction, ins *Instruction) error {
	switch ins.Op {
	case protocol.OpInitializeProfile:
		return m.initializeProfile(ins)
	case protocol.OpInitializeSession:
		return m.initializeSession(ins)
	case protocol.OpBuyTicket:
		return m.buyTicket(ins)
	case protocol.OpDelegateSession:
		return m.delegateSession(ins)
	case protocol.OpSubmitGuess:
		return m.submitGuess(ins)
	case protocol.OpCompleteGame:
		return m.completeGame(ins)
	case protocol.OpUndelegateSession:
		return m.undelegateSession(ins)
	case protocol.OpResetSession:
		return m.resetSession(ins)
	case protocol.OpInitializeLeaderboard:
		return m.initializeLeaderboard(ins)
	case protocol.OpFinalizeLeaderboard:
		return m.finalizeLeaderboard(tx, ins)
	case protocol.OpFinalizePeriod:
		return m.finalizePeriod(tx, ins)
	case protocol.OpCreateEntitlement:
		return m.createEntitlement(tx, ins)
	case protocol.OpClaimPrize:
		return m.claimPrize(ins)
	}
	return fmt.Errorf("%w: unknown operation %q", protocol.ErrPreconditionViolated, ins.Op)
}

func (m *Memory) loadConfig() (*models.GlobalConfig, error) {
	addr, _ := pda.GlobalConfig()
	data, ok := m.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: global config", protocol.ErrAccountNotFound)
	}
	var cfg models.GlobalConfig
	if err := cfg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *Memory) loadProfile(owner keys.PublicKey) (*models.UserProfile, pda.Address, error) {
	addr, _ := pda.UserProfile(owner)
	data, ok := m.accounts[addr]
	if !ok {
		return nil, addr, fmt.Errorf("%w: user profile", protocol.ErrAccountNotFound)
	}
	var p models.UserProfile
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, addr, err
	}
	return &p, addr, nil
}

func (m *Memory) loadSession(owner keys.PublicKey) (*models.Session, pda.Address, error) {
	addr, _ := pda.Session(owner)
	data, ok := m.accounts[addr]
	if !ok {
		return nil, addr, fmt.Errorf("%w: session", protocol.ErrAccountNotFound)
	}
	var s models.Session
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, addr, err
	}
	return &s, addr, nil
}

func (m *Memory) loadLeaderboard(t period.Type, id string) (*models.PeriodLeaderboard, pda.Address, error) {
	addr, _ := pda.Leaderboard(t, id)
	data, ok := m.accounts[addr]
	if !ok {
		return nil, addr, fmt.Errorf("%w: leaderboard %s/%s", protocol.ErrAccountNotFound, t, id)
	}
	var lb models.PeriodLeaderboard
	if err := lb.UnmarshalBinary(data); err != nil {
		return nil, addr, err
	}
	return &lb, addr, nil
}

func (m *Memory) storeAccount(addr pda.Address, enc interface{ MarshalBinary() ([]byte, error) }) error {
	data, err := enc.MarshalBinary()
	if err != nil {
		return err
	}
	m.putAccount(addr, data)
	return nil
}

func (m *Memory) initializeProfile(ins *Instruction) error {
	addr, _ := pda.UserProfile(ins.Owner)
	if _, exists := m.accounts[addr]; exists {
		return fmt.Errorf("%w: user profile", protocol.ErrAccountAlreadyExists)
	}
	if len(ins.Username) < 3 || len(ins.Username) > 32 {
		return fmt.Errorf("%w: username length", protocol.ErrPreconditionViolated)
	}
	now := m.now().Unix()
	return m.storeAccount(addr, &models.UserProfile{
		Player:    ins.Owner,
		Username:  ins.Username,
		CreatedAt: now,
	})
}

func (m *Memory) initializeSession(ins *Instruction) error {
	addr, _ := pda.Session(ins.Owner)
	if _, exists := m.accounts[addr]; exists {
		return fmt.Errorf("%w: session", protocol.ErrAccountAlreadyExists)
	}
	return m.storeAccount(addr, &models.Session{Player: ins.Owner})
}

func (m *Memory) buyTicket(ins *Instruction) error {
	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Paused {
		return protocol.ErrGamePaused
	}
	if _, _, err := m.loadProfile(ins.Owner); err != nil {
		return err
	}
	sess, sessAddr, err := m.loadSession(ins.Owner)
	if err != nil {
		return err
	}
	if sess.Delegated {
		return fmt.Errorf("%w: session is delegated", protocol.ErrPreconditionViolated)
	}
	if sess.PeriodID == ins.PeriodID && !sess.Completed && sess.GuessesUsed > 0 {
		return fmt.Errorf("%w: game in progress", protocol.ErrPreconditionViolated)
	}
	if ins.WordIndex >= models.WordCount() {
		return fmt.Errorf("%w: word index", protocol.ErrPreconditionViolated)
	}

	walletAddr := pda.FromPublicKey(ins.Owner)
	price := cfg.TicketPrice
	if m.balances[walletAddr] < price {
		return protocol.ErrInsufficientFunds
	}

	// Split the ticket across the pools. The platform takes the integer
	// remainder so the shares always sum to the exact price.
	daily := price * uint64(cfg.SplitDaily) / models.BasisPointsTotal
	weekly := price * uint64(cfg.SplitWeekly) / models.BasisPointsTotal
	monthly := price * uint64(cfg.SplitMonthly) / models.BasisPointsTotal
	lucky := price * uint64(cfg.SplitLucky) / models.BasisPointsTotal
	platform := price - daily - weekly - monthly - lucky

	m.balances[walletAddr] -= price
	m.persistBalance(walletAddr)
	m.credit(pdaVault(period.Daily), daily)
	m.credit(pdaVault(period.Weekly), weekly)
	m.credit(pdaVault(period.Monthly), monthly)
	m.credit(pdaLucky(), lucky)
	m.credit(pdaPlatform(), platform)

	now := m.now()
	m.addToPrizePool(period.Daily, ins.PeriodID, daily)
	m.addToPrizePool(period.Weekly, period.ID(period.Weekly, now), weekly)
	m.addToPrizePool(period.Monthly, period.ID(period.Monthly, now), monthly)

	word, err := models.WordByIndex(ins.WordIndex)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrPreconditionViolated, err)
	}

	*sess = models.Session{
		Player:         ins.Owner,
		TargetWordHash: models.WordHash(word),
		WordIndex:      ins.WordIndex,
		PeriodID:       ins.PeriodID,
		StartedAt:      now.Unix(),
	}
	return m.storeAccount(sessAddr, sess)
}

func pdaVault(t period.Type) pda.Address {
	addr, _ := pda.Vault(t)
	return addr
}

func pdaLucky() pda.Address {
	addr, _ := pda.LuckyDrawVault()
	return addr
}

func pdaPlatform() pda.Address {
	addr, _ := pda.PlatformVault()
	return addr
}

func (m *Memory) credit(addr pda.Address, amount uint64) {
	if amount == 0 {
		return
	}
	m.balances[addr] += amount
	m.persistBalance(addr)
}

// addToPrizePool records the pool contribution on the period leaderboard
// when one exists; the vault balance stays authoritative either way.
func (m *Memory) addToPrizePool(t period.Type, id string, amount uint64) {
	if amount == 0 {
		return
	}
	lb, addr, err := m.loadLeaderboard(t, id)
	if err != nil {
		return
	}
	lb.PrizePool += amount
	if err := m.storeAccount(addr, lb); err != nil {
		logger.Log.Warnf("Prize pool update failed for %s/%s: %v", t, id, err)
	}
}

// delegateSession transfers session ownership to the rollup: the base
// copy is flagged delegated and the bytes appear on the rollup. On a
// paired base the instruction is rejected outright; it must enter through
// the rollup so the base never takes the rollup lock and the lock order
// stays acyclic.
func (m *Memory) delegateSession(ins *Instruction) error {
	if m.role != Rollup {
		if m.counterpart != nil {
			return fmt.Errorf("%w: delegate must be submitted to the rollup", protocol.ErrPreconditionViolated)
		}
		return m.delegateLocal(ins)
	}
	if m.counterpart == nil {
		return fmt.Errorf("%w: no base layer attached", protocol.ErrPreconditionViolated)
	}
	var data []byte
	var err error
	m.counterpart.withLock(func() {
		var sess *models.Session
		var addr pda.Address
		sess, addr, err = m.counterpart.loadSession(ins.Owner)
		if err != nil {
			return
		}
		if sess.Delegated {
			err = fmt.Errorf("%w: session already delegated", protocol.ErrPreconditionViolated)
			return
		}
		sess.Delegated = true
		if err = m.counterpart.storeAccount(addr, sess); err != nil {
			return
		}
		data = m.counterpart.accounts[addr]
	})
	if err != nil {
		return err
	}
	addr, _ := pda.Session(ins.Owner)
	m.putAccount(addr, data)
	return nil
}

// delegateLocal covers an unpaired base instance (single-layer
// deployments and tests).
func (m *Memory) delegateLocal(ins *Instruction) error {
	sess, addr, err := m.loadSession(ins.Owner)
	if err != nil {
		return err
	}
	if sess.Delegated {
		return fmt.Errorf("%w: session already delegated", protocol.ErrPreconditionViolated)
	}
	sess.Delegated = true
	return m.storeAccount(addr, sess)
}

func (m *Memory) submitGuess(ins *Instruction) error {
	sess, addr, err := m.loadSession(ins.Owner)
	if err != nil {
		return err
	}
	if m.role == Base && sess.Delegated {
		return fmt.Errorf("%w: session is delegated to the rollup", protocol.ErrPreconditionViolated)
	}
	if !models.ValidGuess(ins.Guess) {
		return fmt.Errorf("%w: guess must be %d letters", protocol.ErrPreconditionViolated, models.WordLength)
	}
	if sess.Completed {
		return fmt.Errorf("%w: game already completed", protocol.ErrPreconditionViolated)
	}
	if sess.GuessesUsed >= models.MaxGuesses {
		return fmt.Errorf("%w: no guesses remaining", protocol.ErrPreconditionViolated)
	}
	if sess.PeriodID != ins.PeriodID {
		return fmt.Errorf("%w: session period %s, request period %s",
			protocol.ErrStalePeriodMismatch, sess.PeriodID, ins.PeriodID)
	}

	target, err := models.WordByIndex(sess.WordIndex)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrPreconditionViolated, err)
	}

	now := m.now()
	result := models.Evaluate(ins.Guess, target)
	sess.Guesses = append(sess.Guesses, models.GuessRecord{
		Guess:     ins.Guess,
		Result:    result,
		Timestamp: now.Unix(),
	})
	sess.GuessesUsed++
	if models.Solved(result) {
		sess.Solved = true
	}

	if sess.Solved || sess.GuessesUsed >= models.MaxGuesses {
		sess.Completed = true
		sess.TargetWord = target
		sess.TimeMs = uint64(now.Unix()-sess.StartedAt) * 1000
		sess.Score = models.Score(sess.Solved, sess.GuessesUsed, sess.TimeMs)
	}
	return m.storeAccount(addr, sess)
}

// completeGame commits the finished session's stats: profile update and
// leaderboard insertion. When executed on the rollup, the commit lands on
// the base layer.
func (m *Memory) completeGame(ins *Instruction) error {
	sess, _, err := m.loadSession(ins.Owner)
	if err != nil {
		return err
	}
	if !sess.Completed {
		return fmt.Errorf("%w: game not completed", protocol.ErrPreconditionViolated)
	}
	if sess.PeriodID != ins.PeriodID {
		return fmt.Errorf("%w: session period %s, request period %s",
			protocol.ErrStalePeriodMismatch, sess.PeriodID, ins.PeriodID)
	}

	target := m
	if m.role == Rollup {
		if m.counterpart == nil {
			return fmt.Errorf("%w: no base layer attached", protocol.ErrPreconditionViolated)
		}
		target = m.counterpart
	}

	var commitErr error
	commit := func() {
		commitErr = target.commitStats(sess, m.now())
	}
	if target == m {
		commit()
	} else {
		target.withLock(commit)
	}
	return commitErr
}

func (m *Memory) commitStats(sess *models.Session, now time.Time) error {
	profile, profileAddr, err := m.loadProfile(sess.Player)
	if err != nil {
		return err
	}
	if profile.LastPlayedPeriod == sess.PeriodID {
		return fmt.Errorf("%w: stats already committed for period %s",
			protocol.ErrPreconditionViolated, sess.PeriodID)
	}

	profile.TotalGamesPlayed++
	if sess.Solved {
		profile.GamesWon++
		profile.CurrentStreak++
		if profile.CurrentStreak > profile.MaxStreak {
			profile.MaxStreak = profile.CurrentStreak
		}
		if sess.GuessesUsed >= 1 && sess.GuessesUsed <= models.MaxGuesses {
			profile.GuessDistribution[sess.GuessesUsed-1]++
		}
		profile.AverageGuesses = averageGuesses(profile.GuessDistribution)
	} else {
		profile.CurrentStreak = 0
	}
	profile.TotalScore += uint64(sess.Score)
	if sess.Score > profile.BestScore {
		profile.BestScore = sess.Score
	}
	profile.LastPlayedPeriod = sess.PeriodID
	profile.LastPlayed = now.Unix()
	unlockAchievements(profile, sess, now.Unix())

	if err := m.storeAccount(profileAddr, profile); err != nil {
		return err
	}

	entry := models.LeaderEntry{
		Player:      sess.Player,
		Username:    profile.Username,
		Score:       sess.Score,
		GuessesUsed: sess.GuessesUsed,
		TimeMs:      sess.TimeMs,
		Timestamp:   now.Unix(),
	}
	m.insertEntry(period.Daily, sess.PeriodID, entry)
	m.insertEntry(period.Weekly, period.ID(period.Weekly, now), entry)
	m.insertEntry(period.Monthly, period.ID(period.Monthly, now), entry)
	return nil
}

// insertEntry is a no-op when the leaderboard was never initialized; the
// period simply has no standings to win.
func (m *Memory) insertEntry(t period.Type, id string, entry models.LeaderEntry) {
	lb, addr, err := m.loadLeaderboard(t, id)
	if err != nil {
		return
	}
	if lb.Finalized {
		return
	}
	lb.Insert(entry)
	if err := m.storeAccount(addr, lb); err != nil {
		logger.Log.Warnf("Leaderboard update failed for %s/%s: %v", t, id, err)
	}
}

func averageGuesses(dist [7]uint32) float32 {
	var games, guesses uint64
	for i, n := range dist {
		games += uint64(n)
		guesses += uint64(n) * uint64(i+1)
	}
	if games == 0 {
		return 0
	}
	return float32(guesses) / float32(games)
}

func unlockAchievements(p *models.UserProfile, sess *models.Session, now int64) {
	unlock := func(id uint8) {
		for _, a := range p.Achievements {
			if a.ID == id {
				return
			}
		}
		p.Achievements = append(p.Achievements, models.Achievement{ID: id, UnlockedAt: now})
	}

	if p.TotalGamesPlayed == 1 {
		unlock(models.AchievementFirstGame)
	}
	if sess.Solved {
		if p.GamesWon == 1 {
			unlock(models.AchievementFirstWin)
		}
		if sess.GuessesUsed <= 2 {
			unlock(models.AchievementLuckyGuess)
		}
		if p.CurrentStreak >= 3 {
			unlock(models.AchievementStreak3)
		}
		if p.CurrentStreak >= 7 {
			unlock(models.AchievementStreak7)
		}
		quickWins := uint32(0)
		for i := 0; i < 3; i++ {
			quickWins += p.GuessDistribution[i]
		}
		if quickWins >= 10 {
			unlock(models.AchievementPerfectionist)
		}
	}
}

// undelegateSession returns session ownership to the base layer.
func (m *Memory) undelegateSession(ins *Instruction) error {
	sess, addr, err := m.loadSession(ins.Owner)
	if err != nil {
		return err
	}
	if !sess.Delegated {
		return fmt.Errorf("%w: session not delegated", protocol.ErrPreconditionViolated)
	}
	sess.Delegated = false

	if m.role == Rollup {
		if m.counterpart == nil {
			return fmt.Errorf("%w: no base layer attached", protocol.ErrPreconditionViolated)
		}
		data, err := sess.MarshalBinary()
		if err != nil {
			return err
		}
		m.counterpart.withLock(func() {
			m.counterpart.putAccount(addr, data)
		})
		m.deleteAccount(addr)
		return nil
	}
	return m.storeAccount(addr, sess)
}

// resetSession clears the play state so the same physical account serves
// the next period. The reset lands on whichever layer currently owns the
// account: a rollup holding the delegated copy resets it in place and
// forwards to the base layer otherwise.
func (m *Memory) resetSession(ins *Instruction) error {
	if m.role == Rollup {
		addr, _ := pda.Session(ins.Owner)
		if _, owned := m.accounts[addr]; !owned {
			if m.counterpart == nil {
				return fmt.Errorf("%w: no base layer attached", protocol.ErrPreconditionViolated)
			}
			var err error
			m.counterpart.withLock(func() {
				err = m.counterpart.resetLocal(ins)
			})
			return err
		}
	}
	return m.resetLocal(ins)
}

func (m *Memory) resetLocal(ins *Instruction) error {
	sess, addr, err := m.loadSession(ins.Owner)
	if err != nil {
		return err
	}
	if m.role == Base && sess.Delegated {
		return fmt.Errorf("%w: session is delegated to the rollup", protocol.ErrPreconditionViolated)
	}
	*sess = models.Session{
		Player:    sess.Player,
		Delegated: sess.Delegated,
	}
	return m.storeAccount(addr, sess)
}

func (m *Memory) initializeLeaderboard(ins *Instruction) error {
	if !period.Valid(ins.PeriodType, ins.PeriodID) {
		return fmt.Errorf("%w: malformed period id %q", protocol.ErrPreconditionViolated, ins.PeriodID)
	}
	addr, _ := pda.Leaderboard(ins.PeriodType, ins.PeriodID)
	if _, exists := m.accounts[addr]; exists {
		return fmt.Errorf("%w: leaderboard", protocol.ErrAccountAlreadyExists)
	}
	return m.storeAccount(addr, &models.PeriodLeaderboard{
		PeriodID:   ins.PeriodID,
		PeriodType: ins.PeriodType,
		CreatedAt:  m.now().Unix(),
	})
}

func (m *Memory) finalizeLeaderboard(tx *Transaction, ins *Instruction) error {
	if err := m.requireAuthority(tx.Signer); err != nil {
		return err
	}
	lb, addr, err := m.loadLeaderboard(ins.PeriodType, ins.PeriodID)
	if err != nil {
		return err
	}
	if lb.Finalized {
		return fmt.Errorf("%w: leaderboard %s/%s", protocol.ErrAlreadyFinalized, ins.PeriodType, ins.PeriodID)
	}
	lb.Finalized = true
	lb.FinalizedAt = m.now().Unix()
	return m.storeAccount(addr, lb)
}

func (m *Memory) finalizePeriod(tx *Transaction, ins *Instruction) error {
	if err := m.requireAuthority(tx.Signer); err != nil {
		return err
	}
	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Paused {
		return protocol.ErrGamePaused
	}
	lb, _, err := m.loadLeaderboard(ins.PeriodType, ins.PeriodID)
	if err != nil {
		return err
	}
	if !lb.Finalized {
		return fmt.Errorf("%w: leaderboard not finalized", protocol.ErrPreconditionViolated)
	}

	stateAddr, _ := pda.PeriodState(ins.PeriodType, ins.PeriodID)
	if data, exists := m.accounts[stateAddr]; exists {
		var ps models.PeriodState
		if err := ps.UnmarshalBinary(data); err != nil {
			return err
		}
		if ps.Finalized {
			return fmt.Errorf("%w: period %s/%s", protocol.ErrAlreadyFinalized, ins.PeriodType, ins.PeriodID)
		}
	}

	winners := make([]keys.PublicKey, 0, models.TopWinnersCount)
	for _, e := range lb.TopN(models.TopWinnersCount) {
		winners = append(winners, e.Player)
	}
	return m.storeAccount(stateAddr, &models.PeriodState{
		PeriodType:                 ins.PeriodType,
		PeriodID:                   ins.PeriodID,
		Finalized:                  true,
		TotalParticipants:          lb.TotalPlayers,
		VaultBalanceAtFinalization: m.balances[pdaVault(ins.PeriodType)],
		Winners:                    winners,
	})
}

func (m *Memory) createEntitlement(tx *Transaction, ins *Instruction) error {
	if err := m.requireAuthority(tx.Signer); err != nil {
		return err
	}
	stateAddr, _ := pda.PeriodState(ins.PeriodType, ins.PeriodID)
	data, exists := m.accounts[stateAddr]
	if !exists {
		return fmt.Errorf("%w: period state", protocol.ErrAccountNotFound)
	}
	var ps models.PeriodState
	if err := ps.UnmarshalBinary(data); err != nil {
		return err
	}
	if !ps.Finalized {
		return fmt.Errorf("%w: period not finalized", protocol.ErrPreconditionViolated)
	}
	if ins.Rank < 1 || ins.Rank > models.TopWinnersCount {
		return fmt.Errorf("%w: rank %d", protocol.ErrPreconditionViolated, ins.Rank)
	}
	if int(ins.Rank) > len(ps.Winners) || ps.Winners[ins.Rank-1] != ins.Winner {
		return fmt.Errorf("%w: winner does not hold rank %d", protocol.ErrPreconditionViolated, ins.Rank)
	}
	if ins.Amount == 0 {
		return protocol.ErrNonPositiveAmount
	}

	addr, _ := pda.WinnerEntitlement(ins.Winner, ins.PeriodType, ins.PeriodID)
	if _, exists := m.accounts[addr]; exists {
		return fmt.Errorf("%w: entitlement", protocol.ErrAccountAlreadyExists)
	}
	return m.storeAccount(addr, &models.WinnerEntitlement{
		Player:     ins.Winner,
		PeriodType: ins.PeriodType,
		PeriodID:   ins.PeriodID,
		Rank:       ins.Rank,
		Amount:     ins.Amount,
	})
}

// claimPrize transfers the entitled amount and flips the claimed flag in
// one critical section; there is no state where only one of the two
// happened.
func (m *Memory) claimPrize(ins *Instruction) error {
	addr, _ := pda.WinnerEntitlement(ins.Owner, ins.PeriodType, ins.PeriodID)
	data, exists := m.accounts[addr]
	if !exists {
		return protocol.ErrEntitlementNotFound
	}
	var ent models.WinnerEntitlement
	if err := ent.UnmarshalBinary(data); err != nil {
		return err
	}
	if ent.Claimed {
		return protocol.ErrAlreadyClaimed
	}
	if ent.Amount == 0 {
		return protocol.ErrNonPositiveAmount
	}
	vault := pdaVault(ins.PeriodType)
	if m.balances[vault] < ent.Amount {
		return protocol.ErrInsufficientFunds
	}

	ent.Claimed = true
	if err := m.storeAccount(addr, &ent); err != nil {
		return err
	}
	m.balances[vault] -= ent.Amount
	m.persistBalance(vault)
	wallet := pda.FromPublicKey(ins.Owner)
	m.balances[wallet] += ent.Amount
	m.persistBalance(wallet)
	return nil
}

func (m *Memory) requireAuthority(signer keys.PublicKey) error {
	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Authority != signer {
		return fmt.Errorf("%w: signer is not the configured authority", protocol.ErrPreconditionViolated)
	}
	return nil
}

package models

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/period"
)

// ErrInvalidAccountData is returned whenever raw account bytes do not
// decode exactly into the expected schema. Decoding fails closed: partial
// or trailing data is an error, never a silently truncated value.
var ErrInvalidAccountData = errors.New("invalid account data")

// Account discriminators, first byte of every encoded account.
const (
	discGlobalConfig uint8 = iota + 1
	discUserProfile
	discSession
	discLeaderboard
	discPeriodState
	discEntitlement
)

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u16(v uint16)         { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32)         { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)         { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)          { w.u64(uint64(v)) }
func (w *writer) f32(v float32)        { w.u32(math.Float32bits(v)) }
func (w *writer) key(k keys.PublicKey) { w.buf = append(w.buf, k[:]...) }
func (w *writer) hash(h [32]byte)      { w.buf = append(w.buf, h[:]...) }
func (w *writer) str(s string) {
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

type reader struct {
	buf  []byte
	off  int
	fail bool
}

func (r *reader) take(n int) []byte {
	if r.fail || r.off+n > len(r.buf) {
		r.fail = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) boolean() bool {
	switch r.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail = true
		return false
	}
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64   { return int64(r.u64()) }
func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) key() keys.PublicKey {
	var k keys.PublicKey
	copy(k[:], r.take(32))
	return k
}

func (r *reader) hash() [32]byte {
	var h [32]byte
	copy(h[:], r.take(32))
	return h
}

func (r *reader) str() string {
	n := int(r.u16())
	return string(r.take(n))
}

// done validates the read: no short reads and no trailing bytes.
func (r *reader) done(what string) error {
	if r.fail || r.off != len(r.buf) {
		return fmt.Errorf("%w: %s", ErrInvalidAccountData, what)
	}
	return nil
}

func newReader(data []byte, disc uint8, what string) (*reader, error) {
	r := &reader{buf: data}
	if r.u8() != disc {
		return nil, fmt.Errorf("%w: %s discriminator", ErrInvalidAccountData, what)
	}
	if r.fail {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccountData, what)
	}
	return r, nil
}

func (c *GlobalConfig) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(discGlobalConfig)
	w.key(c.Authority)
	w.u64(c.TicketPrice)
	w.u16(c.SplitDaily)
	w.u16(c.SplitWeekly)
	w.u16(c.SplitMonthly)
	w.u16(c.SplitPlatform)
	w.u16(c.SplitLucky)
	for _, s := range c.WinnerSplits {
		w.u16(s)
	}
	w.boolean(c.Paused)
	return w.buf, nil
}

func (c *GlobalConfig) UnmarshalBinary(data []byte) error {
	r, err := newReader(data, discGlobalConfig, "global config")
	if err != nil {
		return err
	}
	c.Authority = r.key()
	c.TicketPrice = r.u64()
	c.SplitDaily = r.u16()
	c.SplitWeekly = r.u16()
	c.SplitMonthly = r.u16()
	c.SplitPlatform = r.u16()
	c.SplitLucky = r.u16()
	for i := range c.WinnerSplits {
		c.WinnerSplits[i] = r.u16()
	}
	c.Paused = r.boolean()
	return r.done("global config")
}

func (p *UserProfile) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(discUserProfile)
	w.key(p.Player)
	w.str(p.Username)
	w.u32(p.TotalGamesPlayed)
	w.u32(p.GamesWon)
	w.u32(p.CurrentStreak)
	w.u32(p.MaxStreak)
	w.u64(p.TotalScore)
	w.u32(p.BestScore)
	w.f32(p.AverageGuesses)
	for _, n := range p.GuessDistribution {
		w.u32(n)
	}
	w.str(p.LastPlayedPeriod)
	w.u8(uint8(len(p.Achievements)))
	for _, a := range p.Achievements {
		w.u8(a.ID)
		w.i64(a.UnlockedAt)
	}
	w.boolean(p.Delegated)
	w.i64(p.CreatedAt)
	w.i64(p.LastPlayed)
	return w.buf, nil
}

func (p *UserProfile) UnmarshalBinary(data []byte) error {
	r, err := newReader(data, discUserProfile, "user profile")
	if err != nil {
		return err
	}
	p.Player = r.key()
	p.Username = r.str()
	p.TotalGamesPlayed = r.u32()
	p.GamesWon = r.u32()
	p.CurrentStreak = r.u32()
	p.MaxStreak = r.u32()
	p.TotalScore = r.u64()
	p.BestScore = r.u32()
	p.AverageGuesses = r.f32()
	for i := range p.GuessDistribution {
		p.GuessDistribution[i] = r.u32()
	}
	p.LastPlayedPeriod = r.str()
	n := int(r.u8())
	p.Achievements = nil
	for i := 0; i < n && !r.fail; i++ {
		p.Achievements = append(p.Achievements, Achievement{ID: r.u8(), UnlockedAt: r.i64()})
	}
	p.Delegated = r.boolean()
	p.CreatedAt = r.i64()
	p.LastPlayed = r.i64()
	return r.done("user profile")
}

func (s *Session) MarshalBinary() ([]byte, error) {
	if len(s.Guesses) > MaxGuesses {
		return nil, fmt.Errorf("%w: session has %d guesses", ErrInvalidAccountData, len(s.Guesses))
	}
	w := &writer{}
	w.u8(discSession)
	w.key(s.Player)
	w.hash(s.TargetWordHash)
	w.u32(s.WordIndex)
	w.str(s.TargetWord)
	w.u8(uint8(len(s.Guesses)))
	for _, g := range s.Guesses {
		w.str(g.Guess)
		for _, lr := range g.Result {
			w.u8(uint8(lr))
		}
		w.i64(g.Timestamp)
	}
	w.u8(s.GuessesUsed)
	w.boolean(s.Solved)
	w.boolean(s.Completed)
	w.u64(s.TimeMs)
	w.u32(s.Score)
	w.str(s.PeriodID)
	w.i64(s.StartedAt)
	w.boolean(s.Delegated)
	return w.buf, nil
}

func (s *Session) UnmarshalBinary(data []byte) error {
	r, err := newReader(data, discSession, "session")
	if err != nil {
		return err
	}
	s.Player = r.key()
	s.TargetWordHash = r.hash()
	s.WordIndex = r.u32()
	s.TargetWord = r.str()
	n := int(r.u8())
	if n > MaxGuesses {
		return fmt.Errorf("%w: session guess count %d", ErrInvalidAccountData, n)
	}
	s.Guesses = nil
	for i := 0; i < n && !r.fail; i++ {
		var g GuessRecord
		g.Guess = r.str()
		for j := range g.Result {
			lr := LetterResult(r.u8())
			if lr > Absent {
				return fmt.Errorf("%w: letter result", ErrInvalidAccountData)
			}
			g.Result[j] = lr
		}
		g.Timestamp = r.i64()
		s.Guesses = append(s.Guesses, g)
	}
	s.GuessesUsed = r.u8()
	s.Solved = r.boolean()
	s.Completed = r.boolean()
	s.TimeMs = r.u64()
	s.Score = r.u32()
	s.PeriodID = r.str()
	s.StartedAt = r.i64()
	s.Delegated = r.boolean()
	return r.done("session")
}

func (lb *PeriodLeaderboard) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(discLeaderboard)
	w.str(lb.PeriodID)
	w.u8(lb.PeriodType.Byte())
	w.u8(uint8(len(lb.Entries)))
	for _, e := range lb.Entries {
		w.key(e.Player)
		w.str(e.Username)
		w.u32(e.Score)
		w.u8(e.GuessesUsed)
		w.u64(e.TimeMs)
		w.i64(e.Timestamp)
	}
	w.u32(lb.TotalPlayers)
	w.u64(lb.PrizePool)
	w.boolean(lb.Finalized)
	w.i64(lb.CreatedAt)
	w.i64(lb.FinalizedAt)
	return w.buf, nil
}

func (lb *PeriodLeaderboard) UnmarshalBinary(data []byte) error {
	r, err := newReader(data, discLeaderboard, "leaderboard")
	if err != nil {
		return err
	}
	lb.PeriodID = r.str()
	lb.PeriodType = period.Type(r.u8())
	n := int(r.u8())
	if n > MaxLeaderboardSize {
		return fmt.Errorf("%w: leaderboard entry count %d", ErrInvalidAccountData, n)
	}
	lb.Entries = nil
	for i := 0; i < n && !r.fail; i++ {
		var e LeaderEntry
		e.Player = r.key()
		e.Username = r.str()
		e.Score = r.u32()
		e.GuessesUsed = r.u8()
		e.TimeMs = r.u64()
		e.Timestamp = r.i64()
		lb.Entries = append(lb.Entries, e)
	}
	lb.TotalPlayers = r.u32()
	lb.PrizePool = r.u64()
	lb.Finalized = r.boolean()
	lb.CreatedAt = r.i64()
	lb.FinalizedAt = r.i64()
	return r.done("leaderboard")
}

func (ps *PeriodState) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(discPeriodState)
	w.u8(ps.PeriodType.Byte())
	w.str(ps.PeriodID)
	w.boolean(ps.Finalized)
	w.u32(ps.TotalParticipants)
	w.u64(ps.VaultBalanceAtFinalization)
	w.u8(uint8(len(ps.Winners)))
	for _, p := range ps.Winners {
		w.key(p)
	}
	return w.buf, nil
}

func (ps *PeriodState) UnmarshalBinary(data []byte) error {
	r, err := newReader(data, discPeriodState, "period state")
	if err != nil {
		return err
	}
	ps.PeriodType = period.Type(r.u8())
	ps.PeriodID = r.str()
	ps.Finalized = r.boolean()
	ps.TotalParticipants = r.u32()
	ps.VaultBalanceAtFinalization = r.u64()
	n := int(r.u8())
	if n > TopWinnersCount {
		return fmt.Errorf("%w: winner count %d", ErrInvalidAccountData, n)
	}
	ps.Winners = nil
	for i := 0; i < n && !r.fail; i++ {
		ps.Winners = append(ps.Winners, r.key())
	}
	return r.done("period state")
}

func (e *WinnerEntitlement) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(discEntitlement)
	w.key(e.Player)
	w.u8(e.PeriodType.Byte())
	w.str(e.PeriodID)
	w.u8(e.Rank)
	w.u64(e.Amount)
	w.boolean(e.Claimed)
	return w.buf, nil
}

func (e *WinnerEntitlement) UnmarshalBinary(data []byte) error {
	r, err := newReader(data, discEntitlement, "entitlement")
	if err != nil {
		return err
	}
	e.Player = r.key()
	e.PeriodType = period.Type(r.u8())
	e.PeriodID = r.str()
	e.Rank = r.u8()
	e.Amount = r.u64()
	e.Claimed = r.boolean()
	return r.done("entitlement")
}

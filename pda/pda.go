// Package pda derives deterministic account addresses from key tuples.
// Every entity's location is a pure function of its keys: no directory
// account exists anywhere in the system. Each address kind prefixes its
// seed material with a fixed tag, so different kinds can never collide.
package pda

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/period"
)

// Address locates one ledger account.
type Address [32]byte

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// FromPublicKey maps a wallet identity onto the address space, used for
// balance-holding owner accounts.
func FromPublicKey(p keys.PublicKey) Address {
	return Address(p)
}

// Seed tags. Fixed strings; changing any of them relocates every account
// of that kind.
const (
	tagGlobalConfig      = "global_config_v2"
	tagUserProfile       = "user_profile"
	tagSession           = "session"
	tagLeaderboard       = "leaderboard"
	tagDailyPeriod       = "daily_period"
	tagWeeklyPeriod      = "weekly_period"
	tagMonthlyPeriod     = "monthly_period"
	tagWinnerEntitlement = "winner_entitlement"
	tagDailyVault        = "daily_prize_vault"
	tagWeeklyVault       = "weekly_prize_vault"
	tagMonthlyVault      = "monthly_prize_vault"
	tagPlatformVault     = "platform_vault"
	tagLuckyDrawVault    = "lucky_draw_vault"
)

// derive hashes tag || parts in order. The salt is the first byte of a
// second-round hash, kept for parity with the ledger program's bump seed.
func derive(tag string, parts ...[]byte) (Address, byte) {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var addr Address
	h.Sum(addr[:0])

	s := sha256.New()
	s.Write(addr[:])
	s.Write([]byte(tag))
	return addr, s.Sum(nil)[0]
}

func GlobalConfig() (Address, byte) {
	return derive(tagGlobalConfig)
}

func UserProfile(owner keys.PublicKey) (Address, byte) {
	return derive(tagUserProfile, owner.Bytes())
}

// Session is one physical account per player, reused across periods via
// the reset operation.
func Session(owner keys.PublicKey) (Address, byte) {
	return derive(tagSession, owner.Bytes())
}

// Leaderboard encodes the period type as its single-byte discriminant.
func Leaderboard(t period.Type, periodID string) (Address, byte) {
	return derive(tagLeaderboard, []byte{t.Byte()}, []byte(periodID))
}

// PeriodState uses a per-type tag rather than a discriminant byte.
func PeriodState(t period.Type, periodID string) (Address, byte) {
	switch t {
	case period.Weekly:
		return derive(tagWeeklyPeriod, []byte(periodID))
	case period.Monthly:
		return derive(tagMonthlyPeriod, []byte(periodID))
	default:
		return derive(tagDailyPeriod, []byte(periodID))
	}
}

// WinnerEntitlement encodes the period type as its UTF-8 word.
func WinnerEntitlement(owner keys.PublicKey, t period.Type, periodID string) (Address, byte) {
	return derive(tagWinnerEntitlement, owner.Bytes(), []byte(t.String()), []byte(periodID))
}

func Vault(t period.Type) (Address, byte) {
	switch t {
	case period.Weekly:
		return derive(tagWeeklyVault)
	case period.Monthly:
		return derive(tagMonthlyVault)
	default:
		return derive(tagDailyVault)
	}
}

func PlatformVault() (Address, byte) {
	return derive(tagPlatformVault)
}

func LuckyDrawVault() (Address, byte) {
	return derive(tagLuckyDrawVault)
}

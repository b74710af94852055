// Package models defines the typed schemas of every ledger account the
// protocol touches, with strict binary codecs that fail closed on
// malformed data.
package models

import (
	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/period"
)

const (
	// WordLength is the fixed guess and target word length.
	WordLength = 6

	// MaxGuesses per session.
	MaxGuesses = 7

	// MaxLeaderboardSize is the number of entries a period leaderboard keeps.
	MaxLeaderboardSize = 10

	// TopWinnersCount is the number of prize ranks per period.
	TopWinnersCount = 3

	// BasisPointsTotal is 100% in basis points.
	BasisPointsTotal = 10_000
)

// GlobalConfig is the singleton administrative account.
type GlobalConfig struct {
	Authority     keys.PublicKey
	TicketPrice   uint64
	SplitDaily    uint16
	SplitWeekly   uint16
	SplitMonthly  uint16
	SplitPlatform uint16
	SplitLucky    uint16
	WinnerSplits  [3]uint16
	Paused        bool
}

// Achievement ids. Names and art live client-side; the ledger only keeps
// the id and unlock time.
const (
	AchievementFirstGame     uint8 = 1
	AchievementFirstWin      uint8 = 2
	AchievementLuckyGuess    uint8 = 3
	AchievementStreak3       uint8 = 4
	AchievementStreak7       uint8 = 5
	AchievementPerfectionist uint8 = 6
)

type Achievement struct {
	ID         uint8
	UnlockedAt int64
}

// UserProfile holds lifetime stats for one player.
type UserProfile struct {
	Player            keys.PublicKey
	Username          string
	TotalGamesPlayed  uint32
	GamesWon          uint32
	CurrentStreak     uint32
	MaxStreak         uint32
	TotalScore        uint64
	BestScore         uint32
	AverageGuesses    float32
	GuessDistribution [7]uint32
	LastPlayedPeriod  string
	Achievements      []Achievement
	// Delegated marks rollup ownership of the record.
	Delegated bool
	CreatedAt int64
	LastPlayed int64
}

// LetterResult is the tri-state feedback for one letter position.
type LetterResult uint8

const (
	Correct LetterResult = iota
	Present
	Absent
)

// GuessRecord is one submitted guess with its per-letter feedback. Result
// always has exactly WordLength entries.
type GuessRecord struct {
	Guess     string
	Result    [WordLength]LetterResult
	Timestamp int64
}

// Session is one player's per-period play state. One physical account per
// player, logically reset for each new period.
type Session struct {
	Player         keys.PublicKey
	TargetWordHash [32]byte
	WordIndex      uint32
	// TargetWord stays empty until the game completes.
	TargetWord  string
	Guesses     []GuessRecord
	GuessesUsed uint8
	Solved      bool
	Completed   bool
	TimeMs      uint64
	Score       uint32
	PeriodID    string
	StartedAt   int64
	// Delegated marks rollup ownership; mutations are only valid on the
	// rollup while set.
	Delegated bool
}

// LeaderEntry is one row of a period leaderboard.
type LeaderEntry struct {
	Player      keys.PublicKey
	Username    string
	Score       uint32
	GuessesUsed uint8
	TimeMs      uint64
	Timestamp   int64
}

// PeriodLeaderboard tracks the top players of one (type, id) period.
type PeriodLeaderboard struct {
	PeriodID     string
	PeriodType   period.Type
	Entries      []LeaderEntry
	TotalPlayers uint32
	PrizePool    uint64
	Finalized    bool
	CreatedAt    int64
	FinalizedAt  int64
}

// PeriodState is written once by the finalize operation and immutable
// afterwards.
type PeriodState struct {
	PeriodType                 period.Type
	PeriodID                   string
	Finalized                  bool
	TotalParticipants          uint32
	VaultBalanceAtFinalization uint64
	Winners                    []keys.PublicKey
}

// WinnerEntitlement grants one winner the right to one claim.
type WinnerEntitlement struct {
	Player     keys.PublicKey
	PeriodType period.Type
	PeriodID   string
	Rank       uint8
	Amount     uint64
	Claimed    bool
}

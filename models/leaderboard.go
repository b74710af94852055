package models

// RanksBefore reports whether entry a outranks entry b. Score decides;
// ties break on faster completion, then fewer guesses. The tie-break is
// part of the protocol: settlement and any mirror must sort identically.
func RanksBefore(a, b LeaderEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.TimeMs != b.TimeMs {
		return a.TimeMs < b.TimeMs
	}
	return a.GuessesUsed < b.GuessesUsed
}

// Insert places an entry in rank order, replacing the player's previous
// entry if the new one ranks better. The board keeps at most
// MaxLeaderboardSize entries; TotalPlayers counts every distinct player
// who ever completed a game this period, including those ranked off the
// board.
func (lb *PeriodLeaderboard) Insert(e LeaderEntry) {
	existing := -1
	for i, cur := range lb.Entries {
		if cur.Player == e.Player {
			existing = i
			break
		}
	}
	if existing >= 0 {
		if RanksBefore(lb.Entries[existing], e) {
			return
		}
		lb.Entries = append(lb.Entries[:existing], lb.Entries[existing+1:]...)
	} else {
		lb.TotalPlayers++
	}

	pos := len(lb.Entries)
	for i, cur := range lb.Entries {
		if RanksBefore(e, cur) {
			pos = i
			break
		}
	}
	lb.Entries = append(lb.Entries, LeaderEntry{})
	copy(lb.Entries[pos+1:], lb.Entries[pos:])
	lb.Entries[pos] = e

	if len(lb.Entries) > MaxLeaderboardSize {
		lb.Entries = lb.Entries[:MaxLeaderboardSize]
	}
}

// TopN returns up to n leading entries.
func (lb *PeriodLeaderboard) TopN(n int) []LeaderEntry {
	if n > len(lb.Entries) {
		n = len(lb.Entries)
	}
	out := make([]LeaderEntry, n)
	copy(out, lb.Entries[:n])
	return out
}

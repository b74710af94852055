package models

import (
	"testing"

	"github.com/voblegame/voble/keys"
)

func player(n byte) keys.PublicKey {
	var k keys.PublicKey
	k[0] = n
	return k
}

func entry(n byte, score uint32, timeMs uint64, guesses uint8) LeaderEntry {
	return LeaderEntry{
		Player:      player(n),
		Score:       score,
		TimeMs:      timeMs,
		GuessesUsed: guesses,
	}
}

func TestRanksBefore(t *testing.T) {
	cases := []struct {
		name string
		a, b LeaderEntry
		want bool
	}{
		{"higher score wins", entry(1, 1500, 60_000, 4), entry(2, 1400, 10_000, 1), true},
		{"lower score loses", entry(1, 900, 10_000, 1), entry(2, 1000, 60_000, 5), false},
		{"tie breaks on time", entry(1, 1000, 30_000, 4), entry(2, 1000, 40_000, 4), true},
		{"tie breaks on guesses last", entry(1, 1000, 30_000, 3), entry(2, 1000, 30_000, 4), true},
		{"full tie is not before", entry(1, 1000, 30_000, 3), entry(2, 1000, 30_000, 3), false},
	}
	for _, c := range cases {
		if got := RanksBefore(c.a, c.b); got != c.want {
			t.Errorf("%s: RanksBefore = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestInsertKeepsRankOrder(t *testing.T) {
	lb := &PeriodLeaderboard{}
	lb.Insert(entry(1, 800, 50_000, 4))
	lb.Insert(entry(2, 1200, 20_000, 2))
	lb.Insert(entry(3, 1000, 30_000, 3))

	want := []byte{2, 3, 1}
	for i, w := range want {
		if lb.Entries[i].Player != player(w) {
			t.Fatalf("rank %d = %v, want player %d", i+1, lb.Entries[i].Player, w)
		}
	}
	if lb.TotalPlayers != 3 {
		t.Fatalf("TotalPlayers = %d, want 3", lb.TotalPlayers)
	}
}

func TestInsertReplacesWorseEntry(t *testing.T) {
	lb := &PeriodLeaderboard{}
	lb.Insert(entry(1, 800, 50_000, 4))
	lb.Insert(entry(1, 1200, 20_000, 2))

	if len(lb.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(lb.Entries))
	}
	if lb.Entries[0].Score != 1200 {
		t.Fatalf("expected the better entry to stay, got score %d", lb.Entries[0].Score)
	}
	if lb.TotalPlayers != 1 {
		t.Fatalf("TotalPlayers = %d, want 1 for a repeat player", lb.TotalPlayers)
	}
}

func TestInsertKeepsExistingBetterEntry(t *testing.T) {
	lb := &PeriodLeaderboard{}
	lb.Insert(entry(1, 1200, 20_000, 2))
	lb.Insert(entry(1, 800, 50_000, 4))

	if lb.Entries[0].Score != 1200 {
		t.Fatalf("worse result must not displace the better one, got %d", lb.Entries[0].Score)
	}
}

func TestInsertCapsBoardSize(t *testing.T) {
	lb := &PeriodLeaderboard{}
	for i := 0; i < MaxLeaderboardSize+5; i++ {
		lb.Insert(entry(byte(i+1), uint32(100*(i+1)), 30_000, 3))
	}

	if len(lb.Entries) != MaxLeaderboardSize {
		t.Fatalf("board size = %d, want %d", len(lb.Entries), MaxLeaderboardSize)
	}
	// All players count even when ranked off the board.
	if lb.TotalPlayers != MaxLeaderboardSize+5 {
		t.Fatalf("TotalPlayers = %d, want %d", lb.TotalPlayers, MaxLeaderboardSize+5)
	}
	// Best score sits at rank one.
	if lb.Entries[0].Score != uint32(100*(MaxLeaderboardSize+5)) {
		t.Fatalf("rank one score = %d", lb.Entries[0].Score)
	}
}

func TestTopN(t *testing.T) {
	lb := &PeriodLeaderboard{}
	lb.Insert(entry(1, 300, 30_000, 3))
	lb.Insert(entry(2, 200, 30_000, 3))

	top := lb.TopN(3)
	if len(top) != 2 {
		t.Fatalf("TopN(3) on a 2-entry board = %d entries", len(top))
	}
	if top[0].Player != player(1) {
		t.Fatal("TopN must preserve rank order")
	}
}

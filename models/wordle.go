package models

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Demo word list. Word selection randomness comes from an external
// verifiable-random source; this list only maps indices to words.
var words = [...]string{
	"ANCHOR", "BRIDGE", "CASTLE", "DRAGON", "ENERGY", "FOREST", "GARDEN",
	"HAMMER", "ISLAND", "JUNGLE", "KERNEL", "LADDER", "MARKET", "NATURE",
	"ORANGE", "PUZZLE", "QUARTZ", "ROCKET", "SOLANA", "TEMPLE",
}

func WordCount() uint32 {
	return uint32(len(words))
}

func WordByIndex(i uint32) (string, error) {
	if i >= WordCount() {
		return "", fmt.Errorf("word index %d out of range", i)
	}
	return words[i], nil
}

// WordHash is the target-word commitment stored in the session while the
// word itself stays hidden.
func WordHash(word string) [32]byte {
	return sha256.Sum256([]byte(word))
}

// Evaluate scores a guess against the target with the standard two-pass
// rule: exact positions first, then present letters, each target letter
// consumed at most once.
func Evaluate(guess, target string) [WordLength]LetterResult {
	var result [WordLength]LetterResult
	guess = strings.ToUpper(guess)

	var used [WordLength]bool
	for i := 0; i < WordLength; i++ {
		if guess[i] == target[i] {
			result[i] = Correct
			used[i] = true
		} else {
			result[i] = Absent
		}
	}
	for i := 0; i < WordLength; i++ {
		if result[i] == Correct {
			continue
		}
		for j := 0; j < WordLength; j++ {
			if !used[j] && guess[i] == target[j] {
				result[i] = Present
				used[j] = true
				break
			}
		}
	}
	return result
}

func Solved(result [WordLength]LetterResult) bool {
	for _, r := range result {
		if r != Correct {
			return false
		}
	}
	return true
}

// Base scores by guesses used on a solved game.
var baseScores = [MaxGuesses]uint32{1000, 800, 600, 400, 300, 200, 100}

// Score computes the final score from solve correctness, guesses used and
// elapsed time. Unsolved games score zero.
func Score(solved bool, guessesUsed uint8, timeMs uint64) uint32 {
	if !solved || guessesUsed == 0 || guessesUsed > MaxGuesses {
		return 0
	}
	score := baseScores[guessesUsed-1]
	switch {
	case timeMs <= 30_000:
		score += 500
	case timeMs <= 60_000:
		score += 300
	case timeMs <= 120_000:
		score += 150
	case timeMs <= 300_000:
		score += 50
	}
	return score
}

// ValidGuess checks format only: exactly WordLength ASCII letters.
func ValidGuess(guess string) bool {
	if len(guess) != WordLength {
		return false
	}
	for i := 0; i < len(guess); i++ {
		c := guess[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

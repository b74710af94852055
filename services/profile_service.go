// services/profile_service.go
package services

import (
	"context"

	"github.com/voblegame/voble/cache"
	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/models"
	"github.com/voblegame/voble/pda"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/router"
)

// ProfileService reads player profiles and standings for display. Ledger
// accounts are the source of truth; the Redis mirror only accelerates
// rank lookups and is skipped when unavailable.
type ProfileService struct {
	router  *router.Router
	cache   *cache.RedisCache
	periods *period.Generator
}

func NewProfileService(r *router.Router, c *cache.RedisCache, periods *period.Generator) *ProfileService {
	return &ProfileService{router: r, cache: c, periods: periods}
}

func (s *ProfileService) GetProfile(ctx context.Context, wallet keys.PublicKey) (*models.UserProfile, error) {
	addr, _ := pda.UserProfile(wallet)
	data, err := s.router.Client(router.LayerBase).GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	var profile models.UserProfile
	if err := profile.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfileWithStats returns the profile flattened for JSON transport,
// including the player's mirrored daily rank when the mirror has it.
func (s *ProfileService) GetProfileWithStats(ctx context.Context, wallet keys.PublicKey) (map[string]interface{}, error) {
	profile, err := s.GetProfile(ctx, wallet)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"wallet":             wallet.String(),
		"username":           profile.Username,
		"total_games_played": profile.TotalGamesPlayed,
		"games_won":          profile.GamesWon,
		"current_streak":     profile.CurrentStreak,
		"max_streak":         profile.MaxStreak,
		"total_score":        profile.TotalScore,
		"best_score":         profile.BestScore,
		"average_guesses":    profile.AverageGuesses,
		"guess_distribution": profile.GuessDistribution,
		"achievements":       profile.Achievements,
		"last_played_period": profile.LastPlayedPeriod,
	}

	if s.cache != nil {
		id := s.periods.Current(period.Daily)
		rank, err := s.cache.Rank(ctx, period.Daily, id, wallet.String())
		if err == nil {
			result["daily_rank"] = rank + 1
		} else {
			logger.Log.Debugw("Rank lookup missed", "wallet", wallet, "error", err)
		}
	}
	return result, nil
}

// GetLeaderboard reads a period leaderboard from the base layer.
func (s *ProfileService) GetLeaderboard(ctx context.Context, t period.Type, id string) (*models.PeriodLeaderboard, error) {
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

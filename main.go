package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/voblegame/voble/cache"
	"github.com/voblegame/voble/config"
	"github.com/voblegame/voble/game"
	"github.com/voblegame/voble/keys"
	"github.com/voblegame/voble/ledger"
	"github.com/voblegame/voble/logger"
	"github.com/voblegame/voble/models"
	"github.com/voblegame/voble/monitor"
	"github.com/voblegame/voble/network"
	"github.com/voblegame/voble/pda"
	"github.com/voblegame/voble/period"
	"github.com/voblegame/voble/persistence"
	"github.com/voblegame/voble/router"
	"github.com/voblegame/voble/server"
	"github.com/voblegame/voble/services"
	"github.com/voblegame/voble/settle"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Initialize the execution layers. The base layer restores from the
	// database; the rollup always starts empty.
	base := ledger.NewMemory(ledger.Base, nil)
	rollup := ledger.NewMemory(ledger.Rollup, nil)
	ledger.Pair(base, rollup)
	if err := base.SetStore(db); err != nil {
		logger.Log.Fatalf("Failed to restore ledger state: %v", err)
	}

	authority := keys.DeriveSigner([]byte(cfg.Settlement.AuthoritySeed))
	if err := ensureGenesis(base, authority.Public, cfg); err != nil {
		logger.Log.Fatalf("Failed to write genesis config: %v", err)
	}

	// Shared plumbing
	mon := monitor.NewMonitor("voble")
	mon.StartServer(cfg.Server.MetricsAddress)

	periods := period.NewGenerator(nil)
	r := router.New(base, rollup, cfg.Ledger.ConfirmTimeout, router.RetryPolicy{
		MaxAttempts: cfg.Ledger.RetryAttempts,
		Backoff:     cfg.Ledger.RetryBackoff,
	}, mon)

	gameService := game.NewService(r, periods, mon)

	engine := settle.NewEngine(r, authority, winnerSplits(cfg), periods, mon)
	engine.SetAuditLog(db)

	var redisCache *cache.RedisCache
	if cfg.Redis.Address != "" {
		redisCache = cache.NewRedisCache(cfg.Redis.Address)
		if err := redisCache.Ping(context.Background()); err != nil {
			logger.Log.Warnf("Redis unavailable, standings mirror disabled: %v", err)
			redisCache = nil
		} else {
			engine.SetStandingsMirror(redisCache)
		}
	}

	profileService := services.NewProfileService(r, redisCache, periods)

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, cfg.Server.RPCAddress,
		gameService, profileService, engine, periods, mon)
	if cfg.Ledger.FaucetAmount > 0 {
		gameServer.EnableFaucet(base.Fund, cfg.Ledger.FaucetAmount)
	}

	// Push every fresh settlement to connected players.
	engine.SetNotifier(func(report *settle.Report) {
		winners := make([]string, len(report.Winners))
		for i, w := range report.Winners {
			winners[i] = w.String()
		}
		payload, err := json.Marshal(map[string]interface{}{
			"period_type": report.PeriodType.String(),
			"period_id":   report.PeriodID,
			"prize_pool":  report.PrizePool,
			"winners":     winners,
			"amounts":     report.Amounts,
		})
		if err != nil {
			return
		}
		gameServer.Broadcaster().BroadcastToAll(network.MsgTypePeriodSettled, payload)
	})

	scheduler, err := settle.NewScheduler(engine, periods)
	if err != nil {
		logger.Log.Fatalf("Failed to create settlement scheduler: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		logger.Log.Fatalf("Failed to start settlement scheduler: %v", err)
	}

	// Start Server
	logger.Log.Infof("Starting gateway on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

// ensureGenesis writes the global config on first boot only; a restored
// ledger keeps its existing config.
func ensureGenesis(base *ledger.Memory, authority keys.PublicKey, cfg *config.Config) error {
	addr, _ := pda.GlobalConfig()
	_, err := base.GetAccount(context.Background(), addr)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	return base.Genesis(models.GlobalConfig{
		Authority:     authority,
		TicketPrice:   cfg.Ledger.TicketPrice,
		SplitDaily:    cfg.Settlement.TicketSplits.Daily,
		SplitWeekly:   cfg.Settlement.TicketSplits.Weekly,
		SplitMonthly:  cfg.Settlement.TicketSplits.Monthly,
		SplitPlatform: cfg.Settlement.TicketSplits.Platform,
		SplitLucky:    cfg.Settlement.TicketSplits.Lucky,
		WinnerSplits:  winnerSplits(cfg),
	})
}

func winnerSplits(cfg *config.Config) [models.TopWinnersCount]uint16 {
	var splits [models.TopWinnersCount]uint16
	for i := 0; i < len(splits) && i < len(cfg.Settlement.WinnerSplits); i++ {
		splits[i] = cfg.Settlement.WinnerSplits[i]
	}
	return splits
}

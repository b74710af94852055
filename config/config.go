package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// LedgerConfig tunes transaction submission against both execution layers.
type LedgerConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	TicketPrice    uint64        `mapstructure:"ticket_price"`
	// FaucetAmount, when non-zero, credits new wallets at registration.
	// Demo deployments only.
	FaucetAmount uint64 `mapstructure:"faucet_amount"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	Address string `mapstructure:"address"`
}

type SettlementConfig struct {
	// AuthoritySeed deterministically derives the settlement authority
	// keypair. Must match the authority recorded in the global config.
	AuthoritySeed string       `mapstructure:"authority_seed"`
	WinnerSplits  []uint16     `mapstructure:"winner_splits"`
	TicketSplits  SplitsConfig `mapstructure:"ticket_splits"`
}

// SplitsConfig divides each ticket across the prize pools, in basis
// points. The five shares must sum to 10000.
type SplitsConfig struct {
	Daily    uint16 `mapstructure:"daily"`
	Weekly   uint16 `mapstructure:"weekly"`
	Monthly  uint16 `mapstructure:"monthly"`
	Platform uint16 `mapstructure:"platform"`
	Lucky    uint16 `mapstructure:"lucky"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("ledger.confirm_timeout", 30*time.Second)
	viper.SetDefault("ledger.retry_attempts", 5)
	viper.SetDefault("ledger.retry_backoff", 500*time.Millisecond)
	viper.SetDefault("ledger.ticket_price", 1_000_000)
	viper.SetDefault("settlement.winner_splits", []uint16{5000, 3000, 2000})
	viper.SetDefault("settlement.ticket_splits.daily", 4000)
	viper.SetDefault("settlement.ticket_splits.weekly", 2000)
	viper.SetDefault("settlement.ticket_splits.monthly", 1500)
	viper.SetDefault("settlement.ticket_splits.platform", 1500)
	viper.SetDefault("settlement.ticket_splits.lucky", 1000)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

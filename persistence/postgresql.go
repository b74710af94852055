// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgreSQL is the plain database/sql implementation of Database, for
// deployments that prefer raw SQL over GORM.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS accounts (
            id SERIAL PRIMARY KEY,
            address VARCHAR(64) UNIQUE NOT NULL,
            data BYTEA NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS balances (
            id SERIAL PRIMARY KEY,
            address VARCHAR(64) UNIQUE NOT NULL,
            amount BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS settlements (
            id SERIAL PRIMARY KEY,
            period_type VARCHAR(16) NOT NULL,
            period_id VARCHAR(16) NOT NULL,
            winners JSONB NOT NULL,
            amounts JSONB NOT NULL,
            prize_pool BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (period_type, period_id)
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS claims (
            id SERIAL PRIMARY KEY,
            period_type VARCHAR(16) NOT NULL,
            period_id VARCHAR(16) NOT NULL,
            winner VARCHAR(64) NOT NULL,
            amount BIGINT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_accounts_address ON accounts(address);
        CREATE INDEX IF NOT EXISTS idx_balances_address ON balances(address);
        CREATE INDEX IF NOT EXISTS idx_settlements_period ON settlements(period_type, period_id);
        CREATE INDEX IF NOT EXISTS idx_claims_winner ON claims(winner);
    `)

	return err
}

func (p *PostgreSQL) SaveAccount(addr string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if data == nil {
		_, err := p.db.ExecContext(ctx, `DELETE FROM accounts WHERE address = $1`, addr)
		return err
	}

	query := `
        INSERT INTO accounts (address, data, updated_at)
        VALUES ($1, $2, CURRENT_TIMESTAMP)
        ON CONFLICT (address)
        DO UPDATE SET data = $2, updated_at = CURRENT_TIMESTAMP
    `
	_, err := p.db.ExecContext(ctx, query, addr, data)
	return err
}

func (p *PostgreSQL) SaveBalance(addr string, balance uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO balances (address, amount, updated_at)
        VALUES ($1, $2, CURRENT_TIMESTAMP)
        ON CONFLICT (address)
        DO UPDATE SET amount = $2, updated_at = CURRENT_TIMESTAMP
    `
	_, err := p.db.ExecContext(ctx, query, addr, int64(balance))
	return err
}

func (p *PostgreSQL) LoadLedger() (map[string][]byte, map[string]uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts := make(map[string][]byte)
	rows, err := p.db.QueryContext(ctx, `SELECT address, data FROM accounts`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		var data []byte
		if err := rows.Scan(&addr, &data); err != nil {
			return nil, nil, err
		}
		accounts[addr] = data
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	balances := make(map[string]uint64)
	brows, err := p.db.QueryContext(ctx, `SELECT address, amount FROM balances`)
	if err != nil {
		return nil, nil, err
	}
	defer brows.Close()
	for brows.Next() {
		var addr string
		var amount int64
		if err := brows.Scan(&addr, &amount); err != nil {
			return nil, nil, err
		}
		balances[addr] = uint64(amount)
	}
	if err := brows.Err(); err != nil {
		return nil, nil, err
	}

	return accounts, balances, nil
}

func (p *PostgreSQL) RecordSettlement(periodType, periodID string, winners []string, amounts []uint64, pool uint64) error {
	winnersJSON, err := json.Marshal(winners)
	if err != nil {
		return err
	}
	amountsJSON, err := json.Marshal(amounts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO settlements (period_type, period_id, winners, amounts, prize_pool)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (period_type, period_id)
        DO UPDATE SET winners = $3, amounts = $4, prize_pool = $5
    `
	_, err = p.db.ExecContext(ctx, query, periodType, periodID, winnersJSON, amountsJSON, int64(pool))
	return err
}

func (p *PostgreSQL) RecordClaim(periodType, periodID, winner string, amount uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
        INSERT INTO claims (period_type, period_id, winner, amount)
        VALUES ($1, $2, $3, $4)
    `
	_, err := p.db.ExecContext(ctx, query, periodType, periodID, winner, int64(amount))
	return err
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

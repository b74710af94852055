// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/voblegame/voble/models"
)

// GormPostgreSQL is the GORM-backed implementation of Database.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormAccount{},
		&models.GormBalance{},
		&models.GormSettlement{},
		&models.GormClaim{},
	)
}

func (p *GormPostgreSQL) SaveAccount(addr string, data []byte) error {
	if data == nil {
		return p.db.Where("address = ?", addr).Delete(&models.GormAccount{}).Error
	}
	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&models.GormAccount{Address: addr, Data: data}).Error
}

func (p *GormPostgreSQL) SaveBalance(addr string, balance uint64) error {
	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&models.GormBalance{Address: addr, Amount: int64(balance)}).Error
}

func (p *GormPostgreSQL) LoadLedger() (map[string][]byte, map[string]uint64, error) {
	var accounts []models.GormAccount
	if err := p.db.Find(&accounts).Error; err != nil {
		return nil, nil, err
	}
	var balances []models.GormBalance
	if err := p.db.Find(&balances).Error; err != nil {
		return nil, nil, err
	}

	accountMap := make(map[string][]byte, len(accounts))
	for _, a := range accounts {
		accountMap[a.Address] = a.Data
	}
	balanceMap := make(map[string]uint64, len(balances))
	for _, b := range balances {
		balanceMap[b.Address] = uint64(b.Amount)
	}
	return accountMap, balanceMap, nil
}

func (p *GormPostgreSQL) RecordSettlement(periodType, periodID string, winners []string, amounts []uint64, pool uint64) error {
	winnersJSON, err := json.Marshal(winners)
	if err != nil {
		return err
	}
	amountsJSON, err := json.Marshal(amounts)
	if err != nil {
		return err
	}
	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "period_type"}, {Name: "period_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"winners", "amounts", "prize_pool", "updated_at"}),
	}).Create(&models.GormSettlement{
		PeriodType: periodType,
		PeriodID:   periodID,
		Winners:    winnersJSON,
		Amounts:    amountsJSON,
		PrizePool:  int64(pool),
	}).Error
}

func (p *GormPostgreSQL) RecordClaim(periodType, periodID, winner string, amount uint64) error {
	return p.db.Create(&models.GormClaim{
		PeriodType: periodType,
		PeriodID:   periodID,
		Winner:     winner,
		Amount:     int64(amount),
	}).Error
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside one database transaction.
func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}

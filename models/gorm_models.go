// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormAccount mirrors one ledger account for durability. Data holds the
// account's binary encoding as produced by the codecs in this package.
type GormAccount struct {
	gorm.Model
	Address string `gorm:"uniqueIndex;not null;size:64"`
	Data    []byte `gorm:"not null"`
}

// GormBalance mirrors one balance-holding address.
type GormBalance struct {
	gorm.Model
	Address string `gorm:"uniqueIndex;not null;size:64"`
	Amount  int64  `gorm:"not null;default:0"`
}

// GormSettlement is the audit row for one settlement run.
type GormSettlement struct {
	gorm.Model
	PeriodType string `gorm:"index:idx_settlement_period,unique;not null"`
	PeriodID   string `gorm:"index:idx_settlement_period,unique;not null"`
	Winners    []byte `gorm:"type:jsonb"`
	Amounts    []byte `gorm:"type:jsonb"`
	PrizePool  int64  `gorm:"not null;default:0"`
}

// GormClaim is the audit row for one prize claim.
type GormClaim struct {
	gorm.Model
	PeriodType string `gorm:"not null"`
	PeriodID   string `gorm:"index;not null"`
	Winner     string `gorm:"index;not null;size:64"`
	Amount     int64  `gorm:"not null"`
}

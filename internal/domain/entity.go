package domain

import (
	"time"
)

// Asset is the persisted decimals registry entry for a currency.
type Asset struct {
	Symbol    string    `gorm:"primaryKey" json:"symbol"`
	Decimals  int       `json:"decimals"`
	IsFeeCoin bool      `json:"is_fee_coin" gorm:"index"` // Pays venue fees
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

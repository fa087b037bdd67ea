package domain

import "github.com/shopspring/decimal"

// Discrepancy describes an item whose stock does not match its ledger replay.
type Discrepancy struct {
	ItemID        string
	ItemCode      string
	CurrentStock  decimal.Decimal
	ReplayedStock decimal.Decimal
	// BrokenMovements lists ledger rows whose snapshots do not chain.
	BrokenMovements []string
}

package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "geoscore/pkg/domain"
)

// AddressRegionAggregate is the running total for one address in one region.
type AddressRegionAggregate struct {
	UserAddress      id.UserAddress
	RegionID         id.RegionID
	TxCount          int64
	TotalScore       decimal.Decimal
	FirstConfirmedAt time.Time
	LastConfirmedAt  time.Time
}

// RegionAggregate is the running total for one region.
type RegionAggregate struct {
	RegionID        id.RegionID
	TxCount         int64
	TotalScore      decimal.Decimal
	LastConfirmedAt time.Time
}

// Fold applies one confirmation to the address aggregate.
func (a *AddressRegionAggregate) Fold(score decimal.Decimal, at time.Time) {
	if a.FirstConfirmedAt.IsZero() {
		a.FirstConfirmedAt = at
	}
	a.TxCount++
	a.TotalScore = a.TotalScore.Add(score)
	a.LastConfirmedAt = at
}

// Fold applies one confirmation to the region aggregate.
func (a *RegionAggregate) Fold(score decimal.Decimal, at time.Time) {
	a.TxCount++
	a.TotalScore = a.TotalScore.Add(score)
	a.LastConfirmedAt = at
}

// Package estimate converts a deposited week into credits.
// Everything here is pure: the rate table and the current time are arguments.
package estimate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/creditledger/internal/apperrors"
	"github.com/nkiryanov/creditledger/internal/ratetable"
)

// Ledger minimum unit is 0.01 credit
const CreditPlaces = 2

type Input struct {
	Season             string
	LocationMultiplier decimal.Decimal
	RoomTypeMultiplier decimal.Decimal
}

type Breakdown struct {
	Season             ratetable.Season
	BaseValue          decimal.Decimal
	LocationTier       string
	LocationMultiplier decimal.Decimal
	RoomTypeTier       string
	RoomTypeMultiplier decimal.Decimal
	RawCredits         decimal.Decimal // before rounding
}

type Estimate struct {
	Credits        decimal.Decimal
	Breakdown      Breakdown
	ExpirationDate time.Time
}

// Calculate credits = base(season) × location × roomType, rounded half-up to the minimum unit.
// Expiration is 'now' plus the table's window.
func Calculate(rt ratetable.RateTable, in Input, now time.Time) (Estimate, error) {
	season, ok := ratetable.ParseSeason(in.Season)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: unknown season %q", apperrors.ErrInvalidRateInput, in.Season)
	}

	base, ok := rt.BaseValue(season)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: no base value for season %s", apperrors.ErrInvalidRateInput, season)
	}

	if !in.LocationMultiplier.IsPositive() {
		return Estimate{}, fmt.Errorf("%w: location multiplier must be positive", apperrors.ErrInvalidRateInput)
	}
	location, ok := rt.LocationTier(in.LocationMultiplier)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: location multiplier %s is not a configured tier", apperrors.ErrInvalidRateInput, in.LocationMultiplier)
	}

	if !in.RoomTypeMultiplier.IsPositive() {
		return Estimate{}, fmt.Errorf("%w: room type multiplier must be positive", apperrors.ErrInvalidRateInput)
	}
	room, ok := rt.RoomTypeTier(in.RoomTypeMultiplier)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: room type multiplier %s is not a configured tier", apperrors.ErrInvalidRateInput, in.RoomTypeMultiplier)
	}

	raw := base.Mul(location.Multiplier).Mul(room.Multiplier)

	return Estimate{
		// Credits are positive so rounding half away from zero is half-up
		Credits: raw.Round(CreditPlaces),
		Breakdown: Breakdown{
			Season:             season,
			BaseValue:          base,
			LocationTier:       location.Name,
			LocationMultiplier: location.Multiplier,
			RoomTypeTier:       room.Name,
			RoomTypeMultiplier: room.Multiplier,
			RawCredits:         raw,
		},
		ExpirationDate: ExpirationDate(rt, now),
	}, nil
}

// ExpirationDate of credits deposited at 'at'
func ExpirationDate(rt ratetable.RateTable, at time.Time) time.Time {
	return at.AddDate(0, rt.ExpirationMonths, 0)
}

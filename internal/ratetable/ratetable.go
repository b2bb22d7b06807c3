package ratetable

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Season string

const (
	SeasonRed   Season = "RED"   // peak demand
	SeasonWhite Season = "WHITE" // shoulder
	SeasonBlue  Season = "BLUE"  // off-peak
)

const defaultExpirationMonths = 6

// Tier is a named multiplier value accepted by the estimation
type Tier struct {
	Name       string
	Multiplier decimal.Decimal
}

// RateTable is passed explicitly to the estimation engine, there is no process-wide table
type RateTable struct {
	BaseValues    map[Season]decimal.Decimal
	LocationTiers []Tier
	RoomTypeTiers []Tier

	// Credits expire this many calendar months after deposit
	ExpirationMonths int
}

func Default() RateTable {
	return RateTable{
		BaseValues: map[Season]decimal.Decimal{
			SeasonRed:   decimal.NewFromInt(1000),
			SeasonWhite: decimal.NewFromInt(600),
			SeasonBlue:  decimal.NewFromInt(300),
		},
		LocationTiers: []Tier{
			{Name: "ECONOMY", Multiplier: decimal.RequireFromString("0.8")},
			{Name: "STANDARD", Multiplier: decimal.RequireFromString("1.0")},
			{Name: "PREMIUM", Multiplier: decimal.RequireFromString("1.5")},
			{Name: "ELITE", Multiplier: decimal.RequireFromString("2.0")},
		},
		RoomTypeTiers: []Tier{
			{Name: "STUDIO", Multiplier: decimal.RequireFromString("1.0")},
			{Name: "ONE_BEDROOM", Multiplier: decimal.RequireFromString("1.5")},
			{Name: "TWO_BEDROOM", Multiplier: decimal.RequireFromString("2.0")},
			{Name: "THREE_BEDROOM", Multiplier: decimal.RequireFromString("2.5")},
		},
		ExpirationMonths: defaultExpirationMonths,
	}
}

// Parse season name, case insensitive
func ParseSeason(s string) (Season, bool) {
	season := Season(strings.ToUpper(strings.TrimSpace(s)))
	switch season {
	case SeasonRed, SeasonWhite, SeasonBlue:
		return season, true
	default:
		return "", false
	}
}

func (rt RateTable) BaseValue(s Season) (decimal.Decimal, bool) {
	v, ok := rt.BaseValues[s]
	return v, ok
}

func (rt RateTable) LocationTier(m decimal.Decimal) (Tier, bool) {
	return findTier(rt.LocationTiers, m)
}

func (rt RateTable) RoomTypeTier(m decimal.Decimal) (Tier, bool) {
	return findTier(rt.RoomTypeTiers, m)
}

func findTier(tiers []Tier, m decimal.Decimal) (Tier, bool) {
	i := slices.IndexFunc(tiers, func(t Tier) bool { return t.Multiplier.Equal(m) })
	if i < 0 {
		return Tier{}, false
	}
	return tiers[i], true
}

// Validate checks the table is usable for estimation
func (rt RateTable) Validate() error {
	var errs []error

	for _, s := range []Season{SeasonRed, SeasonWhite, SeasonBlue} {
		v, ok := rt.BaseValues[s]
		if !ok {
			errs = append(errs, fmt.Errorf("base value for season %s is missing", s))
			continue
		}
		if !v.IsPositive() {
			errs = append(errs, fmt.Errorf("base value for season %s must be positive", s))
		}
	}

	checkTiers := func(kind string, tiers []Tier) {
		if len(tiers) == 0 {
			errs = append(errs, fmt.Errorf("%s tiers are empty", kind))
		}
		for _, t := range tiers {
			if !t.Multiplier.IsPositive() {
				errs = append(errs, fmt.Errorf("%s tier %s must have positive multiplier", kind, t.Name))
			}
		}
	}
	checkTiers("location", rt.LocationTiers)
	checkTiers("room type", rt.RoomTypeTiers)

	if rt.ExpirationMonths <= 0 {
		errs = append(errs, errors.New("expiration months must be positive"))
	}

	return errors.Join(errs...)
}

// File layout of the rate table
//
//	seasons: {RED: "1000", WHITE: "600", BLUE: "300"}
//	location_tiers: [{name: STANDARD, multiplier: "1.0"}]
//	room_type_tiers: [{name: STUDIO, multiplier: "1.0"}]
//	expiration_months: 6
type fileTable struct {
	Seasons          map[string]string `yaml:"seasons"`
	LocationTiers    []fileTier        `yaml:"location_tiers"`
	RoomTypeTiers    []fileTier        `yaml:"room_type_tiers"`
	ExpirationMonths int               `yaml:"expiration_months"`
}

type fileTier struct {
	Name       string `yaml:"name"`
	Multiplier string `yaml:"multiplier"`
}

// Parse YAML rate table. Omitted expiration_months falls back to the default window
func Parse(data []byte) (RateTable, error) {
	var f fileTable
	if err := yaml.Unmarshal(data, &f); err != nil {
		return RateTable{}, fmt.Errorf("can't parse rate table: %w", err)
	}

	rt := RateTable{
		BaseValues:       make(map[Season]decimal.Decimal, len(f.Seasons)),
		ExpirationMonths: f.ExpirationMonths,
	}
	if rt.ExpirationMonths == 0 {
		rt.ExpirationMonths = defaultExpirationMonths
	}

	for name, raw := range f.Seasons {
		season, ok := ParseSeason(name)
		if !ok {
			return RateTable{}, fmt.Errorf("unknown season %q", name)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return RateTable{}, fmt.Errorf("season %s base value: %w", name, err)
		}
		rt.BaseValues[season] = v
	}

	parseTiers := func(in []fileTier) ([]Tier, error) {
		tiers := make([]Tier, 0, len(in))
		for _, t := range in {
			m, err := decimal.NewFromString(t.Multiplier)
			if err != nil {
				return nil, fmt.Errorf("tier %s multiplier: %w", t.Name, err)
			}
			tiers = append(tiers, Tier{Name: t.Name, Multiplier: m})
		}
		return tiers, nil
	}

	var err error
	if rt.LocationTiers, err = parseTiers(f.LocationTiers); err != nil {
		return RateTable{}, err
	}
	if rt.RoomTypeTiers, err = parseTiers(f.RoomTypeTiers); err != nil {
		return RateTable{}, err
	}

	if err := rt.Validate(); err != nil {
		return RateTable{}, fmt.Errorf("invalid rate table: %w", err)
	}

	return rt, nil
}

// Load rate table from file; empty path means built-in defaults
func Load(path string) (RateTable, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RateTable{}, fmt.Errorf("can't read rate table file: %w", err)
	}

	return Parse(data)
}

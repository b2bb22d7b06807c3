package ratetable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRateTable_Default(t *testing.T) {
	rt := Default()

	require.NoError(t, rt.Validate(), "default table must be valid")
	require.Equal(t, 6, rt.ExpirationMonths)

	v, ok := rt.BaseValue(SeasonRed)
	require.True(t, ok)
	require.True(t, v.Equal(decimal.NewFromInt(1000)))
}

func TestRateTable_ParseSeason(t *testing.T) {
	tests := []struct {
		in       string
		expected Season
		ok       bool
	}{
		{"RED", SeasonRed, true},
		{"white", SeasonWhite, true},
		{" Blue ", SeasonBlue, true},
		{"GREEN", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSeason(tt.in)

			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestRateTable_Tiers(t *testing.T) {
	rt := Default()

	tier, ok := rt.LocationTier(decimal.RequireFromString("1.50"))
	require.True(t, ok, "1.50 and 1.5 are the same multiplier")
	require.Equal(t, "PREMIUM", tier.Name)

	_, ok = rt.RoomTypeTier(decimal.RequireFromString("1.75"))
	require.False(t, ok, "value outside configured tiers should not match")
}

func TestRateTable_Parse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		rt, err := Parse([]byte(`
seasons:
  RED: "1200"
  WHITE: "700.50"
  BLUE: "250"
location_tiers:
  - {name: STANDARD, multiplier: "1.0"}
  - {name: BEACHFRONT, multiplier: "1.75"}
room_type_tiers:
  - {name: STUDIO, multiplier: "1"}
expiration_months: 12
`))

		require.NoError(t, err)
		require.Equal(t, 12, rt.ExpirationMonths)
		require.True(t, rt.BaseValues[SeasonWhite].Equal(decimal.RequireFromString("700.5")))
		require.Len(t, rt.LocationTiers, 2)
		require.Equal(t, "BEACHFRONT", rt.LocationTiers[1].Name)
	})

	t.Run("default window when omitted", func(t *testing.T) {
		rt, err := Parse([]byte(`
seasons: {RED: "1", WHITE: "1", BLUE: "1"}
location_tiers: [{name: A, multiplier: "1"}]
room_type_tiers: [{name: B, multiplier: "1"}]
`))

		require.NoError(t, err)
		require.Equal(t, defaultExpirationMonths, rt.ExpirationMonths)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			data string
		}{
			{"not yaml", "seasons: [::"},
			{"unknown season", `seasons: {GOLD: "1"}`},
			{"bad number", `seasons: {RED: "lots"}`},
			{"missing season", `
seasons: {RED: "1", WHITE: "1"}
location_tiers: [{name: A, multiplier: "1"}]
room_type_tiers: [{name: B, multiplier: "1"}]
`},
			{"zero multiplier", `
seasons: {RED: "1", WHITE: "1", BLUE: "1"}
location_tiers: [{name: A, multiplier: "0"}]
room_type_tiers: [{name: B, multiplier: "1"}]
`},
			{"no room tiers", `
seasons: {RED: "1", WHITE: "1", BLUE: "1"}
location_tiers: [{name: A, multiplier: "1"}]
`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Parse([]byte(tt.data))

				require.Error(t, err)
			})
		}
	})
}

func TestRateTable_Load(t *testing.T) {
	t.Run("empty path is default", func(t *testing.T) {
		rt, err := Load("")

		require.NoError(t, err)
		require.Equal(t, defaultExpirationMonths, rt.ExpirationMonths)
		require.Len(t, rt.BaseValues, 3)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rates.yaml")
		err := os.WriteFile(path, []byte(`
seasons: {RED: "1000", WHITE: "600", BLUE: "300"}
location_tiers: [{name: STANDARD, multiplier: "1.0"}]
room_type_tiers: [{name: STUDIO, multiplier: "1.0"}]
expiration_months: 3
`), 0o600)
		require.NoError(t, err)

		rt, err := Load(path)

		require.NoError(t, err)
		require.Equal(t, 3, rt.ExpirationMonths)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

		require.Error(t, err)
	})
}

package db_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/creditledger/internal/db"
	"github.com/nkiryanov/creditledger/internal/testutil"
)

func TestConnectAndMigrate(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("migrate is repeatable", func(t *testing.T) {
		version, err := db.Migrate(pg.DSN)

		require.NoError(t, err)
		require.Equal(t, uint(1), version)
	})

	t.Run("connections carry application name", func(t *testing.T) {
		pool, err := db.Connect(t.Context(), pg.DSN)
		require.NoError(t, err)
		t.Cleanup(pool.Close)

		var name string
		err = pool.QueryRow(t.Context(), "SELECT current_setting('application_name')").Scan(&name)

		require.NoError(t, err)
		require.Equal(t, db.ApplicationName, name)
	})

	t.Run("application name from dsn wins", func(t *testing.T) {
		pool, err := db.Connect(t.Context(), pg.DSN+"&application_name=ledger-admin")
		require.NoError(t, err)
		t.Cleanup(pool.Close)

		var name string
		err = pool.QueryRow(t.Context(), "SELECT current_setting('application_name')").Scan(&name)

		require.NoError(t, err)
		require.Equal(t, "ledger-admin", name)
	})

	t.Run("bad dsn", func(t *testing.T) {
		_, err := db.Connect(t.Context(), "postgres://%zz")

		require.Error(t, err)
	})
}

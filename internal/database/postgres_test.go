package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestPostgresDBManager needs Docker. Set PATRON_INTEGRATION=1 to run it, or
// PATRON_TEST_PG_DSN to reuse an existing database.
func TestPostgresDBManager(t *testing.T) {
	dsn := os.Getenv("PATRON_TEST_PG_DSN")
	if dsn == "" && os.Getenv("PATRON_INTEGRATION") == "" {
		t.Skip("PATRON_INTEGRATION not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	if dsn == "" {
		container, err := postgres.Run(ctx,
			"postgres:16",
			postgres.WithDatabase("patrons"),
			postgres.WithUsername("patrons"),
			postgres.WithPassword("patrons"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := ConnectDB(ctx, dsn)
	require.NoError(t, err)
	m := NewPostgresDBManager(pool)
	t.Cleanup(m.Close)

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS patron_checksums; DROP TABLE IF EXISTS ingest_runs;`)
	require.NoError(t, err)

	runStoreContract(t, m)
}

package testutil

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/storage/database"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PrepareDB opens the PostgreSQL test database, migrates it and empties it.
// The test is skipped unless TEST_DATABASE_HOST is set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST is not set")
	}

	conf := NewConfig()
	conf.Database.Engine = core.EnginePostgres
	conf.Database.Host = host
	conf.Database.Port = getenv("TEST_DATABASE_PORT", "5432")
	conf.Database.Name = getenv("TEST_DATABASE_NAME", "coursehub_test")
	conf.Database.User = getenv("TEST_DATABASE_USER", "coursehub")
	conf.Database.Password = getenv("TEST_DATABASE_PASSWORD", "coursehub")
	conf.Database.AdminUser = os.Getenv("TEST_DATABASE_ADMIN_USER")
	conf.Database.AdminPassword = os.Getenv("TEST_DATABASE_ADMIN_PASSWORD")
	conf.Database.DisableTLS = true

	require.NoError(t, database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB))
	ResetDB(t, db)
	return db
}

// ResetDB deletes every row.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE "user", enrollment, course, course_module, lesson, notification_setting CASCADE`)
	require.NoError(t, err)
}

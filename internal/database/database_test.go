package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverConfig_TLSPolicy(t *testing.T) {
	tests := []struct {
		name       string
		dsn        string
		production bool
		wantTLS    string
	}{
		{"production verifies", "u:p@tcp(db:3306)/nabi", true, "true"},
		{"production overrides skip-verify", "u:p@tcp(db:3306)/nabi?tls=skip-verify", true, "true"},
		{"development prefers tls", "u:p@tcp(db:3306)/nabi", false, "preferred"},
		{"development keeps explicit tls", "u:p@tcp(db:3306)/nabi?tls=false", false, "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := driverConfig(tt.dsn, tt.production)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTLS, cfg.TLSConfig)
			assert.True(t, cfg.ParseTime)
			assert.Equal(t, "nabi", cfg.DBName)
		})
	}
}

func TestDriverConfig_InvalidDSN(t *testing.T) {
	_, err := driverConfig("not a dsn", false)
	assert.Error(t, err)
}

func TestMigrate_RunsEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS creations").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

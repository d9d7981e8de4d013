package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/digkill/NabiBot/internal/config"
)

// Connect opens the MySQL connection with sensible pooling defaults and the
// TLS policy of the current deployment environment.
func Connect(cfg config.Config) (*sql.DB, error) {
	dsnCfg, err := driverConfig(cfg.MySQLDSN, cfg.IsProduction())
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(dsnCfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetConnMaxLifetime(time.Minute * 5)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}

// driverConfig parses the DSN and applies the TLS policy: production always
// verifies the server certificate, other environments use TLS when the server
// offers it without verifying, unless the DSN already sets tls explicitly.
func driverConfig(dsn string, production bool) (*mysql.Config, error) {
	dsnCfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}

	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC

	switch {
	case production:
		dsnCfg.TLSConfig = "true"
	case dsnCfg.TLSConfig == "":
		dsnCfg.TLSConfig = "preferred"
	}

	return dsnCfg, nil
}

// Migrate runs the bootstrap schema to ensure required tables exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

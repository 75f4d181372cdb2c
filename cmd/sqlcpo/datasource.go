// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlcpo"
)

// openDatasource opens the database configured by cfg. The returned
// function releases it.
func openDatasource(ctx context.Context, cfg config, logger *slog.Logger) (*sqlcpo.DB, func() error, error) {
	var sqldb *sql.DB
	closeDB := func() error { return nil }
	switch cfg.Driver {
	case "sqlite3":
		var err error
		sqldb, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open sqlite3 database: %w", err)
		}
		closeDB = sqldb.Close
	case "dqlite":
		var err error
		sqldb, closeDB, err = openDqlite(ctx, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open dqlite database: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("invalid driver %q", cfg.Driver)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("cannot reach database: %w", err)
	}
	logger.Debug("opened database", "driver", cfg.Driver, "dsn", cfg.DSN)
	return sqlcpo.NewDB(sqldb), closeDB, nil
}

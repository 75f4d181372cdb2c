// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build libdqlite

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/canonical/go-dqlite/app"
	"github.com/canonical/go-dqlite/client"
)

// openDqlite starts a dqlite node in cfg.DataDir, waits for it to join the
// cluster and opens the database named by cfg.DSN.
func openDqlite(ctx context.Context, cfg config, logger *slog.Logger) (*sql.DB, func() error, error) {
	if cfg.DataDir == "" {
		return nil, nil, fmt.Errorf("data-dir is required")
	}
	opts := []app.Option{app.WithLogFunc(dqliteLogFunc(logger))}
	if cfg.Address != "" {
		opts = append(opts, app.WithAddress(cfg.Address))
	}
	if len(cfg.Cluster) > 0 {
		opts = append(opts, app.WithCluster(cfg.Cluster))
	}
	node, err := app.New(cfg.DataDir, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := node.Ready(ctx); err != nil {
		node.Close()
		return nil, nil, err
	}
	sqldb, err := node.Open(ctx, cfg.DSN)
	if err != nil {
		node.Close()
		return nil, nil, err
	}
	closeDB := func() error {
		err := sqldb.Close()
		if herr := node.Handover(context.Background()); err == nil {
			err = herr
		}
		if cerr := node.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return sqldb, closeDB, nil
}

// dqliteLogFunc sends dqlite logs to logger.
func dqliteLogFunc(logger *slog.Logger) client.LogFunc {
	return func(l client.LogLevel, format string, a ...any) {
		level := slog.LevelInfo
		switch l {
		case client.LogDebug:
			level = slog.LevelDebug
		case client.LogWarn:
			level = slog.LevelWarn
		case client.LogError:
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, fmt.Sprintf(format, a...), "component", "dqlite")
	}
}

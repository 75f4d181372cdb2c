// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build !libdqlite

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

func openDqlite(context.Context, config, *slog.Logger) (*sql.DB, func() error, error) {
	return nil, nil, fmt.Errorf("dqlite support not built in, rebuild with -tags libdqlite")
}

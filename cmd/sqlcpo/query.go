// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlcpo"
	"github.com/canonical/sqlcpo/stream"
)

func newQueryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "query <request.yaml>",
		Short: "Run a request and stream the rows it returns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer e.writeMetrics()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return e.query(ctx, args[0])
		},
	}
}

func newExecCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <request.yaml>",
		Short: "Run a request and print the number of rows affected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer e.writeMetrics()
			return e.exec(cmd.Context(), args[0])
		},
	}
}

// query streams the rows of the request to the output. Interrupting the
// command cancels the stream.
func (e *env) query(ctx context.Context, path string) (err error) {
	compiled, err := e.compile(path)
	if err != nil {
		return err
	}
	db, closeDB, err := openDatasource(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(); err == nil {
			err = cerr
		}
	}()

	ch, err := sqlcpo.Stream[sqlcpo.M](ctx, db, compiled, e.cfg.Capacity, stream.Options{
		Logger:  e.logger,
		Metrics: e.metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		// Stops the producer when the output fails or ctx is done.
		if err != nil {
			ch.Cancel()
			<-ch.Done()
		}
	}()
	e.logger.Debug("streaming rows", "stream", ch.ID(), "sql", compiled.SQL())

	enc, done, err := newEncoder(e.cfg.Format, e.out)
	if err != nil {
		return err
	}
	rows := 0
	for {
		row, err := ch.Take(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
		if err := enc.Encode(printable(row)); err != nil {
			return err
		}
		rows++
	}
	e.logger.Info("query finished", "stream", ch.ID(), "rows", rows)
	return done()
}

// exec runs the request without reading rows.
func (e *env) exec(ctx context.Context, path string) (err error) {
	compiled, err := e.compile(path)
	if err != nil {
		return err
	}
	db, closeDB, err := openDatasource(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(); err == nil {
			err = cerr
		}
	}()

	outcome := &sqlcpo.Outcome{}
	if err := db.Query(ctx, compiled).Run(outcome); err != nil {
		return err
	}
	n, err := outcome.Result().RowsAffected()
	if err != nil {
		return err
	}
	enc, done, err := newEncoder(e.cfg.Format, e.out)
	if err != nil {
		return err
	}
	if err := enc.Encode(outcomeOutput{RowsAffected: n}); err != nil {
		return err
	}
	return done()
}

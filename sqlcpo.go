// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlcpo

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/canonical/sqlcpo/internal/bind"
	"github.com/canonical/sqlcpo/internal/typeinfo"
)

// M is a convenience type that can be used to scan rows by column name. M is
// not a special type, any named map type with string keys can be used.
//
//	var people []sqlcpo.M
//	err := db.Query(ctx, compiled).GetAll(&people)
type M map[string]any

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// stmtCache stores the driver prepared statements associated to the
// compiled queries.
var stmtCache = newStatementCache()

// Encoder converts a bound value into one the database driver accepts.
type Encoder func(v any) (any, error)

type DB struct {
	// cacheID is used to look up the cached driver prepared statements
	// prepared on this database.
	cacheID uint64
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
	// ds encodes bound values for the driver.
	ds *bind.SQL
	// registry holds the type information used to scan rows.
	registry *typeinfo.Registry
}

// NewDB creates a new [sqlcpo.DB] from a [sql.DB].
func NewDB(sqldb *sql.DB) *DB {
	if sqldb == nil {
		return nil
	}
	return stmtCache.newDB(sqldb)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// RegisterEncoder sets the encoder used for bound values with the type of
// sample. Values of types without an encoder that the driver does not
// accept are bound as MessagePack blobs.
func (db *DB) RegisterEncoder(sample any, enc Encoder) {
	db.ds.Register(reflect.TypeOf(sample), bind.Encoder(enc))
}

// Querier is implemented by [DB] and [TX].
type Querier interface {
	Query(ctx context.Context, c *Compiled) *Query
}

var _ Querier = (*DB)(nil)
var _ Querier = (*TX)(nil)

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	// run executes the Query against the DB or the TX. Rows are only
	// returned when withRows is true.
	run      func(ctx context.Context, withRows bool) (*sql.Rows, sql.Result, error)
	ctx      context.Context
	err      error
	registry *typeinfo.Registry
}

// Iterator is used to iterate over the results of the query.
type Iterator struct {
	registry *typeinfo.Registry
	rows     *sql.Rows
	cols     []string
	err      error
	result   sql.Result
	started  bool
}

// Query builds a new query from a context and a compiled query. The query is
// run on the database when one of [Query.Iter], [Query.Run], [Query.Get] or
// [Query.GetAll] is executed.
func (db *DB) Query(ctx context.Context, c *Compiled) *Query {
	if ctx == nil {
		ctx = context.Background()
	}

	args, err := bind.ArgList(db.ds, c.qe.QueryBinds())
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context, withRows bool) (rows *sql.Rows, result sql.Result, err error) {
		sqlstmt, err := stmtCache.prepareStmt(innerCtx, db.cacheID, db.sqldb, c)
		if err != nil {
			return nil, nil, err
		}
		if withRows {
			rows, err = sqlstmt.QueryContext(innerCtx, args...)
		} else {
			result, err = sqlstmt.ExecContext(innerCtx, args...)
		}
		return rows, result, err
	}

	return &Query{run: run, ctx: ctx, registry: db.registry}
}

// Run is used to run a query on a database and disregard any results.
// A pointer to an empty [Outcome] struct may be provided to fill it with
// information about query execution.
func (q *Query) Run(outcome ...*Outcome) error {
	if q.err != nil {
		return q.err
	}
	_, result, err := q.run(q.ctx, false)
	if err != nil {
		return err
	}
	for _, oc := range outcome {
		if oc != nil {
			oc.result = result
		}
	}
	return nil
}

// Get runs the query and scans the first row returned into the output
// argument, a pointer to a struct or a map with string keys. It returns
// [ErrNoRows] if no results were found.
//
// A pointer to an empty [Outcome] struct may be provided as the first output
// variable to fill it with information about query execution.
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(outputArgs) > 0 {
		if oc, ok := outputArgs[0].(*Outcome); ok {
			outcome = oc
			outputArgs = outputArgs[1:]
		}
	}
	if len(outputArgs) == 0 {
		return q.Run(outcome)
	}
	if len(outputArgs) > 1 {
		return fmt.Errorf("cannot get result: need one output argument, got %d", len(outputArgs))
	}

	var err error
	iter := q.Iter()
	if outcome != nil {
		err = iter.Get(outcome)
	}
	if err == nil && !iter.Next() {
		err = iter.Close()
		if err == nil {
			err = ErrNoRows
		}
		return err
	}
	if err == nil {
		err = iter.Get(outputArgs[0])
	}
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}

	var cols []string
	rows, result, err := q.run(q.ctx, true)
	if err == nil {
		cols, err = rows.Columns()
		if err != nil {
			rows.Close()
		}
	}
	if err != nil {
		return &Iterator{err: err}
	}

	return &Iterator{registry: q.registry, rows: rows, cols: cols, result: result}
}

// Next prepares the next row for [Iterator.Get]. If an error occurs during
// iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Get scans the row from the previous [Iterator.Next] call into the output
// argument, a pointer to a struct or a map with string keys. Struct fields
// are matched to columns by their `db` tag.
//
// Before the first call of [Iterator.Next] a pointer to an empty [Outcome]
// struct may be passed to Get to fill it with information about query
// execution.
func (iter *Iterator) Get(outputArg any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	if !iter.started {
		if oc, ok := outputArg.(*Outcome); ok {
			oc.result = iter.result
			return nil
		}
		return fmt.Errorf("cannot call Get before Next unless getting outcome")
	}

	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}

	ptrs, onSuccess, err := iter.registry.ScanArgs(iter.cols, outputArg)
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	onSuccess()
	return nil
}

// Close finishes the iteration and returns any errors encountered. Close can
// be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	iter.started = true
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	if err == nil {
		err = iter.rows.Err()
	}
	iter.rows = nil
	if iter.err != nil {
		return iter.err
	}
	iter.err = err
	return err
}

// Outcome holds metadata about executed queries, and can be provided as the
// first output argument to any of the Get methods to populate it with
// information about the query execution.
type Outcome struct {
	result sql.Result
}

// Result returns a [sql.Result] containing information about the query
// execution. If no result is set then Result returns nil.
func (o *Outcome) Result() sql.Result {
	return o.result
}

// GetAll iterates over the query and scans all rows into the provided slice.
// sliceArg must be a pointer to a slice of structs, pointers to structs or
// maps with string keys. A pointer to an empty [Outcome] struct may be
// provided as the first argument to get information about query execution.
//
// [ErrNoRows] will be returned if no rows are found.
func (q *Query) GetAll(sliceArgs ...any) (err error) {
	if q.err != nil {
		return q.err
	}

	if len(sliceArgs) > 0 {
		if outcome, ok := sliceArgs[0].(*Outcome); ok {
			outcome.result = nil
			sliceArgs = sliceArgs[1:]
		}
	}
	if len(sliceArgs) != 1 {
		return fmt.Errorf("need one pointer to slice, got %d arguments", len(sliceArgs))
	}
	// Check the slice input is valid using reflection.
	ptrVal := reflect.ValueOf(sliceArgs[0])
	if ptrVal.Kind() != reflect.Pointer {
		return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
	}
	if ptrVal.IsNil() {
		return fmt.Errorf("need pointer to slice, got nil")
	}
	sliceVal := ptrVal.Elem()
	if sliceVal.Kind() != reflect.Slice {
		return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
	}
	elemType := sliceVal.Type().Elem()
	switch elemType.Kind() {
	case reflect.Pointer:
		if elemType.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("need slice of structs/maps, got slice of pointer to %s", elemType.Elem().Kind())
		}
	case reflect.Struct, reflect.Map:
	default:
		return fmt.Errorf("need slice of structs/maps, got slice of %s", elemType.Kind())
	}

	// Iterate over the query results.
	rowsReturned := false
	iter := q.Iter()
	for iter.Next() {
		rowsReturned = true
		var outputArg reflect.Value
		switch elemType.Kind() {
		case reflect.Pointer:
			outputArg = reflect.New(elemType.Elem())
		case reflect.Struct:
			outputArg = reflect.New(elemType)
		case reflect.Map:
			outputArg = reflect.MakeMap(elemType)
		}
		if err := iter.Get(outputArg.Interface()); err != nil {
			iter.Close()
			return err
		}
		if elemType.Kind() == reflect.Struct {
			outputArg = outputArg.Elem()
		}
		sliceVal = reflect.Append(sliceVal, outputArg)
	}
	err = iter.Close()
	if err != nil {
		return err
	} else if !rowsReturned {
		return ErrNoRows
	}

	ptrVal.Elem().Set(sliceVal)
	return nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended
// with a [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a new query from a context and a compiled query. The query is
// run on the database when one of [Query.Iter], [Query.Run], [Query.Get] or
// [Query.GetAll] is executed.
func (tx *TX) Query(ctx context.Context, c *Compiled) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}

	args, err := bind.ArgList(tx.db.ds, c.qe.QueryBinds())
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context, withRows bool) (rows *sql.Rows, result sql.Result, err error) {
		sqlstmt, ok := stmtCache.lookupStmt(tx.db.cacheID, c)
		if ok {
			// Register the prepared statement on the transaction. Note that
			// this does not re-prepare the statement on the driver.
			// The txstmt is closed by database/sql when the transaction is
			// commited or rolled back.
			txstmt := tx.sqltx.StmtContext(innerCtx, sqlstmt)
			if withRows {
				rows, err = txstmt.QueryContext(innerCtx, args...)
			} else {
				result, err = txstmt.ExecContext(innerCtx, args...)
			}
			return rows, result, err
		}

		if withRows {
			rows, err = tx.sqltx.QueryContext(innerCtx, c.SQL(), args...)
		} else {
			result, err = tx.sqltx.ExecContext(innerCtx, c.SQL(), args...)
		}
		return rows, result, err
	}

	return &Query{ctx: ctx, run: run, registry: tx.db.registry}
}

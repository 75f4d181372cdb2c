// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlcpo

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/canonical/sqlcpo/internal/bind"
	"github.com/canonical/sqlcpo/internal/expr"
)

// compiledIDCount and dbIDCount are global variables used to generate
// unique IDs.
var compiledIDCount uint64
var dbIDCount uint64

type dbID = uint64
type compiledID = uint64

// statementCache caches the sql.Stmt objects associated with each
// sqlcpo.Compiled. A compiled query can correspond to multiple sql.Stmt
// values on different databases. The cache is indexed by the Compiled ID and
// the DB ID.
//
// The cache closes sql.Stmt objects with a finalizer on the Compiled.
// Similarly a finalizer is set on sqlcpo.DB objects to close all statements
// prepared on the DB, close the DB, and remove references to the DB from the
// cache.
//
// The mutex must be locked when accessing either the compiledDBCache or the
// dbCompiledCache.
type statementCache struct {
	compiledDBCache map[compiledID]map[dbID]*sql.Stmt
	dbCompiledCache map[dbID]map[compiledID]bool
	mutex           sync.RWMutex
}

var once sync.Once
var singleStmtCache *statementCache

// newStatementCache returns the single instance of the statement cache.
func newStatementCache() *statementCache {
	once.Do(func() {
		singleStmtCache = &statementCache{
			compiledDBCache: map[compiledID]map[dbID]*sql.Stmt{},
			dbCompiledCache: map[dbID]map[compiledID]bool{},
		}
	})
	return singleStmtCache
}

// newCompiled returns a new Compiled and allocates it in the cache. A
// finalizer is set on the Compiled to remove all sql.Stmt values associated
// with it from the cache and then run Close on them.
func (sc *statementCache) newCompiled(qe *expr.QueryExpr) *Compiled {
	cacheID := atomic.AddUint64(&compiledIDCount, 1)
	c := &Compiled{qe: qe, cacheID: cacheID}
	sc.mutex.Lock()
	sc.compiledDBCache[cacheID] = map[dbID]*sql.Stmt{}
	sc.mutex.Unlock()
	runtime.SetFinalizer(c, sc.compiledFinalizer)
	return c
}

// newDB returns a new sqlcpo.DB and allocates it in the cache. A finalizer
// is set on the DB which removes it from the cache, closes all sql.Stmt
// values prepared upon it and then closes the sql.DB.
func (sc *statementCache) newDB(sqldb *sql.DB) *DB {
	cacheID := atomic.AddUint64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.dbCompiledCache[cacheID] = map[compiledID]bool{}
	sc.mutex.Unlock()
	db := &DB{
		sqldb:    sqldb,
		cacheID:  cacheID,
		ds:       bind.NewSQL(),
		registry: defaultCompiler.registry,
	}
	runtime.SetFinalizer(db, sc.dbFinalizer)
	return db
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a
// sql.DB or sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// lookupStmt returns the statement of c prepared on the DB, if there is one.
func (sc *statementCache) lookupStmt(dbID dbID, c *Compiled) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	sqlstmt, ok := sc.compiledDBCache[c.cacheID][dbID]
	return sqlstmt, ok
}

// prepareStmt prepares a compiled query on a prepareSubstrate. It first
// checks in the cache to see if it has already been prepared on the DB.
// The prepareSubstrate must be associated with the DB of dbID.
func (sc *statementCache) prepareStmt(ctx context.Context, dbID dbID, ps prepareSubstrate, c *Compiled) (*sql.Stmt, error) {
	// The compiled ID is only removed from the cache when the finalizer is
	// run, so it is always in compiledDBCache.
	sqlstmt, ok := sc.lookupStmt(dbID, c)
	if ok {
		return sqlstmt, nil
	}
	sqlstmt, err := ps.PrepareContext(ctx, c.SQL())
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if sqlstmtAlt, ok := sc.compiledDBCache[c.cacheID][dbID]; ok {
		sqlstmt.Close()
		return sqlstmtAlt, nil
	}
	sc.compiledDBCache[c.cacheID][dbID] = sqlstmt
	sc.dbCompiledCache[dbID][c.cacheID] = true
	return sqlstmt, nil
}

// compiledFinalizer removes a Compiled from the statement caches and closes
// its statements.
func (sc *statementCache) compiledFinalizer(c *Compiled) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for dbCacheID, sqlstmt := range sc.compiledDBCache[c.cacheID] {
		sqlstmt.Close()
		delete(sc.dbCompiledCache[dbCacheID], c.cacheID)
	}
	delete(sc.compiledDBCache, c.cacheID)
}

// dbFinalizer closes and removes from the cache all sql.Stmt values
// prepared on the database, removes the database from the cache, then
// closes the sql.DB.
func (sc *statementCache) dbFinalizer(db *DB) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for cID := range sc.dbCompiledCache[db.cacheID] {
		dbCache := sc.compiledDBCache[cID]
		dbCache[db.cacheID].Close()
		delete(dbCache, db.cacheID)
	}
	delete(sc.dbCompiledCache, db.cacheID)
	db.sqldb.Close()
}

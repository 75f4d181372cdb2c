// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlcpo

import (
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"

	"github.com/canonical/sqlcpo/criteria"
	"github.com/canonical/sqlcpo/internal/expr"
	"github.com/canonical/sqlcpo/internal/typeinfo"
)

// Request describes a query to compile.
//
// Field names used in the criteria are resolved against the `db` tags of
// Entity, or against Columns if Entity is nil. Names that do not resolve are
// written into the query as they are.
type Request struct {
	// Template is the base query. Filters, ORDER BY lists and native
	// fragments are spliced in at their markers or appended to it.
	Template string
	// Args are bound to the "?" placeholders already present in Template.
	Args []any

	// Entity is a sample of the struct the criteria refer to.
	Entity any
	// Columns maps field names to columns when there is no Entity.
	Columns map[string]string

	Where   []*criteria.Tree
	OrderBy []criteria.OrderBy
	Native  []criteria.Native
}

// Bind is the value bound to one placeholder of a compiled query.
type Bind struct {
	// Name is the field the value was compared against, or "argN" for the
	// Nth template argument.
	Name  string
	Value any
}

// Compiled is a compiled query ready to be run on a [DB] or [TX]. It can be
// run any number of times.
type Compiled struct {
	// cacheID is used to look up the driver prepared statements associated
	// with this query.
	cacheID uint64
	qe      *expr.QueryExpr
}

// SQL returns the text of the query.
func (c *Compiled) SQL() string {
	return c.qe.QuerySQL()
}

// Binds returns the values bound to the placeholders of the query, in
// placeholder order.
func (c *Compiled) Binds() []Bind {
	binds := c.qe.QueryBinds()
	out := make([]Bind, len(binds))
	for i, bv := range binds {
		out[i] = Bind{Name: bv.Name, Value: bv.Value}
	}
	return out
}

// CompilerOptions configure a [Compiler].
type CompilerOptions struct {
	// Logger receives compiled queries at debug level. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
	// Metrics is the set the compiler counters are registered in. If nil,
	// the default set of the metrics package is used.
	Metrics *metrics.Set
}

// Compiler compiles requests. It caches the type information of the
// entities it has seen; a Compiler can be used concurrently.
type Compiler struct {
	registry *typeinfo.Registry
	logger   *slog.Logger
	compiled *metrics.Counter
	failed   *metrics.Counter
}

// NewCompiler returns a compiler with an empty type cache.
func NewCompiler(opts CompilerOptions) *Compiler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counter := metrics.GetOrCreateCounter
	if opts.Metrics != nil {
		counter = opts.Metrics.GetOrCreateCounter
	}
	return &Compiler{
		registry: typeinfo.NewRegistry(),
		logger:   logger,
		compiled: counter("sqlcpo_queries_compiled_total"),
		failed:   counter("sqlcpo_query_compile_errors_total"),
	}
}

var defaultCompiler = NewCompiler(CompilerOptions{})

// Compile compiles req with the default compiler.
func Compile(req Request) (*Compiled, error) {
	return defaultCompiler.Compile(req)
}

// MustCompile is the same as [Compile] except that it panics on error.
func MustCompile(req Request) *Compiled {
	c, err := Compile(req)
	if err != nil {
		panic(err)
	}
	return c
}

// RegisterTransform registers a function applied by the default compiler's
// databases to the values bound for a field of the entity type of sample.
func RegisterTransform(sample any, field string, f func(any) (any, error)) error {
	return defaultCompiler.RegisterTransform(sample, field, f)
}

// Compile compiles req. The Nth placeholder of the returned query is bound
// to the Nth value of [Compiled.Binds].
func (c *Compiler) Compile(req Request) (*Compiled, error) {
	in := expr.Input{
		Template: req.Template,
		Args:     req.Args,
		Where:    req.Where,
		OrderBy:  req.OrderBy,
		Native:   req.Native,
	}
	switch {
	case req.Entity != nil:
		e, err := c.registry.Lookup(req.Entity)
		if err != nil {
			c.failed.Inc()
			return nil, fmt.Errorf("cannot compile query: %w", err)
		}
		in.Resolver = e
	case req.Columns != nil:
		in.Resolver = expr.ColumnMap(req.Columns)
	}

	qe, err := expr.Compile(in)
	if err != nil {
		c.failed.Inc()
		return nil, err
	}
	c.compiled.Inc()
	c.logger.Debug("compiled query", "sql", qe.QuerySQL(), "binds", len(qe.QueryBinds()))
	return stmtCache.newCompiled(qe), nil
}

// RegisterTransform registers a function applied to the values bound for a
// field of the entity type of sample, before they are encoded. Transforms are
// looked up when a query is run, so queries compiled earlier use it too.
func (c *Compiler) RegisterTransform(sample any, field string, f func(any) (any, error)) error {
	return c.registry.RegisterTransform(sample, field, f)
}

// Invalidate drops the cached type information of the type of sample.
func (c *Compiler) Invalidate(sample any) {
	c.registry.Invalidate(sample)
}

// InvalidateAll drops all cached type information.
func (c *Compiler) InvalidateAll() {
	c.registry.InvalidateAll()
}

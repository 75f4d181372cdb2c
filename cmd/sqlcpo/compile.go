// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"github.com/spf13/cobra"

	"github.com/canonical/sqlcpo"
	"github.com/canonical/sqlcpo/internal/request"
)

func newCompileCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <request.yaml>",
		Short: "Print the SQL and the bind values of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			defer e.writeMetrics()
			compiled, err := e.compile(args[0])
			if err != nil {
				return err
			}
			out := compiledOutput{SQL: compiled.SQL(), Binds: []bindOutput{}}
			for _, b := range compiled.Binds() {
				out.Binds = append(out.Binds, bindOutput{Name: b.Name, Value: b.Value})
			}
			enc, done, err := newEncoder(e.cfg.Format, e.out)
			if err != nil {
				return err
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
			return done()
		},
	}
}

// compile loads the request file at path and compiles it.
func (e *env) compile(path string) (*sqlcpo.Compiled, error) {
	f, err := request.Load(path)
	if err != nil {
		return nil, err
	}
	req, err := f.Request()
	if err != nil {
		return nil, err
	}
	compiler := sqlcpo.NewCompiler(sqlcpo.CompilerOptions{Logger: e.logger, Metrics: e.metrics})
	return compiler.Compile(req)
}

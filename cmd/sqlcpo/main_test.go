// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"bytes"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"
	. "gopkg.in/check.v1"
	"gopkg.in/yaml.v3"
)

// Hook up gocheck into the "go test" runner.
func TestCommand(t *testing.T) { TestingT(t) }

type CommandSuite struct {
	dir string
}

var _ = Suite(&CommandSuite{})

func (s *CommandSuite) SetUpTest(c *C) {
	s.dir = c.MkDir()
}

const selectPeople = `
template: SELECT id, name FROM person __CPO_WHERE__
columns:
  ID: id
  Name: name
where:
  - attribute: ID
    comparison: in
    value: [1, 3]
orderBy:
  - attribute: Name
`

const renamePerson = `
template: UPDATE person SET name = ? __CPO_WHERE__
args: [Bob]
where:
  - attribute: id
    comparison: eq
    value: 2
`

// writeFile writes content to a file in the test directory and returns its
// path.
func (s *CommandSuite) writeFile(c *C, name, content string) string {
	path := filepath.Join(s.dir, name)
	c.Assert(os.WriteFile(path, []byte(content), 0o644), IsNil)
	return path
}

// personDB creates a sqlite database file with a person table and returns
// its DSN.
func (s *CommandSuite) personDB(c *C) string {
	dsn := "file:" + filepath.Join(s.dir, "people.db")
	db, err := sql.Open("sqlite3", dsn)
	c.Assert(err, IsNil)
	defer db.Close()
	_, err = db.Exec(`
CREATE TABLE person (id integer, name text);
INSERT INTO person VALUES (1, 'Fred'), (2, 'Mark'), (3, 'Alice');
`)
	c.Assert(err, IsNil)
	return dsn
}

func run(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func (s *CommandSuite) TestCompile(c *C) {
	path := s.writeFile(c, "people.yaml", selectPeople)

	out, _, err := run("compile", path)
	c.Assert(err, IsNil)
	var compiled compiledOutput
	c.Assert(yaml.Unmarshal([]byte(out), &compiled), IsNil)
	c.Check(compiled, DeepEquals, compiledOutput{
		SQL: "SELECT id, name FROM person  WHERE id IN (?, ?)  ORDER BY name ASC",
		Binds: []bindOutput{
			{Name: "ID", Value: 1},
			{Name: "ID", Value: 3},
		},
	})
}

func (s *CommandSuite) TestCompileMsgpackFromEnv(c *C) {
	path := s.writeFile(c, "people.yaml", selectPeople)
	c.Assert(os.Setenv("SQLCPO_FORMAT", "msgpack"), IsNil)
	defer os.Unsetenv("SQLCPO_FORMAT")

	out, _, err := run("compile", path)
	c.Assert(err, IsNil)
	var compiled compiledOutput
	c.Assert(msgpack.Unmarshal([]byte(out), &compiled), IsNil)
	c.Check(compiled.SQL, Equals, "SELECT id, name FROM person  WHERE id IN (?, ?)  ORDER BY name ASC")
	c.Check(compiled.Binds, HasLen, 2)

	// Flags take precedence over the environment.
	out, _, err = run("compile", "--format", "yaml", path)
	c.Assert(err, IsNil)
	c.Assert(yaml.Unmarshal([]byte(out), &compiled), IsNil)
	c.Check(compiled.Binds[1].Value, Equals, 3)
}

func (s *CommandSuite) TestQuery(c *C) {
	dsn := s.personDB(c)
	path := s.writeFile(c, "people.yaml", selectPeople)

	out, logs, err := run("query", "--dsn", dsn, "--capacity", "1", path)
	c.Assert(err, IsNil)

	var rows []map[string]any
	dec := yaml.NewDecoder(bytes.NewBufferString(out))
	for {
		var row map[string]any
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		c.Assert(err, IsNil)
		rows = append(rows, row)
	}
	c.Check(rows, DeepEquals, []map[string]any{
		{"id": 3, "name": "Alice"},
		{"id": 1, "name": "Fred"},
	})
	c.Check(logs, Matches, `(?s).*msg="query finished".*rows=2.*`)
}

func (s *CommandSuite) TestQueryMsgpack(c *C) {
	dsn := s.personDB(c)
	path := s.writeFile(c, "people.yaml", selectPeople)

	out, _, err := run("query", "--dsn", dsn, "--format", "msgpack", path)
	c.Assert(err, IsNil)

	dec := msgpack.NewDecoder(bytes.NewBufferString(out))
	var names []string
	for {
		row := map[string]any{}
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		c.Assert(err, IsNil)
		names = append(names, row["name"].(string))
	}
	c.Check(names, DeepEquals, []string{"Alice", "Fred"})
}

func (s *CommandSuite) TestExec(c *C) {
	dsn := s.personDB(c)
	path := s.writeFile(c, "rename.yaml", renamePerson)

	out, _, err := run("exec", "--dsn", dsn, path)
	c.Assert(err, IsNil)
	var outcome outcomeOutput
	c.Assert(yaml.Unmarshal([]byte(out), &outcome), IsNil)
	c.Check(outcome.RowsAffected, Equals, int64(1))

	db, err := sql.Open("sqlite3", dsn)
	c.Assert(err, IsNil)
	defer db.Close()
	var name string
	c.Assert(db.QueryRow("SELECT name FROM person WHERE id = 2").Scan(&name), IsNil)
	c.Check(name, Equals, "Bob")
}

func (s *CommandSuite) TestMetrics(c *C) {
	dsn := s.personDB(c)
	path := s.writeFile(c, "people.yaml", selectPeople)

	_, errOut, err := run("query", "--dsn", dsn, "--metrics", "--log-level", "error", path)
	c.Assert(err, IsNil)
	c.Check(errOut, Matches, `(?s).*sqlcpo_queries_compiled_total 1\n.*`)
	c.Check(errOut, Matches, `(?s).*sqlcpo_stream_rows_produced_total 2\n.*`)
	c.Check(errOut, Matches, `(?s).*sqlcpo_stream_rows_consumed_total 2\n.*`)
	c.Check(errOut, Not(Matches), `(?s).*query finished.*`)
}

func (s *CommandSuite) TestErrors(c *C) {
	path := s.writeFile(c, "people.yaml", selectPeople)
	bad := s.writeFile(c, "bad.yaml", "template: SELECT 1\nwhere:\n  - attribute: a\n    comparison: almost\n")

	tests := []struct {
		summary string
		args    []string
		err     string
	}{{
		summary: "unknown driver",
		args:    []string{"compile", "--driver", "postgres", path},
		err:     `invalid driver "postgres" \(expected one of: sqlite3, dqlite\)`,
	}, {
		summary: "unknown format",
		args:    []string{"compile", "--format", "json", path},
		err:     `invalid format "json" \(expected one of: yaml, msgpack\)`,
	}, {
		summary: "bad log level",
		args:    []string{"compile", "--log-level", "loud", path},
		err:     `invalid log level "loud"`,
	}, {
		summary: "zero capacity",
		args:    []string{"query", "--capacity", "0", path},
		err:     `invalid capacity 0`,
	}, {
		summary: "missing file",
		args:    []string{"compile", filepath.Join(s.dir, "missing.yaml")},
		err:     `cannot read request: .*`,
	}, {
		summary: "bad request",
		args:    []string{"compile", bad},
		err:     `where: unknown comparison "almost"`,
	}, {
		summary: "missing table",
		args:    []string{"query", path},
		err:     `.*no such table: person`,
	}}
	for _, t := range tests {
		_, _, err := run(t.args...)
		c.Check(err, ErrorMatches, t.err, Commentf("test %q", t.summary))
	}
}

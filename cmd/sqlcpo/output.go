// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// encoder writes a sequence of values, one YAML document or MessagePack
// value each.
type encoder interface {
	Encode(v any) error
}

type yamlEncoder struct {
	enc *yaml.Encoder
}

func (y yamlEncoder) Encode(v any) error {
	return y.enc.Encode(v)
}

// newEncoder returns the encoder for format.
func newEncoder(format string, w io.Writer) (encoder, func() error, error) {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return yamlEncoder{enc}, enc.Close, nil
	case "msgpack":
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("invalid format %q", format)
}

// compiledOutput is what the compile command writes.
type compiledOutput struct {
	SQL   string       `yaml:"sql" msgpack:"sql"`
	Binds []bindOutput `yaml:"binds" msgpack:"binds"`
}

type bindOutput struct {
	Name  string `yaml:"name" msgpack:"name"`
	Value any    `yaml:"value" msgpack:"value"`
}

// outcomeOutput is what the exec command writes.
type outcomeOutput struct {
	RowsAffected int64 `yaml:"rowsAffected" msgpack:"rowsAffected"`
}

// printable converts the values of a scanned row into values both encoders
// write as text.
func printable(row map[string]any) map[string]any {
	for k, v := range row {
		if b, ok := v.([]byte); ok && utf8.Valid(b) {
			row[k] = string(b)
		}
	}
	return row
}
